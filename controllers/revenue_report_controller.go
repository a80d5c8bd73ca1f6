package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	"github.com/tealeg/xlsx"

	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/services"
	"github.com/renewly/renewly/utils"
)

// RevenueReportController serves the operator ledger export and the user
// payment receipt.
type RevenueReportController struct {
	ledger *services.RevenueLedger
	orders *services.OrderStore
}

// NewRevenueReportController wires the controller.
func NewRevenueReportController(ledger *services.RevenueLedger, orders *services.OrderStore) *RevenueReportController {
	return &RevenueReportController{ledger: ledger, orders: orders}
}

// ExportExcel downloads the revenue ledger for a period as an Excel sheet.
// GET /internal/revenue/export?period=day|week|month
func (rc *RevenueReportController) ExportExcel(c *gin.Context) {
	utils.LogInfo("Revenue ledger export called")

	period := c.DefaultQuery("period", "day")
	now := time.Now()
	var startDate, endDate time.Time

	switch period {
	case "day":
		startDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		endDate = time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 999999999, now.Location())
	case "week":
		endDate = time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 999999999, now.Location())
		startDate = endDate.AddDate(0, 0, -6)
		startDate = time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, startDate.Location())
	case "month":
		startDate = now.AddDate(0, 0, -30).Truncate(24 * time.Hour)
		endDate = now.Add(24 * time.Hour)
	default:
		utils.LogError("Invalid export period: %s", period)
		utils.BadRequest(c, "Invalid period", "Period must be day, week, or month")
		return
	}

	entries, err := rc.ledger.ListBetween(startDate, endDate)
	if err != nil {
		utils.LogError("Failed to fetch ledger entries: %v", err)
		utils.InternalServerError(c, "Failed to fetch ledger entries", err.Error())
		return
	}
	utils.LogDebug("Retrieved %d ledger entries for export", len(entries))

	var confirmedTotal float64
	for _, entry := range entries {
		if entry.Status == models.RevenueStatusConfirmed {
			confirmedTotal += entry.Amount
		}
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Revenue Ledger")
	if err != nil {
		utils.InternalServerError(c, "Failed to build export", err.Error())
		return
	}

	header := sheet.AddRow()
	for _, title := range []string{"Reference", "Order", "Payment", "User ID", "Plan", "Amount", "Currency", "Status", "Source", "Created", "Confirmed"} {
		header.AddCell().SetString(title)
	}

	for _, entry := range entries {
		row := sheet.AddRow()
		row.AddCell().SetString(entry.ReferenceID)
		row.AddCell().SetString(entry.OrderID)
		row.AddCell().SetString(entry.PaymentID)
		row.AddCell().SetInt(int(entry.UserID))
		row.AddCell().SetString(entry.PlanCode)
		row.AddCell().SetFloat(entry.Amount)
		row.AddCell().SetString(entry.Currency)
		row.AddCell().SetString(entry.Status)
		row.AddCell().SetString(entry.Source)
		row.AddCell().SetString(entry.CreatedAt.Format("2006-01-02 15:04:05"))
		if entry.ConfirmedAt != nil {
			row.AddCell().SetString(entry.ConfirmedAt.Format("2006-01-02 15:04:05"))
		} else {
			row.AddCell().SetString("-")
		}
	}

	summary := sheet.AddRow()
	summary.AddCell().SetString("Confirmed total")
	summary.AddCell().SetFloat(confirmedTotal)

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		utils.LogError("Failed to write export: %v", err)
		utils.InternalServerError(c, "Failed to build export", err.Error())
		return
	}

	filename := fmt.Sprintf("revenue-%s-%s.xlsx", period, now.Format("2006-01-02"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// Receipt generates a PDF receipt for the caller's confirmed payment.
// GET /v1/payment/receipt/:orderId
func (rc *RevenueReportController) Receipt(c *gin.Context) {
	userVal, exists := c.Get("user")
	if !exists {
		utils.LogError("Unauthorized receipt download attempt")
		utils.Unauthorized(c, "User not found")
		return
	}
	user := userVal.(models.User)

	orderID := c.Param("orderId")
	if orderID == "" {
		utils.BadRequest(c, "Order id is required", nil)
		return
	}

	order, err := rc.orders.Get(orderID, user.ID)
	if err != nil {
		utils.LogError("Order %s not found for receipt, user ID: %d", orderID, user.ID)
		utils.NotFound(c, "Order not found")
		return
	}

	entry, err := rc.ledger.GetByOrderID(orderID)
	if err != nil || entry.Status != models.RevenueStatusConfirmed {
		utils.LogError("No confirmed payment for order %s, user ID: %d", orderID, user.ID)
		utils.NotFound(c, "No confirmed payment for this order")
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(100, 10, "Renewly")
	pdf.SetFont("Arial", "", 12)
	pdf.Ln(8)
	pdf.Cell(100, 8, "Email: billing@renewly.app")
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(100, 10, "PAYMENT RECEIPT")
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(60, 8, "Order: "+order.OrderID)
	pdf.Cell(60, 8, "Payment: "+entry.PaymentID)
	pdf.Ln(8)
	pdf.Cell(60, 8, "Date: "+entry.CreatedAt.Format("2006-01-02 15:04:05"))
	if entry.ConfirmedAt != nil {
		pdf.Cell(60, 8, "Confirmed: "+entry.ConfirmedAt.Format("2006-01-02 15:04:05"))
	}
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(100, 8, "Billed To:")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(100, 8, user.FirstName+" "+user.LastName)
	pdf.Ln(6)
	pdf.Cell(100, 8, user.Email)
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(70, 8, "Plan", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 8, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 8, "Currency", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(70, 8, entry.PlanCode, "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", entry.Amount), "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, entry.Currency, "1", 0, "C", false, 0, "")
	pdf.Ln(12)

	pdf.SetFont("Arial", "I", 10)
	pdf.Cell(100, 8, "Reference: "+entry.ReferenceID)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		utils.LogError("Failed to render receipt for order %s: %v", orderID, err)
		utils.InternalServerError(c, "Failed to generate receipt", nil)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=receipt-"+order.OrderID+".pdf")
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
