package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/services"
	"github.com/renewly/renewly/utils"
)

// PaymentController handles the synchronous payment path: initiating a
// checkout against the gateway and verifying the redirect callback.
type PaymentController struct {
	verifier *services.PaymentVerifier
	orders   *services.OrderStore
	states   *services.PaymentStateStore
	plans    *services.PlanCatalog
	client   *razorpay.Client
	key      string
}

// NewPaymentController wires the controller with its collaborators.
func NewPaymentController(
	verifier *services.PaymentVerifier,
	orders *services.OrderStore,
	states *services.PaymentStateStore,
	plans *services.PlanCatalog,
	razorpayKey, razorpaySecret string,
) *PaymentController {
	return &PaymentController{
		verifier: verifier,
		orders:   orders,
		states:   states,
		plans:    plans,
		client:   razorpay.NewClient(razorpayKey, razorpaySecret),
		key:      razorpayKey,
	}
}

// Initiate creates the gateway-side order plus the local PaymentOrder and
// pending PaymentState before the user is redirected to pay.
// POST /v1/payment/initiate
func (pc *PaymentController) Initiate(c *gin.Context) {
	utils.LogInfo("Payment initiation called")
	userVal, exists := c.Get("user")
	if !exists {
		utils.LogError("User not found in context")
		utils.Unauthorized(c, "User not found")
		return
	}
	user := userVal.(models.User)

	var req struct {
		PlanCode string `json:"plan_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError("Invalid initiation request for user ID: %d: %v", user.ID, err)
		utils.BadRequest(c, "Invalid request. plan_code is required", err.Error())
		return
	}
	if ok, msg := utils.ValidatePlanCode(req.PlanCode); !ok {
		utils.BadRequest(c, msg, nil)
		return
	}

	plan, err := pc.plans.Get(req.PlanCode)
	if err != nil {
		utils.LogError("Plan %s not found for user ID: %d: %v", req.PlanCode, user.ID, err)
		utils.NotFound(c, "Plan not found")
		return
	}

	amountPaise := int(plan.Amount * 100)
	orderData := map[string]interface{}{
		"amount":          amountPaise,
		"currency":        plan.Currency,
		"receipt":         fmt.Sprintf("sub_rcptid_%d_%s", user.ID, plan.Code),
		"payment_capture": 1,
	}
	rzOrder, err := pc.client.Order.Create(orderData, nil)
	if err != nil {
		utils.LogError("Failed to create gateway order for user ID: %d: %v", user.ID, err)
		utils.InternalServerError(c, "Failed to create payment order", err.Error())
		return
	}
	orderID := fmt.Sprintf("%v", rzOrder["id"])
	utils.LogInfo("Created gateway order %s for user ID: %d, plan: %s", orderID, user.ID, plan.Code)

	order := models.PaymentOrder{
		OrderID:  orderID,
		UserID:   user.ID,
		PlanCode: plan.Code,
		Amount:   plan.Amount,
		Currency: plan.Currency,
	}
	if err := pc.orders.Create(&order); err != nil {
		utils.LogError("Failed to persist order %s: %v", orderID, err)
		utils.InternalServerError(c, "Failed to create payment order", nil)
		return
	}

	state := models.PaymentState{
		OrderID:  orderID,
		UserID:   user.ID,
		PlanCode: plan.Code,
		Amount:   plan.Amount,
		Currency: plan.Currency,
	}
	if err := pc.states.Create(&state); err != nil {
		utils.LogError("Failed to create payment session for order %s: %v", orderID, err)
		utils.InternalServerError(c, "Failed to create payment session", nil)
		return
	}

	utils.Success(c, "Payment initiated successfully", gin.H{
		"order": gin.H{
			"order_id":       orderID,
			"plan":           plan.Code,
			"amount":         fmt.Sprintf("%.2f", plan.Amount),
			"currency":       plan.Currency,
			"expires_at":     state.ExpiresAt,
		},
		"key": pc.key,
		"user": gin.H{
			"email": user.Email,
		},
	})
}

// Verify runs the synchronous verification pipeline on the gateway redirect.
// POST /v1/payment/verify
func (pc *PaymentController) Verify(c *gin.Context) {
	utils.LogInfo("Payment verification called")
	userVal, exists := c.Get("user")
	if !exists {
		utils.LogError("User not found in context")
		utils.Unauthorized(c, "User not found")
		return
	}
	user := userVal.(models.User)

	var req services.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError("Invalid verification request for user ID: %d: %v", user.ID, err)
		respondVerificationError(c, &services.VerificationError{
			Code:    services.CodeInvalidRequest,
			Message: "Invalid request body",
		})
		return
	}
	if req.UserID != user.ID {
		utils.LogError("Verification user mismatch: body %d, token %d", req.UserID, user.ID)
		respondVerificationError(c, &services.VerificationError{
			Code:    services.CodeInvalidRequest,
			Message: "user_id does not match the authenticated user",
		})
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	result, verr := pc.verifier.Verify(req)
	if verr != nil {
		respondVerificationError(c, verr)
		return
	}

	utils.Success(c, result.Message, gin.H{
		"subscription": result.Subscription,
		"verification": result.Verification,
	})
}

// respondVerificationError maps the engine's error taxonomy onto HTTP
// statuses without leaking internals for system errors.
func respondVerificationError(c *gin.Context, verr *services.VerificationError) {
	payload := gin.H{"code": verr.Code, "error": verr.Message}
	switch verr.Code {
	case services.CodeInvalidRequest:
		utils.BadRequest(c, verr.Message, payload)
	case services.CodeHighRiskPayment, services.CodeInvalidSignature, services.CodeUserVerificationFailed:
		utils.Error(c, http.StatusForbidden, verr.Message, payload)
	case services.CodeOrderNotFound:
		utils.Error(c, http.StatusNotFound, verr.Message, payload)
	case services.CodeActivationFailed:
		utils.Error(c, http.StatusInternalServerError, verr.Message, payload)
	default:
		utils.Error(c, http.StatusInternalServerError, "Something went wrong. Please contact support.", gin.H{
			"code": services.CodeSystemError,
		})
	}
}
