package models

import (
	"time"
)

// PaymentOrder status constants
const (
	OrderStatusCreated   = "created"
	OrderStatusPaid      = "paid"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

// PaymentOrder is the canonical record of one checkout attempt. It is created
// before the user is redirected to the gateway and only the verification path
// moves it to paid.
type PaymentOrder struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OrderID      string    `gorm:"uniqueIndex" json:"order_id"` // gateway-assigned
	UserID       uint      `gorm:"index" json:"user_id"`
	PlanCode     string    `json:"plan_code"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	PaymentID    string    `json:"payment_id"` // set when the order is paid
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsTerminalOrderStatus reports whether an order status admits no further
// transitions.
func IsTerminalOrderStatus(status string) bool {
	switch status {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}
