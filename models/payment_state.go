package models

import (
	"time"
)

// PaymentState status constants
const (
	PaymentStatePending   = "pending"
	PaymentStateSuccess   = "success"
	PaymentStateFailed    = "failed"
	PaymentStateCancelled = "cancelled"
	PaymentStateExpired   = "expired"
)

// PaymentState tracks one client-facing payment session. It is kept separate
// from PaymentOrder so a retried session can be re-created freely while the
// order stays canonical.
type PaymentState struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OrderID      string    `gorm:"index" json:"order_id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	PlanCode     string    `json:"plan_code"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsTerminalPaymentState reports whether a session status admits no further
// transitions. Once a session leaves pending it never returns.
func IsTerminalPaymentState(status string) bool {
	return status != PaymentStatePending
}
