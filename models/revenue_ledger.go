package models

import (
	"time"
)

// RevenueLedgerEntry status constants
const (
	RevenueStatusPending   = "pending"
	RevenueStatusConfirmed = "confirmed"
	RevenueStatusFailed    = "failed"
	RevenueStatusRefunded  = "refunded"
)

// RevenueLedgerEntry source constants
const (
	RevenueSourceWebhook      = "webhook"
	RevenueSourceVerification = "verification"
	RevenueSourceRenewal      = "renewal"
	RevenueSourceManual       = "manual"
)

// RevenueLedgerEntry is an append-only record of money that has moved or is
// expected to move. Rows are never deleted; only the status advances.
type RevenueLedgerEntry struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ReferenceID string     `gorm:"uniqueIndex" json:"reference_id"`
	OrderID     string     `gorm:"index" json:"order_id"`
	PaymentID   string     `json:"payment_id"`
	UserID      uint       `gorm:"index" json:"user_id"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	PlanCode    string     `json:"plan_code"`
	Status      string     `json:"status"`
	Source      string     `json:"source"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}
