package models

import (
	"time"
)

// Subscription status constants
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusSuspended = "suspended"
)

// Subscription holds one row per user's subscription lineage. Cancellation is
// a status change, never a delete, so billing history stays auditable. At
// most one row per user carries status active at any time.
type Subscription struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"index" json:"user_id"`
	PlanCode           string     `json:"plan_code"`
	Status             string     `json:"status"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            time.Time  `json:"end_date"`
	AutoRenew          bool       `json:"auto_renew"`
	IsTrial            bool       `json:"is_trial"`
	LastPaymentDate    *time.Time `json:"last_payment_date,omitempty"`
	NextBillingDate    *time.Time `json:"next_billing_date,omitempty"`
	NextPaymentAmount  float64    `json:"next_payment_amount"`
	Currency           string     `json:"currency"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
