package models

import (
	"time"
)

// WebhookEvent status constants
const (
	WebhookStatusReceived   = "received"
	WebhookStatusProcessing = "processing"
	WebhookStatusCompleted  = "completed"
	WebhookStatusFailed     = "failed"
)

// WebhookEvent is the idempotent ingestion ledger for gateway-pushed
// notifications. The uniqueness constraint on EventID is the system's
// correctness anchor: a re-delivered event id hits the constraint instead of
// re-running side effects.
type WebhookEvent struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	EventID      string     `gorm:"uniqueIndex" json:"event_id"` // gateway-assigned
	EventType    string     `json:"event_type"`
	OrderID      string     `gorm:"index" json:"order_id,omitempty"`
	PaymentID    string     `json:"payment_id,omitempty"`
	Status       string     `json:"status"`
	Payload      string     `json:"payload"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
