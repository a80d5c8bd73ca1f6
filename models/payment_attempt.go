package models

import (
	"time"
)

// PaymentAttempt records one verification attempt for fraud lookback. Rows
// are written on every attempt regardless of outcome and queried over a
// trailing window, never updated.
type PaymentAttempt struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"index" json:"user_id"`
	OrderID           string    `json:"order_id"`
	IPAddress         string    `json:"ip_address,omitempty"`
	DeviceFingerprint string    `gorm:"index" json:"device_fingerprint,omitempty"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
}
