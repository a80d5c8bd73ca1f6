package models

import (
	"time"
)

// FraudAttempt is the dedicated audit record written when the fraud scorer
// blocks an activation. It preserves the request metadata and per-check
// detail for later investigation, separate from application logs.
type FraudAttempt struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"index" json:"user_id"`
	OrderID           string    `json:"order_id"`
	Email             string    `json:"email"`
	UserAgent         string    `json:"user_agent,omitempty"`
	IPAddress         string    `json:"ip_address,omitempty"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
	RiskScore         float64   `json:"risk_score"`
	CheckDetail       string    `json:"check_detail"` // JSON-encoded per-check results
	CreatedAt         time.Time `json:"created_at"`
}

// SecurityViolation audit record types
const (
	ViolationInvalidSignature = "invalid_signature"
)

// SecurityViolation is the audit record for security-relevant rejections,
// currently signature mismatches on the verification path.
type SecurityViolation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"index" json:"user_id"`
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	ViolationType string    `json:"violation_type"`
	Detail        string    `json:"detail"`
	IPAddress     string    `json:"ip_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
