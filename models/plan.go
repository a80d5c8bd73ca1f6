package models

import (
	"time"
)

// Plan is a catalog row describing a purchasable subscription tier.
type Plan struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex" json:"code"`
	Name      string    `json:"name"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	IsTrial   bool      `json:"is_trial"`
	TrialDays int       `json:"trial_days"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
