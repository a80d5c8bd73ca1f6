package models

import (
	"time"
)

// User is the account record the verification path checks a payment against.
// Registration, login and profile management live in the auth service; this
// table is the read-side replica the engine needs for identity checks.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsBlocked bool      `json:"is_blocked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
