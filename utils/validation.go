package utils

import (
	"regexp"
	"strings"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	planCodeRegex = regexp.MustCompile(`^[a-z0-9_]{3,40}$`)
)

// ValidateEmail checks that the input is a plausible email address
func ValidateEmail(email string) (bool, string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, "Email is required"
	}
	if len(email) > 254 {
		return false, "Email is too long"
	}
	if !emailRegex.MatchString(email) {
		return false, "Invalid email format"
	}
	return true, ""
}

// ValidatePlanCode checks a plan code against the catalog naming rules
func ValidatePlanCode(code string) (bool, string) {
	if code == "" {
		return false, "Plan code is required"
	}
	if !planCodeRegex.MatchString(code) {
		return false, "Invalid plan code"
	}
	return true, ""
}
