package services

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/renewly/renewly/models"
	"gorm.io/gorm"
)

// Fraud scoring thresholds and lookback windows.
const (
	HighRiskThreshold      = 0.7
	RecentAttemptLimit     = 3
	RecentAttemptWindow    = time.Hour
	FingerprintReuseWindow = 24 * time.Hour
)

// FraudCheck is the result of a single heuristic check. Score is in [0,1]
// with higher meaning more suspicious.
type FraudCheck struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Detail string  `json:"detail"`
}

// FraudInput carries the request metadata the scorer evaluates. UserAgent,
// IPAddress and DeviceFingerprint are optional; checks that need an absent
// field are skipped rather than scored zero.
type FraudInput struct {
	UserID            uint
	Email             string
	UserAgent         string
	IPAddress         string
	DeviceFingerprint string
}

// RecentAttemptsLookup answers the scorer's lookback questions.
type RecentAttemptsLookup interface {
	CountRecentAttempts(userID uint, window time.Duration) (int64, error)
	FingerprintSeenForOtherUser(fingerprint string, userID uint, window time.Duration) (bool, error)
}

var disposableEmailDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"temp-mail.org":     true,
	"throwaway.email":   true,
	"yopmail.com":       true,
	"trashmail.com":     true,
	"getnada.com":       true,
	"sharklasers.com":   true,
	"dispostable.com":   true,
	"fakeinbox.com":     true,
}

var automationSignatures = []string{
	"bot", "crawler", "spider", "curl", "wget", "python", "scrapy",
	"headless", "phantomjs", "selenium", "puppeteer", "playwright",
}

// FraudScorer runs the heuristic checks gating activation. Scoring is
// deterministic given its inputs and the lookup's answers.
type FraudScorer struct {
	lookup RecentAttemptsLookup
}

// NewFraudScorer creates a scorer backed by the given attempts lookup.
func NewFraudScorer(lookup RecentAttemptsLookup) *FraudScorer {
	return &FraudScorer{lookup: lookup}
}

// Score evaluates all applicable checks and returns the aggregate risk score
// (arithmetic mean of evaluated checks) with the per-check detail for audit
// logging.
func (s *FraudScorer) Score(in FraudInput) (float64, []FraudCheck, error) {
	var checks []FraudCheck

	checks = append(checks, s.checkDisposableEmail(in.Email))

	if in.UserAgent != "" {
		checks = append(checks, s.checkAutomationUserAgent(in.UserAgent))
	}

	if in.IPAddress != "" {
		checks = append(checks, s.checkInternalIP(in.IPAddress))
	}

	attempts, err := s.lookup.CountRecentAttempts(in.UserID, RecentAttemptWindow)
	if err != nil {
		return 0, nil, fmt.Errorf("recent attempt lookup failed: %w", err)
	}
	checks = append(checks, s.checkRecentAttempts(attempts))

	if in.DeviceFingerprint != "" {
		reused, err := s.lookup.FingerprintSeenForOtherUser(in.DeviceFingerprint, in.UserID, FingerprintReuseWindow)
		if err != nil {
			return 0, nil, fmt.Errorf("fingerprint lookup failed: %w", err)
		}
		checks = append(checks, s.checkFingerprintReuse(reused))
	}

	var total float64
	for _, check := range checks {
		total += check.Score
	}
	risk := total / float64(len(checks))

	return risk, checks, nil
}

func (s *FraudScorer) checkDisposableEmail(email string) FraudCheck {
	check := FraudCheck{Name: "disposable_email", Passed: true, Detail: "email domain not on disposable list"}
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		check.Passed = false
		check.Score = 1.0
		check.Detail = "email has no parseable domain"
		return check
	}
	domain := strings.ToLower(email[at+1:])
	if disposableEmailDomains[domain] {
		check.Passed = false
		check.Score = 1.0
		check.Detail = fmt.Sprintf("disposable email domain: %s", domain)
	}
	return check
}

func (s *FraudScorer) checkAutomationUserAgent(userAgent string) FraudCheck {
	check := FraudCheck{Name: "automation_user_agent", Passed: true, Detail: "no automation signature in user agent"}
	ua := strings.ToLower(userAgent)
	for _, sig := range automationSignatures {
		if strings.Contains(ua, sig) {
			check.Passed = false
			check.Score = 1.0
			check.Detail = fmt.Sprintf("automation signature %q in user agent", sig)
			break
		}
	}
	return check
}

func (s *FraudScorer) checkInternalIP(ipAddress string) FraudCheck {
	check := FraudCheck{Name: "internal_ip", Passed: true, Detail: "public IP address"}
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		check.Passed = false
		check.Score = 1.0
		check.Detail = fmt.Sprintf("unparseable IP address: %s", ipAddress)
		return check
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		check.Passed = false
		check.Score = 1.0
		check.Detail = fmt.Sprintf("private or internal IP range: %s", ipAddress)
	}
	return check
}

func (s *FraudScorer) checkRecentAttempts(attempts int64) FraudCheck {
	check := FraudCheck{
		Name:   "recent_attempts",
		Passed: true,
		Detail: fmt.Sprintf("%d attempts in the last hour", attempts),
	}
	if attempts >= RecentAttemptLimit {
		check.Passed = false
		check.Score = 1.0
		check.Detail = fmt.Sprintf("%d attempts in the last hour (limit %d)", attempts, RecentAttemptLimit)
	}
	return check
}

func (s *FraudScorer) checkFingerprintReuse(reused bool) FraudCheck {
	check := FraudCheck{Name: "fingerprint_reuse", Passed: true, Detail: "device fingerprint not seen for another account"}
	if reused {
		check.Passed = false
		check.Score = 1.0
		check.Detail = "device fingerprint used by a different account within 24 hours"
	}
	return check
}

// AttemptStore records verification attempts and answers the scorer's
// lookback queries from the payment_attempts table.
type AttemptStore struct {
	db *gorm.DB
}

// NewAttemptStore creates an attempt store on the given database handle.
func NewAttemptStore(db *gorm.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// RecordAttempt appends a lookback row for one verification attempt.
func (s *AttemptStore) RecordAttempt(userID uint, orderID, ipAddress, fingerprint string) error {
	attempt := models.PaymentAttempt{
		UserID:            userID,
		OrderID:           orderID,
		IPAddress:         ipAddress,
		DeviceFingerprint: fingerprint,
	}
	return s.db.Create(&attempt).Error
}

// CountRecentAttempts counts the user's attempts inside the trailing window.
func (s *AttemptStore) CountRecentAttempts(userID uint, window time.Duration) (int64, error) {
	var count int64
	err := s.db.Model(&models.PaymentAttempt{}).
		Where("user_id = ? AND created_at >= ?", userID, time.Now().Add(-window)).
		Count(&count).Error
	return count, err
}

// FingerprintSeenForOtherUser reports whether the fingerprint appeared on an
// attempt by a different user inside the trailing window.
func (s *AttemptStore) FingerprintSeenForOtherUser(fingerprint string, userID uint, window time.Duration) (bool, error) {
	var count int64
	err := s.db.Model(&models.PaymentAttempt{}).
		Where("device_fingerprint = ? AND user_id <> ? AND created_at >= ?",
			fingerprint, userID, time.Now().Add(-window)).
		Count(&count).Error
	return count > 0, err
}
