package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	for name, value := range map[string]string{
		"DB_HOST":         "localhost",
		"DB_PORT":         "5432",
		"DB_USER":         "renewly",
		"DB_PASSWORD":     "renewly",
		"DB_NAME":         "renewly_test",
		"JWT_SECRET":      "jwt-secret",
		"RAZORPAY_KEY":    "rzp_test_key",
		"RAZORPAY_SECRET": "rzp-secret",
		"SWEEP_TOKEN":     "sweep-token",
	} {
		t.Setenv(name, value)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.PaymentStateTTL)
	assert.Equal(t, 587, cfg.SMTPPort)
}

func TestLoadConfig_MissingSecretFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SWEEP_TOKEN", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "SWEEP_TOKEN")
}

func TestLoadConfig_DurationOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SWEEP_INTERVAL", "15m")
	t.Setenv("PAYMENT_STATE_TTL", "10m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 10*time.Minute, cfg.PaymentStateTTL)
}

func TestLoadConfig_RejectsBadDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SWEEP_INTERVAL", "often")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SWEEP_INTERVAL")
}

func TestLoadConfig_RejectsNonPositiveDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PAYMENT_STATE_TTL", "-5m")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_STATE_TTL")
}
