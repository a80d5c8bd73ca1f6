package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application. Secrets have no
// embedded defaults; LoadConfig fails when one is missing.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	Port       string
	Env        string

	JWTSecret      string
	RazorpayKey    string
	RazorpaySecret string
	SweepToken     string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	SweepInterval   time.Duration
	PaymentStateTTL time.Duration
}

// LoadConfig loads configuration from environment variables. A .env file is
// honored when present but not required.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		DBHost:         os.Getenv("DB_HOST"),
		DBPort:         os.Getenv("DB_PORT"),
		DBUser:         os.Getenv("DB_USER"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         os.Getenv("DB_NAME"),
		Port:           os.Getenv("PORT"),
		Env:            os.Getenv("ENV"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RazorpayKey:    os.Getenv("RAZORPAY_KEY"),
		RazorpaySecret: os.Getenv("RAZORPAY_SECRET"),
		SweepToken:     os.Getenv("SWEEP_TOKEN"),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPUsername:   os.Getenv("SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:       os.Getenv("SMTP_FROM"),
	}

	var missing []string
	for name, value := range map[string]string{
		"DB_HOST":         config.DBHost,
		"DB_PORT":         config.DBPort,
		"DB_USER":         config.DBUser,
		"DB_PASSWORD":     config.DBPassword,
		"DB_NAME":         config.DBName,
		"JWT_SECRET":      config.JWTSecret,
		"RAZORPAY_KEY":    config.RazorpayKey,
		"RAZORPAY_SECRET": config.RazorpaySecret,
		"SWEEP_TOKEN":     config.SweepToken,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if config.Port == "" {
		config.Port = "8080"
	}

	config.SMTPPort = 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &config.SMTPPort); err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT %q: %v", v, err)
		}
	}

	var err error
	config.SweepInterval, err = durationFromEnv("SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	config.PaymentStateTTL, err = durationFromEnv("PAYMENT_STATE_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	return config, nil
}

func durationFromEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", name, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", name, v)
	}
	return d, nil
}
