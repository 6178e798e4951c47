// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// SuitPay gateway
	SuitPayChargeURL    string
	SuitPayCashOutURL   string
	SuitPayClientID     string
	SuitPayClientSecret string
	AppURL              string // public base URL; webhook callback is AppURL + /webhooks/suitpay

	// Marketplace settings
	FeeBps        int64         // platform fee in basis points, applied to both sides
	HoldDays      int           // days between receipt confirmation and payout eligibility
	PaymentWindow time.Duration // how long an accepted offer may stay unpaid
	ChargeTTL     time.Duration // PIX charge due date offset

	// Background jobs
	SweepInterval  time.Duration
	ExpiryInterval time.Duration

	// Observability / protection
	RateLimitRPS int
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultChargeURL      = "https://ws.suitpay.app/api/v1/gateway/request-qrcode"
	DefaultCashOutURL     = "https://ws.suitpay.app/api/v1/gateway/pix-payment"
	DefaultFeeBps         = 1500 // 15% each side
	DefaultHoldDays       = 5
	DefaultPaymentWindow  = 15 * time.Minute
	DefaultChargeTTL      = 24 * time.Hour
	DefaultSweepInterval  = 10 * time.Minute
	DefaultExpiryInterval = time.Minute
	DefaultRateLimit      = 100
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		SuitPayChargeURL:    getEnv("SUITPAY_URL", DefaultChargeURL),
		SuitPayCashOutURL:   getEnv("SUITPAY_CASHOUT_URL", DefaultCashOutURL),
		SuitPayClientID:     os.Getenv("SUITPAY_CLIENT_ID"),
		SuitPayClientSecret: os.Getenv("SUITPAY_CLIENT_SECRET"),
		AppURL:              getEnv("APP_URL", "http://localhost:8080"),
		FeeBps:              getEnvInt64("FEE_BPS", DefaultFeeBps),
		HoldDays:            int(getEnvInt64("HOLD_DAYS", DefaultHoldDays)),
		PaymentWindow:       getEnvDuration("PAYMENT_WINDOW", DefaultPaymentWindow),
		ChargeTTL:           getEnvDuration("CHARGE_TTL", DefaultChargeTTL),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		ExpiryInterval:      getEnvDuration("EXPIRY_INTERVAL", DefaultExpiryInterval),
		RateLimitRPS:        int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	if c.FeeBps < 0 || c.FeeBps >= 10000 {
		return fmt.Errorf("FEE_BPS must be in [0, 10000), got %d", c.FeeBps)
	}
	if c.HoldDays < 0 {
		return fmt.Errorf("HOLD_DAYS must be non-negative, got %d", c.HoldDays)
	}
	if c.PaymentWindow <= 0 {
		return fmt.Errorf("PAYMENT_WINDOW must be positive, got %s", c.PaymentWindow)
	}
	if c.IsProduction() && (c.SuitPayClientID == "" || c.SuitPayClientSecret == "") {
		return fmt.Errorf("SUITPAY_CLIENT_ID and SUITPAY_CLIENT_SECRET are required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// WebhookCallbackURL is the URL the gateway calls to notify payment events.
func (c *Config) WebhookCallbackURL() string {
	return c.AppURL + "/webhooks/suitpay"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
