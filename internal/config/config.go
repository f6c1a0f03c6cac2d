// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Stripe settings
	StripeSecretKey     string // API key for subscription fetch/update calls
	StripeWebhookSecret string // Shared secret for webhook signature verification
	PlanPrices          map[string]string // Stripe price ID → plan label

	// Security
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

// Defaults
const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultRateLimit = 120
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PlanPrices:          parsePlanPrices(os.Getenv("STRIPE_PLAN_PRICES")),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
// Stripe credentials are required outside development so a misconfigured
// deploy fails at startup, not on the first webhook.
func (c *Config) Validate() error {
	if !c.IsDevelopment() {
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required")
		}
		if c.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// parsePlanPrices parses "price_123=Starter,price_456=Growth" into a map.
// Malformed entries are skipped rather than failing startup.
func parsePlanPrices(raw string) map[string]string {
	prices := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		priceID, label, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || priceID == "" || label == "" {
			continue
		}
		prices[priceID] = label
	}
	return prices
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
