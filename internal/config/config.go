package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Groove Guide backend.
type Config struct {
	BindAddress string
	Port        int
	DataDir     string

	LogLevel  string
	LogFormat string

	// Session tokens are HMAC-signed JWTs; this secret must be stable across restarts.
	SessionSecret string
	AdminKey      string

	StripeAPIKey        string
	StripeWebhookSecret string
	ProPriceID          string

	PostmarkServerToken string
	EmailFrom           string

	PublicSiteURL    string
	DefaultTrialDays int
}

// DatabasePath returns the SQLite database file location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "grooveguide.db")
}

// Load reads configuration from environment variables.
// A .env file is loaded if present but not required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := envOrDefaultInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	trialDays, err := envOrDefaultInt("DEFAULT_TRIAL_DAYS", 30)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BindAddress: envOrDefault("BIND_ADDRESS", "0.0.0.0"),
		Port:        port,
		DataDir:     envOrDefault("DATA_DIR", "./data"),

		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "auto"),

		SessionSecret: strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		AdminKey:      strings.TrimSpace(os.Getenv("ADMIN_KEY")),

		StripeAPIKey:        strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		ProPriceID:          strings.TrimSpace(os.Getenv("STRIPE_PRO_PRICE_ID")),

		PostmarkServerToken: strings.TrimSpace(os.Getenv("POSTMARK_SERVER_TOKEN")),
		EmailFrom:           envOrDefault("EMAIL_FROM", "noreply@alpinegrooveguide.com"),

		PublicSiteURL:    envOrDefault("PUBLIC_SITE_URL", "http://localhost:3000"),
		DefaultTrialDays: trialDays,
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if cfg.DefaultTrialDays <= 0 {
		return nil, fmt.Errorf("DEFAULT_TRIAL_DAYS must be positive, got %d", cfg.DefaultTrialDays)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
