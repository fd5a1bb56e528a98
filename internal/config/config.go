// Package config loads app configuration from env and an optional .env file
// using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Port is the HTTP listen port.
	Port string `mapstructure:"CLUBDESK_PORT"`
	// DBPath is the SQLite database path.
	DBPath string `mapstructure:"CLUBDESK_DB_PATH"`
	// BaseURL is the externally visible URL, used in emailed links.
	BaseURL string `mapstructure:"CLUBDESK_BASE_URL"`
	// LogLevel accepts debug, info, warn, error.
	LogLevel string `mapstructure:"CLUBDESK_LOG_LEVEL"`
	// Env is the application environment; anything but "production" enables
	// the dev-only raw-secret echo in API responses.
	Env string `mapstructure:"APP_ENV"`

	// TokenSigningKey signs invitation tokens. Required, at least 32 bytes.
	TokenSigningKey string `mapstructure:"CLUBDESK_TOKEN_SIGNING_KEY"`

	// PostmarkToken and FromEmail configure the notification transport.
	PostmarkToken string `mapstructure:"CLUBDESK_POSTMARK_TOKEN"`
	FromEmail     string `mapstructure:"CLUBDESK_FROM_EMAIL"`

	// StripeSecretKey and StripeWebhookSecret configure the payment provider.
	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	// PaymentPollInterval is how often the fallback payment poller runs
	// (e.g. "5m").
	PaymentPollInterval string `mapstructure:"CLUBDESK_PAYMENT_POLL_INTERVAL"`

	// DurableRateLimits selects the store-backed limiter for multi-instance
	// deployments; the default process-local limiter fits a single instance.
	DurableRateLimits bool `mapstructure:"CLUBDESK_DURABLE_RATE_LIMITS"`
}

// Production reports whether dev-only behavior must be disabled.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// PollInterval parses PaymentPollInterval as a time.Duration. Returns 5m if
// unset or invalid.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.PaymentPollInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("CLUBDESK_PORT", "8080")
	v.SetDefault("CLUBDESK_DB_PATH", "clubdesk.db")
	v.SetDefault("CLUBDESK_BASE_URL", "http://localhost:8080")
	v.SetDefault("CLUBDESK_LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("CLUBDESK_TOKEN_SIGNING_KEY", "")
	v.SetDefault("CLUBDESK_POSTMARK_TOKEN", "")
	v.SetDefault("CLUBDESK_FROM_EMAIL", "")
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("CLUBDESK_PAYMENT_POLL_INTERVAL", "5m")
	v.SetDefault("CLUBDESK_DURABLE_RATE_LIMITS", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.TokenSigningKey) < 32 {
		return nil, errors.New("CLUBDESK_TOKEN_SIGNING_KEY must be set to at least 32 bytes")
	}
	return &cfg, nil
}
