package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries process-wide settings resolved from the environment.
type Config struct {
	Environment string
	HTTPAddr    string
	DatabaseDSN string

	SessionCookieName string
	SessionTTL        time.Duration

	Stripe  StripeConfig
	Billing BillingConfig

	Observability ObservabilityConfig

	Bootstrap BootstrapConfig
}

// ObservabilityConfig controls tracing and metric export.
type ObservabilityConfig struct {
	ServiceName string

	TracingEnabled          bool
	TracingExporterEndpoint string
	TracingExporterProtocol string
	TracingSamplingRatio    float64
}

// StripeConfig holds processor credentials and per-plan price mappings.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	ReturnURL     string

	// Prices maps "<plan>:<period>" (for example "starter:monthly") to a
	// processor price identifier.
	Prices map[string]string
}

// BillingConfig holds plan-policy knobs that must stay injectable.
type BillingConfig struct {
	DefaultCommissionRate string
	TrialDays             int64
}

// BootstrapConfig controls startup seeding in self-hosted mode.
type BootstrapConfig struct {
	EnsureDefaultOrgAndUser bool
}

var ErrMissingDatabaseDSN = errors.New("missing_database_dsn")

// Load builds the configuration from environment variables.
func Load() (Config, error) {
	cfg := Config{
		Environment:       getEnv("BIZBOARD_ENV", "development"),
		HTTPAddr:          getEnv("BIZBOARD_HTTP_ADDR", ":8080"),
		DatabaseDSN:       strings.TrimSpace(os.Getenv("BIZBOARD_DATABASE_DSN")),
		SessionCookieName: getEnv("BIZBOARD_SESSION_COOKIE", "bizboard_session"),
		SessionTTL:        getEnvDuration("BIZBOARD_SESSION_TTL", 24*time.Hour),
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
			WebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
			ReturnURL:     getEnv("BIZBOARD_BILLING_RETURN_URL", "http://localhost:8080/settings/billing"),
			Prices:        loadPrices(),
		},
		Billing: BillingConfig{
			DefaultCommissionRate: getEnv("BIZBOARD_DEFAULT_COMMISSION_RATE", "0.05"),
			TrialDays:             getEnvInt64("BIZBOARD_TRIAL_DAYS", 14),
		},
		Observability: ObservabilityConfig{
			ServiceName:             getEnv("BIZBOARD_SERVICE_NAME", "bizboard"),
			TracingEnabled:          getEnvBool("BIZBOARD_TRACING_ENABLED", false),
			TracingExporterEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
			TracingExporterProtocol: getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			TracingSamplingRatio:    getEnvFloat("BIZBOARD_TRACING_SAMPLING_RATIO", 0.1),
		},
		Bootstrap: BootstrapConfig{
			EnsureDefaultOrgAndUser: getEnvBool("BIZBOARD_BOOTSTRAP_DEFAULT_ORG", true),
		},
	}
	if cfg.DatabaseDSN == "" && cfg.Environment == "production" {
		return Config{}, ErrMissingDatabaseDSN
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func loadPrices() map[string]string {
	prices := map[string]string{}
	pairs := map[string]string{
		"starter:monthly": "STRIPE_PRICE_STARTER_MONTHLY",
		"starter:annual":  "STRIPE_PRICE_STARTER_ANNUAL",
		"pro:monthly":     "STRIPE_PRICE_PRO_MONTHLY",
		"pro:annual":      "STRIPE_PRICE_PRO_ANNUAL",
	}
	for key, envName := range pairs {
		if value := strings.TrimSpace(os.Getenv(envName)); value != "" {
			prices[key] = value
		}
	}
	return prices
}

func getEnv(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(name string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
