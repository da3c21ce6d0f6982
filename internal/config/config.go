package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv              string
	Port                string
	DatabaseURL         string
	RedisURL            string
	JWTSecret           string
	JWTIssuer           string
	JWTAudience         string
	CORSAllowedOrigins  []string
	RulesFile           string
	StoreDriver         string
	CommitTimeout       time.Duration
	LockTTL             time.Duration
	LockRetryBackoff    time.Duration
	IdempotencyTTL      time.Duration
	SessionTTL          time.Duration
	CatalogCacheTTL     time.Duration
	ReportCacheTTL      time.Duration
	RateLimit           string
	CommitRateMax       int
	CommitRateWindow    time.Duration
	QueueConcurrency    int
	QueuePollInterval   time.Duration
	AdminUser           string
	AdminPassword       string
	NotifyWebhookURL    string
	NotifyWebhookSecret string
	NotifyTimeout       time.Duration
	NotifyMaxAttempts   int
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	MaxBodyBytes        int64
	SecurityHeaders     bool
	AuditEnabled        bool
	AuditSamplingRate   float64
	RunMigrations       bool
	LogFormat           string
	LogLevel            string
	OTLPEndpoint        string
	ServiceName         string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:         k.String("DATABASE_URL"),
		RedisURL:            k.String("REDIS_URL"),
		JWTSecret:           k.String("JWT_SECRET"),
		JWTIssuer:           strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:         strings.TrimSpace(k.String("JWT_AUDIENCE")),
		CORSAllowedOrigins:  splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RulesFile:           strings.TrimSpace(k.String("RULES_FILE")),
		StoreDriver:         strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), DriverPostgres)),
		CommitTimeout:       parseDuration(k.String("COMMIT_TIMEOUT"), "5s"),
		LockTTL:             parseDuration(k.String("LOCK_TTL"), "10s"),
		LockRetryBackoff:    parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		SessionTTL:          parseDuration(k.String("SESSION_TTL"), "2h"),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		ReportCacheTTL:      parseDuration(k.String("REPORT_CACHE_TTL"), "10m"),
		RateLimit:           valueOrDefault(k.String("RATE_LIMIT"), "60-M"),
		CommitRateMax:       parseInt(k.String("COMMIT_RATE_MAX"), 20),
		CommitRateWindow:    parseDuration(k.String("COMMIT_RATE_WINDOW"), "1m"),
		QueueConcurrency:    parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueuePollInterval:   parseDuration(k.String("QUEUE_POLL_INTERVAL"), "30s"),
		AdminUser:           strings.TrimSpace(k.String("ADMIN_USER")),
		AdminPassword:       k.String("ADMIN_PASSWORD"),
		NotifyWebhookURL:    strings.TrimSpace(k.String("NOTIFY_WEBHOOK_URL")),
		NotifyWebhookSecret: k.String("NOTIFY_WEBHOOK_SECRET"),
		NotifyTimeout:       parseDuration(k.String("NOTIFY_TIMEOUT"), "5s"),
		NotifyMaxAttempts:   parseInt(k.String("NOTIFY_MAX_ATTEMPTS"), 3),
		BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		MaxBodyBytes:        int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),
		SecurityHeaders:     k.String("SECURITY_HEADERS") == "" || parseBool(k.String("SECURITY_HEADERS")),
		AuditEnabled:        k.String("AUDIT_ENABLED") == "" || parseBool(k.String("AUDIT_ENABLED")),
		AuditSamplingRate:   parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1),
		RunMigrations:       parseBool(k.String("RUN_MIGRATIONS")),
		LogFormat:           valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:            valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		OTLPEndpoint:        strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ServiceName:         valueOrDefault(k.String("OTEL_SERVICE_NAME"), "backend-kasir"),
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q", DriverPostgres, DriverMemory)
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.AdminUser != "" && cfg.AdminPassword == "" {
		return nil, errors.New("ADMIN_PASSWORD is required when ADMIN_USER is set")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
