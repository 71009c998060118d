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
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	DBMaxConns    int
	DBMinConns    int
	DBAutoMigrate bool

	AuthJWTSecret string
	AuthIssuer    string
	AuthAudience  string
	AuthAlgorithm string

	CurrencyCode     string
	CashRoundingStep decimal.Decimal
	StoreTimezone    *time.Location

	PaymentMethodsCacheTTL time.Duration
	CatalogCacheTTL        time.Duration
	ReportCacheTTL         time.Duration
	IdempotencyTTL         time.Duration

	LockTTL          time.Duration
	LockRetryBackoff time.Duration
	LockMaxWait      time.Duration

	SessionIdleTTL       time.Duration
	SessionSweepInterval time.Duration

	RateLimit    string
	MaxBodyBytes int64
	HSTSMaxAge   int

	QueueConcurrency int
	QueueMaxRetry    int

	LogFormat            string
	LogLevel             string
	ServiceName          string
	MetricsNamespace     string
	HTTPBucketsMS        string
	OTLPEndpoint         string
	TracingEnabled       bool
	TracingSamplingRatio float64

	PprofEnabled bool
	PprofUser    string
	PprofPass    string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	step, err := parseDecimal(k.String("CASH_ROUNDING_STEP"), "0")
	if err != nil {
		return nil, fmt.Errorf("CASH_ROUNDING_STEP: %w", err)
	}
	if step.IsNegative() {
		return nil, errors.New("CASH_ROUNDING_STEP must not be negative")
	}
	loc, err := time.LoadLocation(valueOrDefault(k.String("STORE_TIMEZONE"), "Local"))
	if err != nil {
		return nil, fmt.Errorf("STORE_TIMEZONE: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		DBMaxConns:    parseInt(k.String("DB_MAX_CONNS"), 10),
		DBMinConns:    parseInt(k.String("DB_MIN_CONNS"), 0),
		DBAutoMigrate: parseBool(k.String("DB_AUTO_MIGRATE")),

		AuthJWTSecret: k.String("AUTH_JWT_SECRET"),
		AuthIssuer:    strings.TrimSpace(k.String("AUTH_ISSUER")),
		AuthAudience:  strings.TrimSpace(k.String("AUTH_AUDIENCE")),
		AuthAlgorithm: strings.ToUpper(valueOrDefault(k.String("AUTH_ALGORITHM"), "HS256")),

		CurrencyCode:     strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "BRL")),
		CashRoundingStep: step,
		StoreTimezone:    loc,

		PaymentMethodsCacheTTL: parseDuration(k.String("PAYMENT_METHODS_CACHE_TTL"), "5m"),
		CatalogCacheTTL:        parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		ReportCacheTTL:         parseDuration(k.String("REPORT_CACHE_TTL"), "10m"),
		IdempotencyTTL:         parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		LockMaxWait:      parseDuration(k.String("LOCK_MAX_WAIT"), "2s"),

		SessionIdleTTL:       parseDuration(k.String("SESSION_IDLE_TTL"), "2h"),
		SessionSweepInterval: parseDuration(k.String("SESSION_SWEEP_INTERVAL"), "5m"),

		RateLimit:    valueOrDefault(k.String("RATE_LIMIT"), "300-M"),
		MaxBodyBytes: int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 64<<10)),
		HSTSMaxAge:   parseInt(k.String("SECURE_HSTS_MAX_AGE"), 0),

		QueueConcurrency: parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueueMaxRetry:    parseInt(k.String("QUEUE_MAX_RETRY"), 10),

		LogFormat:            valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		ServiceName:          valueOrDefault(k.String("OBS_SERVICE_NAME"), "toko-pos"),
		MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko_pos"),
		HTTPBucketsMS:        k.String("OBS_HTTP_BUCKETS_MS"),
		OTLPEndpoint:         strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		TracingEnabled:       parseBool(k.String("OBS_TRACING_ENABLED")),
		TracingSamplingRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),

		PprofEnabled: parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:    strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:    strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AuthJWTSecret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
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

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
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
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	return decimal.NewFromString(valueOrDefault(value, fallback))
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
