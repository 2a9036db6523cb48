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

// Gateway drivers.
const (
	GatewayREST    = "rest"
	GatewaySDK     = "sdk"
	GatewaySandbox = "sandbox"
)

// Order store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Obs groups the OBS_* logging, metrics and tracing switches.
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	Prometheus       bool
	MetricsBuckets   string
	Tracing          bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv     string
	Port       string
	APIPrefix  string
	SentryDSN  string
	BodyLimit  int64
	CORSOrigin []string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	PaymentGateway        string
	DefaultCurrency       string

	OrderStore    string
	RedisURL      string
	DatabaseURL   string
	DBAutoMigrate bool

	WebhookReplayTTL time.Duration
	IdempotencyTTL   time.Duration
	RateLimitWindow  time.Duration
	RateLimitMax     int
	LockTTL          time.Duration

	FulfilmentQueue   bool
	WorkerConcurrency int

	GatewayTimeout      time.Duration
	GatewayMaxAttempts  int
	RetryBase           time.Duration
	RetryJitter         float64
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	ShutdownTimeout time.Duration
	Obs             Obs
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	origins := splitAndTrim(k.String("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = splitAndTrim(k.String("CLIENT_ORIGIN"))
	}

	cfg := &Config{
		AppEnv:     valueOrDefault(k.String("APP_ENV"), "development"),
		Port:       valueOrDefault(k.String("PORT"), "5000"),
		APIPrefix:  normalisePrefix(valueOrDefault(k.String("API_PREFIX"), "/api")),
		SentryDSN:  strings.TrimSpace(k.String("SENTRY_DSN")),
		BodyLimit:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		CORSOrigin: origins,

		RazorpayKeyID:         strings.TrimSpace(k.String("RAZORPAY_KEY_ID")),
		RazorpayKeySecret:     strings.TrimSpace(k.String("RAZORPAY_KEY_SECRET")),
		RazorpayWebhookSecret: strings.TrimSpace(k.String("RAZORPAY_WEBHOOK_SECRET")),
		RazorpayBaseURL:       valueOrDefault(k.String("RAZORPAY_BASE_URL"), "https://api.razorpay.com"),
		PaymentGateway:        strings.ToLower(valueOrDefault(k.String("PAYMENT_GATEWAY"), GatewayREST)),
		DefaultCurrency:       strings.ToUpper(valueOrDefault(k.String("DEFAULT_CURRENCY"), "INR")),

		OrderStore:    strings.ToLower(valueOrDefault(k.String("ORDER_STORE"), StoreMemory)),
		RedisURL:      strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL:   strings.TrimSpace(k.String("DATABASE_URL")),
		DBAutoMigrate: parseBool(k.String("DB_AUTO_MIGRATE")),

		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWindow:  parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:     parseInt(k.String("RATE_LIMIT_MAX"), 30),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "5s"),

		FulfilmentQueue:   parseBool(k.String("FULFILMENT_QUEUE")),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),

		GatewayTimeout:      parseDuration(k.String("GATEWAY_TIMEOUT"), "10s"),
		GatewayMaxAttempts:  parseInt(k.String("GATEWAY_MAX_ATTEMPTS"), 1),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryJitter:         parseFloat(k.String("RETRY_JITTER"), 0.2),
		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		ShutdownTimeout: time.Duration(parseInt(k.String("SHUTDOWN_TIMEOUT_MS"), 15000)) * time.Millisecond,
		Obs: Obs{
			LogFormat:        strings.ToLower(valueOrDefault(k.String("OBS_LOG_FORMAT"), "json")),
			LogLevel:         strings.ToLower(valueOrDefault(k.String("OBS_LOG_LEVEL"), "info")),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "tokopay"),
			Prometheus:       parseBoolOr(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsBuckets:   strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
			Tracing:          parseBoolOr(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  strings.ToLower(valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp")),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PaymentGateway {
	case GatewayREST, GatewaySDK:
		if c.RazorpayKeyID == "" {
			return errors.New("RAZORPAY_KEY_ID is required")
		}
	case GatewaySandbox:
	default:
		return fmt.Errorf("PAYMENT_GATEWAY %q is not supported", c.PaymentGateway)
	}
	if c.RazorpayKeySecret == "" {
		return errors.New("RAZORPAY_KEY_SECRET is required")
	}
	if c.RazorpayWebhookSecret == "" {
		return errors.New("RAZORPAY_WEBHOOK_SECRET is required")
	}
	if c.RazorpayWebhookSecret == c.RazorpayKeySecret {
		return errors.New("RAZORPAY_WEBHOOK_SECRET must differ from RAZORPAY_KEY_SECRET")
	}
	switch c.OrderStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis order store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres order store")
		}
	default:
		return fmt.Errorf("ORDER_STORE %q is not supported", c.OrderStore)
	}
	if c.FulfilmentQueue && c.RedisURL == "" {
		return errors.New("REDIS_URL is required when FULFILMENT_QUEUE is enabled")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY %q is not an ISO 4217 code", c.DefaultCurrency)
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "5000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func normalisePrefix(prefix string) string {
	prefix = "/" + strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "/" {
		return ""
	}
	return prefix
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
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	return parseBoolOr(value, false)
}

func parseBoolOr(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad is Load for command entrypoints; it panics on error.
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
