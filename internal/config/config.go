package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	HTTPBodyLimit      int64
	ShutdownTimeout    time.Duration

	Backend     BackendConfig
	Pricing     PricingConfig
	Cart        CartConfig
	Limits      RateLimitConfig
	Obs         ObsConfig
	Health      HealthConfig
	Idempotency time.Duration
}

// BackendConfig points the pricing engine at the upstream homestay API. An
// empty BaseURL selects the offline mock backend.
type BackendConfig struct {
	BaseURL         string
	Timeout         time.Duration
	MaxAttempts     int
	RetryBase       time.Duration
	RetryMax        time.Duration
	BreakerMinReqs  int
	BreakerRatio    float64
	BreakerCooldown time.Duration
}

// PricingConfig tunes the shared pricing caches and checkout fan-out.
type PricingConfig struct {
	TablePendingLinger  time.Duration
	CheckoutConcurrency int
}

// CartConfig controls cart persistence.
type CartConfig struct {
	KeyPrefix string
	// TTL expires persisted carts in Redis; zero keeps them forever.
	TTL time.Duration
}

// RateLimitConfig bounds cart writes per owner and quotes per client IP. A
// zero Max disables the limiter.
type RateLimitConfig struct {
	CartWritesMax    int
	CartWritesWindow time.Duration
	QuoteMax         int
	QuoteWindow      time.Duration
}

// ObsConfig controls logging, metrics, tracing and profiling.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string
}

// HealthConfig sets readiness probe timeouts.
type HealthConfig struct {
	RedisTimeout   time.Duration
	BackendTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		HTTPBodyLimit:      int64(parseInt(k.String("HTTP_BODY_LIMIT"), 1<<20)),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		Backend: BackendConfig{
			BaseURL:         strings.TrimRight(strings.TrimSpace(k.String("BACKEND_BASE_URL")), "/"),
			Timeout:         parseDuration(k.String("BACKEND_TIMEOUT"), "10s"),
			MaxAttempts:     parseInt(k.String("BACKEND_MAX_ATTEMPTS"), 3),
			RetryBase:       parseDuration(k.String("BACKEND_RETRY_BASE"), "200ms"),
			RetryMax:        parseDuration(k.String("BACKEND_RETRY_MAX"), "2s"),
			BreakerMinReqs:  parseInt(k.String("BACKEND_BREAKER_MIN_REQUESTS"), 10),
			BreakerRatio:    parseFloat(k.String("BACKEND_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerCooldown: parseDuration(k.String("BACKEND_BREAKER_COOLDOWN"), "30s"),
		},
		Pricing: PricingConfig{
			TablePendingLinger:  parseDuration(k.String("PRICING_TABLE_PENDING_LINGER"), "5s"),
			CheckoutConcurrency: parseInt(k.String("CHECKOUT_MAX_CONCURRENCY"), 8),
		},
		Cart: CartConfig{
			KeyPrefix: strings.TrimSpace(k.String("CART_KEY_PREFIX")),
			TTL:       parseDuration(k.String("CART_TTL"), "0s"),
		},
		Limits: RateLimitConfig{
			CartWritesMax:    parseInt(k.String("RATE_LIMIT_CART_WRITES"), 60),
			CartWritesWindow: parseDuration(k.String("RATE_LIMIT_CART_WINDOW"), "1m"),
			QuoteMax:         parseInt(k.String("RATE_LIMIT_QUOTE"), 120),
			QuoteWindow:      parseDuration(k.String("RATE_LIMIT_QUOTE_WINDOW"), "1m"),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "homestay"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			PprofEnabled:     parseBool(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
		Health: HealthConfig{
			RedisTimeout:   time.Duration(parseInt(k.String("HEALTH_READY_REDIS_TIMEOUT_MS"), 300)) * time.Millisecond,
			BackendTimeout: time.Duration(parseInt(k.String("HEALTH_READY_BACKEND_TIMEOUT_MS"), 300)) * time.Millisecond,
		},
		Idempotency: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("BACKEND_BASE_URL must be an absolute http(s) URL")
		}
	}
	if c.Backend.MaxAttempts < 1 {
		return errors.New("BACKEND_MAX_ATTEMPTS must be at least 1")
	}
	if c.Pricing.TablePendingLinger < 0 {
		return errors.New("PRICING_TABLE_PENDING_LINGER must not be negative")
	}
	if c.HTTPBodyLimit <= 0 {
		return errors.New("HTTP_BODY_LIMIT must be positive")
	}
	if c.Obs.SamplingRatio < 0 || c.Obs.SamplingRatio > 1 {
		return errors.New("OBS_TRACING_SAMPLING_RATIO must be within [0,1]")
	}
	return nil
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

// UsesMockBackend reports whether pricing runs against the offline mock.
func (c *Config) UsesMockBackend() bool {
	return c.Backend.BaseURL == ""
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

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
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
