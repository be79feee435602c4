// Package app wires configuration into the services and HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/homestay-pricing/internal/backend"
	"github.com/noah-isme/homestay-pricing/internal/cart"
	"github.com/noah-isme/homestay-pricing/internal/checkout"
	"github.com/noah-isme/homestay-pricing/internal/common"
	"github.com/noah-isme/homestay-pricing/internal/config"
	"github.com/noah-isme/homestay-pricing/internal/pricing"
	"github.com/noah-isme/homestay-pricing/internal/ratelimit"
	"github.com/noah-isme/homestay-pricing/internal/resilience"
)

// Dependencies enumerates the services shared across handlers.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	// Redis is nil when REDIS_URL is empty; carts then live in memory.
	Redis        *redis.Client
	Validator    *validator.Validate
	Backend      pricing.Backend
	Breaker      *resilience.Breaker
	Pricing      *pricing.Service
	Carts        *cart.Registry
	Checkout     *checkout.Service
	CartLimiter  ratelimit.Limiter
	QuoteLimiter ratelimit.Limiter
}

// Options overrides pieces of the default wiring. Tests use it to inject a
// Redis client or backend.
type Options struct {
	Redis   *redis.Client
	Backend pricing.Backend
}

// New builds every dependency from cfg. The returned close function releases
// the Redis connection when New opened it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("app: config is required")
	}
	deps := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Validator: common.NewValidator(),
	}
	closeFn := func() {}

	rdb := opts.Redis
	if rdb == nil && cfg.RedisURL != "" {
		client, err := NewRedis(ctx, cfg.RedisURL, cfg.Obs.MetricsEnabled, logger)
		if err != nil {
			return nil, nil, err
		}
		rdb = client
		closeFn = func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}
	}
	deps.Redis = rdb

	deps.Breaker = resilience.NewBreaker(resilience.BreakerConfig{
		MinRequests:  cfg.Backend.BreakerMinReqs,
		FailureRatio: cfg.Backend.BreakerRatio,
		Cooldown:     cfg.Backend.BreakerCooldown,
		Target:       "backend",
		Logger:       &deps.Logger,
	})

	deps.Backend = opts.Backend
	if deps.Backend == nil {
		b, err := NewBackend(cfg.Backend, deps.Breaker, logger)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		deps.Backend = b
	}

	svc, err := pricing.NewService(pricing.ServiceConfig{
		Backend:     deps.Backend,
		TableLinger: cfg.Pricing.TablePendingLinger,
		Logger:      &deps.Logger,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	deps.Pricing = svc
	deps.Checkout = &checkout.Service{
		Pricing:        svc,
		Logger:         &deps.Logger,
		MaxConcurrency: cfg.Pricing.CheckoutConcurrency,
	}

	var kv cart.KV = cart.NewMemoryKV()
	if rdb != nil {
		kv = cart.NewRedisKV(rdb, cfg.Cart.TTL)
	}
	deps.Carts = cart.NewRegistry(kv, cfg.Cart.KeyPrefix, &deps.Logger)

	deps.CartLimiter, deps.QuoteLimiter, err = NewLimiters(rdb, cfg.Cart.KeyPrefix)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return deps, closeFn, nil
}

// NewRedis connects to Redis with tracing and, optionally, metrics
// instrumentation and verifies the connection.
func NewRedis(ctx context.Context, rawURL string, instrumentMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if instrumentMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewBackend returns the upstream REST client, or the offline mock when no
// base URL is configured.
func NewBackend(cfg config.BackendConfig, breaker *resilience.Breaker, logger zerolog.Logger) (pricing.Backend, error) {
	if cfg.BaseURL == "" {
		logger.Warn().Msg("BACKEND_BASE_URL not set; pricing against the offline mock backend")
		return backend.Mock{}, nil
	}
	doer := resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker:     breaker,
		BaseBackoff: cfg.RetryBase,
		MaxBackoff:  cfg.RetryMax,
		MaxAttempts: cfg.MaxAttempts,
		Jitter:      0.2,
		Timeout:     cfg.Timeout,
	}
	client, err := backend.NewClient(backend.Config{BaseURL: cfg.BaseURL, HTTP: doer, Logger: &logger})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewLimiters builds the cart write limiter and the quote limiter. Redis
// shares counters across replicas; without it counters stay in process.
func NewLimiters(rdb *redis.Client, prefix string) (cartLimiter, quoteLimiter ratelimit.Limiter, err error) {
	if rdb == nil {
		return ratelimit.NewMemoryFixed(prefix+"ratelimit"), ratelimit.NewMemoryFixed(prefix+"ratelimit"), nil
	}
	quote, err := ratelimit.NewRedisFixed(rdb, prefix+"ratelimit")
	if err != nil {
		return nil, nil, fmt.Errorf("rate limit store: %w", err)
	}
	return ratelimit.Sliding{Client: rdb, Prefix: prefix + "ratelimit:"}, quote, nil
}
