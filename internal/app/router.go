package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/homestay-pricing/internal/cart"
	"github.com/noah-isme/homestay-pricing/internal/checkout"
	"github.com/noah-isme/homestay-pricing/internal/common"
	"github.com/noah-isme/homestay-pricing/internal/health"
	"github.com/noah-isme/homestay-pricing/internal/obs"
	"github.com/noah-isme/homestay-pricing/internal/pricing"
	"github.com/noah-isme/homestay-pricing/internal/ratelimit"
	"github.com/noah-isme/homestay-pricing/internal/resilience"
	"github.com/noah-isme/homestay-pricing/internal/security"
)

// RouterOptions toggles instrumentation that needs process-wide state.
type RouterOptions struct {
	Tracing     bool
	HTTPMetrics *obs.HTTPMetrics
}

// Router mounts health, metrics and the /api/v1 cart and pricing routes.
func Router(d *Dependencies, opts RouterOptions) http.Handler {
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.AnnotateMiddleware)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: true, NoStore: true}.Middleware)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	healthHandler := health.Handler{
		Checks:  readinessChecks(d),
		Details: func() any { return d.Pricing.Stats() },
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	cartHandler := &cart.Handler{Carts: d.Carts, Validator: d.Validator}
	checkoutHandler := &checkout.Handler{Svc: d.Checkout, Carts: d.Carts}
	pricingHandler := &pricing.Handler{Service: d.Pricing, Validator: d.Validator}

	onLimiterError := func(err error) {
		d.Logger.Warn().Err(err).Msg("rate limiter unavailable")
	}
	cartWrites := ratelimit.Handler{
		Limiter: d.CartLimiter,
		Config: ratelimit.Config{
			Scope:  "cart",
			Key:    ratelimit.ByOwner,
			Window: cfg.Limits.CartWritesWindow,
			Max:    cfg.Limits.CartWritesMax,
		},
		OnError: onLimiterError,
	}
	quotes := ratelimit.Handler{
		Limiter: d.QuoteLimiter,
		Config: ratelimit.Config{
			Scope:  "quote",
			Key:    ratelimit.ByClientIP,
			Window: cfg.Limits.QuoteWindow,
			Max:    cfg.Limits.QuoteMax,
		},
		OnError: onLimiterError,
	}
	var idem common.Idem
	if d.Redis != nil {
		idem = common.Idem{R: d.Redis, TTL: cfg.Idempotency}
	}
	bodyLimit := security.BodyLimit{Max: cfg.HTTPBodyLimit}

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/carts/{owner}", func(c chi.Router) {
			c.Get("/", cartHandler.Get)
			c.Get("/count", cartHandler.Count)
			c.Get("/items/{roomID}", cartHandler.GetItem)
			c.Get("/summary", checkoutHandler.Summary)
			c.Get("/breakdown", checkoutHandler.Breakdown)

			c.Group(func(g chi.Router) {
				g.Use(cartWrites.Middleware, idem.Middleware, bodyLimit.Middleware)
				g.Post("/items", cartHandler.AddItem)
				g.Delete("/items/{roomID}", cartHandler.RemoveItem)
				g.Delete("/", cartHandler.Clear)
			})
		})

		v.Route("/pricing", func(p chi.Router) {
			p.With(quotes.Middleware, bodyLimit.Middleware).Post("/quote", pricingHandler.Quote)
			p.Get("/tables/{roomTypeID}", pricingHandler.Table)
			p.Get("/stats", pricingHandler.Stats)
		})
	})

	return r
}

func readinessChecks(d *Dependencies) []health.Check {
	var checks []health.Check
	if d.Redis != nil {
		rdb := d.Redis
		checks = append(checks, health.Check{
			Name:    "redis",
			Timeout: d.Config.Health.RedisTimeout,
			Probe:   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	if d.Breaker != nil && !d.Config.UsesMockBackend() {
		breaker := d.Breaker
		checks = append(checks, health.Check{
			Name:     "backend",
			Timeout:  d.Config.Health.BackendTimeout,
			Optional: true,
			Probe: func(context.Context) error {
				if breaker.State() == resilience.Open {
					return errors.New("circuit open")
				}
				return nil
			},
		})
	}
	return checks
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func newPprofMux() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/cmdline", pprof.Cmdline)
	r.HandleFunc("/profile", pprof.Profile)
	r.HandleFunc("/symbol", pprof.Symbol)
	r.HandleFunc("/trace", pprof.Trace)
	r.HandleFunc("/*", pprof.Index)
	return r
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
