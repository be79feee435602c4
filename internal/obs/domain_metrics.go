package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingLookupsTotal counts cache lookups by cache and outcome (hit, shared, miss).
	PricingLookupsTotal *prometheus.CounterVec
	// PricingFallbacksTotal counts resolutions answered from a fallback value.
	PricingFallbacksTotal *prometheus.CounterVec
	// BackendRequestsTotal counts upstream backend calls by endpoint and outcome.
	BackendRequestsTotal *prometheus.CounterVec
	// BackendRequestLatency records upstream call latency in milliseconds.
	BackendRequestLatency *prometheus.HistogramVec
	// CartMutationsTotal counts cart mutations by operation and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// CartPersistFailures counts failed cart persistence writes.
	CartPersistFailures prometheus.Counter
	// RateLimitedTotal counts requests rejected by a rate limiter, by scope.
	RateLimitedTotal *prometheus.CounterVec
	// IdempotentReplaysTotal counts writes rejected as replays.
	IdempotentReplaysTotal prometheus.Counter
)

// MustRegisterDomainMetrics creates the pricing, backend, cart and request
// protection collectors and registers them on reg (default registerer when
// nil). Only the first call has any effect; the Observe helpers are no-ops
// before it.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingLookupsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_cache_lookups_total",
			Help:      "Count of pricing cache lookups by cache and outcome.",
		}, []string{"cache", "result"}))
		PricingFallbacksTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_fallbacks_total",
			Help:      "Count of pricing resolutions served from a fallback value.",
		}, []string{"resolver", "reason"}))
		BackendRequestsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Count of upstream backend requests by endpoint and outcome.",
		}, []string{"endpoint", "result"}))
		BackendRequestLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_ms",
			Help:      "Latency of upstream backend requests in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"endpoint"}))
		CartMutationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and outcome.",
		}, []string{"op", "result"}))
		CartPersistFailures = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_persist_failures_total",
			Help:      "Number of cart persistence writes that failed.",
		}))
		RateLimitedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Count of requests rejected by a rate limiter.",
		}, []string{"scope"}))
		IdempotentReplaysTotal = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotent_replays_total",
			Help:      "Number of write requests rejected as idempotent replays.",
		}))
	})
}

// ObservePricingLookup records a cache lookup outcome when domain metrics are registered.
func ObservePricingLookup(cache, result string) {
	if PricingLookupsTotal == nil {
		return
	}
	PricingLookupsTotal.WithLabelValues(cache, result).Inc()
}

// ObservePricingFallback records a fallback resolution when domain metrics are registered.
func ObservePricingFallback(resolver, reason string) {
	if PricingFallbacksTotal == nil {
		return
	}
	PricingFallbacksTotal.WithLabelValues(resolver, reason).Inc()
}

// ObserveBackendRequest records an upstream call outcome and latency.
func ObserveBackendRequest(endpoint, result string, millis float64) {
	if BackendRequestsTotal != nil {
		BackendRequestsTotal.WithLabelValues(endpoint, result).Inc()
	}
	if BackendRequestLatency != nil {
		BackendRequestLatency.WithLabelValues(endpoint).Observe(millis)
	}
}

// ObserveCartMutation records a cart mutation outcome.
func ObserveCartMutation(op, result string) {
	if CartMutationsTotal == nil {
		return
	}
	CartMutationsTotal.WithLabelValues(op, result).Inc()
}

// ObserveCartPersistFailure records a failed persistence write.
func ObserveCartPersistFailure() {
	if CartPersistFailures == nil {
		return
	}
	CartPersistFailures.Inc()
}

// ObserveRateLimited records a request rejected by the named limiter.
func ObserveRateLimited(scope string) {
	if RateLimitedTotal == nil {
		return
	}
	RateLimitedTotal.WithLabelValues(scope).Inc()
}

// ObserveIdempotentReplay records a rejected replay.
func ObserveIdempotentReplay() {
	if IdempotentReplaysTotal == nil {
		return
	}
	IdempotentReplaysTotal.Inc()
}
