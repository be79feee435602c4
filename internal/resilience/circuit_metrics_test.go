package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homestay-pricing/internal/resilience"
)

func TestBreakerMetricsTransitions(t *testing.T) {
	metrics := resilience.MustRegisterMetrics("homestay", prometheus.NewRegistry())

	breaker := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 1, Cooldown: 20 * time.Millisecond, Target: "backend"})
	ctx := context.Background()
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.BreakerState.WithLabelValues("backend")))

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerState.WithLabelValues("backend")))

	require.Eventually(t, func() bool {
		return breaker.Allow(ctx)
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.BreakerState.WithLabelValues("backend")))

	breaker.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.BreakerState.WithLabelValues("backend")))

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerTransitions.WithLabelValues("backend", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerTransitions.WithLabelValues("backend", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerTransitions.WithLabelValues("backend", "half_open", "closed")))
}
