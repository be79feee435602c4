package resilience

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the breaker and retry collectors.
type Metrics struct {
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	Retries            *prometheus.CounterVec
}

var active atomic.Pointer[Metrics]

// MustRegisterMetrics registers the collectors on reg (default registerer
// when nil) and makes them the ones breakers and clients report to.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BreakerState: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_state",
			Help:      "Circuit breaker state per upstream: 0=closed, 1=open, 2=half-open.",
		}, []string{"target"})),
		BreakerTransitions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_transitions_total",
			Help:      "Circuit breaker state transitions per upstream.",
		}, []string{"target", "from", "to"})),
		Retries: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Upstream requests retried after a failed attempt.",
		}, []string{"target"})),
	}
	active.Store(m)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(fmt.Errorf("register resilience metric: %w", err))
}

func stateValue(s State) float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

func observeState(target string, s State) {
	if m := active.Load(); m != nil {
		m.BreakerState.WithLabelValues(target).Set(stateValue(s))
	}
}

func observeTransition(target string, from, to State) {
	if m := active.Load(); m != nil {
		m.BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	}
}

func observeRetry(target string) {
	if m := active.Load(); m != nil {
		m.Retries.WithLabelValues(target).Inc()
	}
}
