// Package resilience guards calls to the upstream homestay API with retries
// and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cooldown expires.
	Open
	// HalfOpen lets a single probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero values pick the defaults noted on each
// field.
type BreakerConfig struct {
	// MinRequests outcomes must be observed before the breaker may open (1).
	MinRequests int
	// FailureRatio at or above which the breaker opens (0.5).
	FailureRatio float64
	// Cooldown keeps the breaker open before a probe is allowed (30s).
	Cooldown time.Duration
	// Window is the number of most recent outcomes the ratio is computed
	// over (2*MinRequests).
	Window int
	// Target names the guarded dependency on logs and metrics ("default").
	Target string
	Logger *zerolog.Logger
}

// Breaker is a failure-ratio circuit breaker over a rolling window of
// outcomes.
type Breaker struct {
	mu     sync.Mutex
	cfg    BreakerConfig
	now    func() time.Time
	logger zerolog.Logger

	state    State
	openedAt time.Time
	probing  bool

	ring     []bool // true marks a failure
	next     int
	filled   int
	failures int
}

// NewBreaker builds a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Window < cfg.MinRequests {
		cfg.Window = 2 * cfg.MinRequests
	}
	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	b := &Breaker{
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
		ring:   make([]bool, cfg.Window),
	}
	observeState(cfg.Target, Closed)
	return b
}

// Target returns the dependency name the breaker guards.
func (b *Breaker) Target() string { return b.cfg.Target }

// Allow reports whether a request may proceed. Once the cooldown has passed
// an open breaker moves to half-open and admits exactly one probe; further
// requests are refused until that probe is reported.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.transitionLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an admitted request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.transitionLocked(ctx, Closed)
		} else {
			b.transitionLocked(ctx, Open)
		}
		return
	}

	b.recordLocked(!success)
	if b.filled < b.cfg.MinRequests {
		return
	}
	if float64(b.failures)/float64(b.filled) >= b.cfg.FailureRatio {
		b.transitionLocked(ctx, Open)
	}
}

// State returns the current state. An open breaker whose cooldown elapsed
// still reports Open until the next Allow moves it to half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) recordLocked(failed bool) {
	if b.filled == len(b.ring) {
		if b.ring[b.next] {
			b.failures--
		}
	} else {
		b.filled++
	}
	b.ring[b.next] = failed
	if failed {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.ring)
}

func (b *Breaker) resetWindowLocked() {
	clear(b.ring)
	b.next, b.filled, b.failures = 0, 0, 0
}

func (b *Breaker) transitionLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.resetWindowLocked()
	observeState(b.cfg.Target, to)
	observeTransition(b.cfg.Target, from, to)

	evt := b.loggerFor(ctx).Warn()
	if to == Closed {
		evt = b.loggerFor(ctx).Info()
	}
	evt = evt.Str("target", b.cfg.Target).Str("from_state", from.String()).Str("to_state", to.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &b.logger
}
