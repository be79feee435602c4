// Package health serves liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/homestay-pricing/internal/common"
)

const defaultProbeTimeout = 300 * time.Millisecond

var draining atomic.Bool

// SetReady flips process readiness. Shutdown sets it to false so load
// balancers drain the instance before the listener closes.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Check is a named readiness probe. Optional checks report their status but
// never fail readiness; carts fall back to memory storage without Redis and
// pricing falls back to cached or caller supplied values without the backend.
type Check struct {
	Name     string
	Probe    Probe
	Timeout  time.Duration
	Optional bool
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
	// Details, when set, is embedded in the readiness body.
	Details func() any
}

type readiness struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Details any               `json:"details,omitempty"`
}

// Live answers 200 while the process is serving.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every check concurrently, each under its own timeout. Required
// failures answer 503 "degraded"; a draining process answers 503 "draining"
// without probing.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, readiness{Status: "draining"})
		return
	}

	results := make([]error, len(h.Checks))
	var g errgroup.Group
	for i, c := range h.Checks {
		g.Go(func() error {
			results[i] = run(r.Context(), c)
			return nil
		})
	}
	_ = g.Wait()

	body := readiness{Status: "ok", Checks: make(map[string]string, len(h.Checks))}
	status := http.StatusOK
	for i, c := range h.Checks {
		if err := results[i]; err != nil {
			body.Checks[c.Name] = err.Error()
			if !c.Optional {
				body.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
			continue
		}
		body.Checks[c.Name] = "ok"
	}
	if h.Details != nil {
		body.Details = h.Details()
	}
	common.JSON(w, status, body)
}

func run(ctx context.Context, c Check) error {
	if c.Probe == nil {
		return nil
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Probe(ctx)
}
