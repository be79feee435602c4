package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noah-isme/homestay-pricing/internal/health"
)

func ok(context.Context) error { return nil }

type readyBody struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Details map[string]int    `json:"details"`
}

func TestLive(t *testing.T) {
	handler := health.Handler{}
	rr := httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"status":"ok"}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestReadySuccess(t *testing.T) {
	handler := health.Handler{
		Checks: []health.Check{
			{Name: "redis", Probe: ok, Timeout: 50 * time.Millisecond},
			{Name: "backend", Probe: ok},
		},
		Details: func() any { return map[string]int{"totals": 3} },
	}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body readyBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "ok" || body.Checks["redis"] != "ok" || body.Checks["backend"] != "ok" {
		t.Fatalf("unexpected status %#v", body.Checks)
	}
	if body.Details["totals"] != 3 {
		t.Fatalf("expected details, got %#v", body.Details)
	}
}

func TestReadyFailure(t *testing.T) {
	handler := health.Handler{Checks: []health.Check{
		{Name: "redis", Probe: func(context.Context) error { return errors.New("redis down") }},
	}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rr.Code)
	}
	var body readyBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "degraded" || body.Checks["redis"] != "redis down" {
		t.Fatalf("unexpected status %#v", body.Checks)
	}
}

func TestReadyOptionalFailureStaysReady(t *testing.T) {
	handler := health.Handler{Checks: []health.Check{
		{Name: "backend", Optional: true, Probe: func(context.Context) error { return errors.New("circuit open") }},
	}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestReadyProbeTimeout(t *testing.T) {
	handler := health.Handler{Checks: []health.Check{{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rr.Code)
	}
}

func TestReadyRunsChecksConcurrently(t *testing.T) {
	var running atomic.Int32
	release := make(chan struct{})
	probe := func(ctx context.Context) error {
		if running.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	handler := health.Handler{Checks: []health.Check{
		{Name: "redis", Probe: probe, Timeout: time.Second},
		{Name: "backend", Probe: probe, Timeout: time.Second},
	}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected both probes to meet, got %d %s", rr.Code, rr.Body.String())
	}
}
