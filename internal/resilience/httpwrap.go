package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with per-attempt timeouts, retries and a
// circuit breaker. 429 and 5xx responses and transport errors are retried.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	// BaseBackoff is the first retry delay (100ms); later ones double.
	BaseBackoff time.Duration
	// MaxBackoff caps any single delay, including a Retry-After hint.
	MaxBackoff  time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout bounds each attempt, body read included. Zero falls back to
	// Client.Timeout.
	Timeout time.Duration
}

// StatusError reports a retryable response that exhausted the retry budget.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "resilience: upstream responded " + e.Status
}

// Do sends req until it succeeds, the attempts run out, the breaker opens or
// ctx ends. The body is buffered once so every attempt can replay it.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	attempts := cl.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			if lastErr == nil {
				return nil, ErrOpenCircuit
			}
			return nil, errors.Join(ErrOpenCircuit, lastErr)
		}
		resp, err := cl.attempt(ctx, req, body)
		var wait time.Duration
		switch {
		case err != nil:
			lastErr = err
		case !retryableStatus(resp.StatusCode):
			cl.report(ctx, true)
			return resp, nil
		default:
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
			wait = retryAfter(resp.Header, time.Now())
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
		}
		cl.report(ctx, false)
		if ctx.Err() != nil || attempt == attempts {
			break
		}

		if d := Backoff(cl.BaseBackoff, attempt, cl.Jitter, cl.MaxBackoff); d > wait {
			wait = d
		}
		if cl.MaxBackoff > 0 && wait > cl.MaxBackoff {
			wait = cl.MaxBackoff
		}
		if cl.Breaker != nil {
			observeRetry(cl.Breaker.Target())
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, lastErr
}

func (cl HTTPClient) report(ctx context.Context, ok bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, ok)
	}
}

func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	out := req.Clone(callCtx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		out.ContentLength = int64(len(body))
	}
	resp, err := cl.Client.Do(out)
	if err != nil {
		cancel()
		return nil, err
	}
	// The attempt deadline must cover reading the body too.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	return data, nil
}
