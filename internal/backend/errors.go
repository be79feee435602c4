package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork covers transport failures: refused connections, timeouts,
	// an open circuit breaker.
	ErrNetwork = errors.New("backend: network failure")
	// ErrServer is returned for non-success HTTP statuses.
	ErrServer = errors.New("backend: server error")
	// ErrMalformed is returned when a response body cannot be decoded.
	ErrMalformed = errors.New("backend: malformed response")
)

// Error describes a failed backend call. errors.Is matches both the Kind
// sentinel and the underlying cause.
type Error struct {
	Op     string
	Kind   error
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %v (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "network"
	}
}
