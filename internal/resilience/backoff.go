package resilience

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff returns base*2^(attempt-1) spread by ±jitterPct (0.2 == 20%) and
// capped at max when max is positive.
func Backoff(base time.Duration, attempt int, jitterPct float64, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := base << shift
	if max > 0 && d > max {
		d = max
	}
	if jitterPct > 0 {
		spread := float64(d) * jitterPct
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date. It returns zero when the header is absent or unusable.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
