package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homestay-pricing/internal/app"
	"github.com/noah-isme/homestay-pricing/internal/config"
	"github.com/noah-isme/homestay-pricing/internal/pricing"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:        "test",
		HTTPBodyLimit: 1 << 16,
		Backend:       config.BackendConfig{MaxAttempts: 1},
		Pricing:       config.PricingConfig{TablePendingLinger: time.Second, CheckoutConcurrency: 4},
		Cart:          config.CartConfig{KeyPrefix: "hs:"},
		Limits: config.RateLimitConfig{
			CartWritesMax:    3,
			CartWritesWindow: time.Minute,
			QuoteMax:         10,
			QuoteWindow:      time.Minute,
		},
		Idempotency: time.Hour,
	}
}

func newServer(t *testing.T, cfg *config.Config, opts app.Options) (http.Handler, *app.Dependencies) {
	t.Helper()
	deps, closeFn, err := app.New(context.Background(), cfg, zerolog.Nop(), opts)
	require.NoError(t, err)
	t.Cleanup(closeFn)
	return app.Router(deps, app.RouterOptions{}), deps
}

func call(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// Friday 2024-06-07 to Sunday 2024-06-09: one normal and one weekend night
// on the mock backend.
const weekendItem = `{"roomID":1,"roomTypeID":2,"homeStayID":10,"price":650000,` +
	`"checkInDate":"2024-06-07T14:00:00+07:00","checkOutDate":"2024-06-09T12:00:00+07:00"}`

func TestCartToCheckoutAgainstMockBackend(t *testing.T) {
	h, deps := newServer(t, testConfig(), app.Options{})
	require.Nil(t, deps.Redis)

	rr := call(t, h, http.MethodPost, "/api/v1/carts/dev-1/items", weekendItem)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = call(t, h, http.MethodGet, "/api/v1/carts/dev-1/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var summary struct {
		Data struct {
			GrandTotal pricing.Money `json:"grandTotal"`
			Degraded   bool          `json:"degraded"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Equal(t, pricing.Money(700_000), summary.Data.GrandTotal)
	require.False(t, summary.Data.Degraded)

	rr = call(t, h, http.MethodGet, "/api/v1/carts/dev-1/breakdown", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var detailed struct {
		Data struct {
			Nights    int               `json:"nights"`
			Breakdown pricing.Breakdown `json:"breakdown"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detailed))
	require.Equal(t, 2, detailed.Data.Nights)
	require.Equal(t, 1, detailed.Data.Breakdown.Weekend.Count)
	require.Equal(t, pricing.Money(400_000), detailed.Data.Breakdown.Weekend.Price)

	rr = call(t, h, http.MethodGet, "/api/v1/pricing/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"totals":1`)

	rr = call(t, h, http.MethodDelete, "/api/v1/carts/dev-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = call(t, h, http.MethodGet, "/api/v1/carts/dev-1/count", "")
	require.JSONEq(t, `{"data":{"count":0}}`, rr.Body.String())
}

func TestQuoteAndHealth(t *testing.T) {
	h, _ := newServer(t, testConfig(), app.Options{})

	body := `{"roomTypeID":2,"checkInDate":"2024-06-07","checkOutDate":"2024-06-09","fallbackPrice":1}`
	rr := call(t, h, http.MethodPost, "/api/v1/pricing/quote", body)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total":{"value":700000,"degraded":false}`)
	require.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))

	rr = call(t, h, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, h, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"totals":1`)
}

func TestCartWritesAreRateLimitedPerOwner(t *testing.T) {
	h, _ := newServer(t, testConfig(), app.Options{})

	for i := 0; i < 3; i++ {
		rr := call(t, h, http.MethodDelete, "/api/v1/carts/busy/items/1", "")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := call(t, h, http.MethodDelete, "/api/v1/carts/busy/items/1", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")

	rr = call(t, h, http.MethodGet, "/api/v1/carts/busy", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = call(t, h, http.MethodDelete, "/api/v1/carts/calm/items/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRedisBackedCartAndIdempotency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h, deps := newServer(t, testConfig(), app.Options{Redis: client})
	require.NotNil(t, deps.Redis)

	rr := call(t, h, http.MethodPost, "/api/v1/carts/dev-7/items", weekendItem, "Idempotency-Key", "add-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = call(t, h, http.MethodPost, "/api/v1/carts/dev-7/items", weekendItem, "Idempotency-Key", "add-1")
	require.Equal(t, http.StatusConflict, rr.Code)

	require.Eventually(t, func() bool {
		v, err := mr.Get("hs:dev-7:currentHomeStayId")
		return err == nil && v == "10"
	}, time.Second, 10*time.Millisecond)
	raw, err := mr.Get("hs:dev-7:roomCart")
	require.NoError(t, err)
	require.Contains(t, raw, `"roomID":1`)

	rr = call(t, h, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"redis":"ok"`)

	// A fresh process reads the persisted cart back.
	h2, _ := newServer(t, testConfig(), app.Options{Redis: client})
	rr = call(t, h2, http.MethodGet, "/api/v1/carts/dev-7/count", "")
	require.JSONEq(t, `{"data":{"count":1}}`, rr.Body.String())
}

func TestRejectsOversizedCartWrite(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPBodyLimit = 16
	h, _ := newServer(t, cfg, app.Options{})

	rr := call(t, h, http.MethodPost, "/api/v1/carts/dev-1/items", weekendItem)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
