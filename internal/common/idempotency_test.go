package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homestay-pricing/internal/common"
)

func newIdem(t *testing.T) (common.Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client, TTL: time.Minute}, mr
}

func post(h http.Handler, path, key string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestIdemRejectsReplay(t *testing.T) {
	idem, mr := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	require.Equal(t, http.StatusCreated, post(h, "/carts/a/items", "k1"))
	require.Equal(t, http.StatusConflict, post(h, "/carts/a/items", "k1"))
	require.Equal(t, http.StatusCreated, post(h, "/carts/b/items", "k1"))
	require.Equal(t, http.StatusCreated, post(h, "/carts/a/items", ""))
	require.Equal(t, http.StatusCreated, post(h, "/carts/a/items", ""))
	require.Equal(t, 4, calls)

	mr.FastForward(2 * time.Minute)
	require.Equal(t, http.StatusCreated, post(h, "/carts/a/items", "k1"))
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem, _ := newIdem(t)
	status := http.StatusInternalServerError
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	require.Equal(t, http.StatusInternalServerError, post(h, "/carts/a", "k2"))
	status = http.StatusOK
	require.Equal(t, http.StatusOK, post(h, "/carts/a", "k2"))
	require.Equal(t, http.StatusConflict, post(h, "/carts/a", "k2"))
}

func TestIdemStoreUnavailable(t *testing.T) {
	idem, mr := newIdem(t)
	mr.Close()
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	require.Equal(t, http.StatusServiceUnavailable, post(h, "/carts/a", "k3"))
}
