package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homestay-pricing/internal/backend"
	"github.com/noah-isme/homestay-pricing/internal/pricing"
	"github.com/noah-isme/homestay-pricing/internal/resilience"
	"github.com/noah-isme/homestay-pricing/internal/stay"
)

func mustDate(t *testing.T, v string) stay.Date {
	t.Helper()
	d, err := stay.ParseDate(v)
	require.NoError(t, err)
	return d
}

func newClient(t *testing.T, handler http.HandlerFunc) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := backend.NewClient(backend.Config{
		BaseURL: srv.URL + "/",
		HTTP: resilience.HTTPClient{
			Client:      srv.Client(),
			Breaker:     resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 100, FailureRatio: 1, Cooldown: time.Second, Target: "backend-test"}),
			MaxAttempts: 2,
			BaseBackoff: time.Millisecond,
			Timeout:     time.Second,
		},
	})
	require.NoError(t, err)
	return client
}

func TestTotalPriceSendsStayQuery(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/Booking/GetTotalPrice", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "2024-06-01", q.Get("checkInDate"))
		require.Equal(t, "2024-06-03", q.Get("checkOutDate"))
		require.Equal(t, "5", q.Get("roomTypeId"))
		require.Equal(t, "11", q.Get("rentalId"))
		_, _ = w.Write([]byte("800000"))
	})

	total, err := client.TotalPrice(context.Background(), pricing.StayKey{
		CheckIn:    mustDate(t, "2024-06-01"),
		CheckOut:   mustDate(t, "2024-06-03"),
		RoomTypeID: 5,
		RentalID:   11,
	})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(800000), total)
}

func TestTotalPriceOmitsRentalWhenUnset(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["rentalId"]
		require.False(t, present)
		_, _ = w.Write([]byte("450000.4"))
	})

	total, err := client.TotalPrice(context.Background(), pricing.StayKey{RoomTypeID: 5})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(450000), total)
}

func TestDateTypeDecodesNumber(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/Calendar/GetDateType", r.URL.Path)
		require.Equal(t, "2024-06-01", r.URL.Query().Get("date"))
		_, _ = w.Write([]byte("1"))
	})

	dt, err := client.DateType(context.Background(), pricing.DateTypeQuery{Date: mustDate(t, "2024-06-01"), RoomTypeID: 5})
	require.NoError(t, err)
	require.Equal(t, pricing.Weekend, dt)
}

func TestPricingByRoomTypeDecodesRows(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/Pricing/GetAllPricingByRoomType/5", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"dayType":0,"rentPrice":300000,"unitPrice":300000,"note":"weekday"},
			{"dayType":2,"rentPrice":900000,"unitPrice":900000,"startDate":"2024-12-24","endDate":"2024-12-26T00:00:00Z"},
			{"dayType":1,"rentPrice":400000,"unitPrice":null,"startDate":null}
		]`))
	})

	rows, err := client.PricingByRoomType(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, pricing.Row{DayType: pricing.Normal, RentPrice: 300000, UnitPrice: 300000, Note: "weekday"}, rows[0])
	require.Equal(t, mustDate(t, "2024-12-24"), rows[1].StartDate)
	require.Equal(t, mustDate(t, "2024-12-26"), rows[1].EndDate)
	require.Equal(t, pricing.Money(0), rows[2].UnitPrice)
	require.True(t, rows[2].StartDate.IsZero())
}

func TestClientClassifiesFailures(t *testing.T) {
	t.Run("server", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := client.TotalPrice(context.Background(), pricing.StayKey{RoomTypeID: 1})
		require.ErrorIs(t, err, backend.ErrServer)
		var be *backend.Error
		require.True(t, errors.As(err, &be))
		require.Equal(t, http.StatusInternalServerError, be.Status)
		require.Equal(t, "total_price", be.Op)
	})

	t.Run("client status", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := client.PricingByRoomType(context.Background(), 1)
		require.ErrorIs(t, err, backend.ErrServer)
	})

	t.Run("malformed", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"total":1}`))
		})
		_, err := client.TotalPrice(context.Background(), pricing.StayKey{RoomTypeID: 1})
		require.ErrorIs(t, err, backend.ErrMalformed)
	})

	t.Run("null total", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`null`))
		})
		total, err := client.TotalPrice(context.Background(), pricing.StayKey{RoomTypeID: 1})
		require.ErrorIs(t, err, backend.ErrMalformed)
		require.Zero(t, total)
	})

	t.Run("null date type", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`null`))
		})
		_, err := client.DateType(context.Background(), pricing.DateTypeQuery{RoomTypeID: 1})
		require.ErrorIs(t, err, backend.ErrMalformed)
	})

	t.Run("total out of range", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`9223372036854775808`))
		})
		_, err := client.TotalPrice(context.Background(), pricing.StayKey{RoomTypeID: 1})
		require.ErrorIs(t, err, backend.ErrMalformed)
	})

	t.Run("bad row date", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"dayType":2,"rentPrice":1,"startDate":"soon"}]`))
		})
		_, err := client.PricingByRoomType(context.Background(), 1)
		require.ErrorIs(t, err, backend.ErrMalformed)
	})

	t.Run("network", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		client, err := backend.NewClient(backend.Config{
			BaseURL: url,
			HTTP:    resilience.HTTPClient{Client: &http.Client{}, MaxAttempts: 1},
		})
		require.NoError(t, err)
		_, err = client.DateType(context.Background(), pricing.DateTypeQuery{})
		require.ErrorIs(t, err, backend.ErrNetwork)
	})
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := backend.NewClient(backend.Config{})
	require.Error(t, err)
	_, err = backend.NewClient(backend.Config{BaseURL: "ftp://example.com"})
	require.Error(t, err)
}

func TestNullTotalFallsBackWithoutCaching(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`null`))
			return
		}
		_, _ = w.Write([]byte(`800000`))
	})
	svc, err := pricing.NewService(pricing.ServiceConfig{Backend: client})
	require.NoError(t, err)

	checkIn := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	s := pricing.Stay{RoomTypeID: 5, CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 2), FallbackPrice: 450000}

	r := svc.ResolveTotal(context.Background(), s)
	require.True(t, r.Degraded)
	require.Equal(t, pricing.Money(450000), r.Value)
	require.Equal(t, 0, svc.Stats().Totals)

	r = svc.ResolveTotal(context.Background(), s)
	require.False(t, r.Degraded)
	require.Equal(t, pricing.Money(800000), r.Value)
	require.Equal(t, int32(2), calls.Load())
}
