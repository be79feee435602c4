package pricing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homestay-pricing/internal/pricing"
	"github.com/noah-isme/homestay-pricing/internal/stay"
)

var errBackendDown = errors.New("backend down")

type stubBackend struct {
	mu sync.Mutex

	total    pricing.Money
	totalErr error
	dayTypes map[stay.Date]pricing.DayType
	dateErr  error
	tables   map[int64][]pricing.Row
	tableErr error
	// gate, when set, blocks every call until it is closed.
	gate chan struct{}

	totalCalls int
	dateCalls  int
	tableCalls int
	dateOrder  []stay.Date
}

func (s *stubBackend) wait(ctx context.Context) {
	if s.gate == nil {
		return
	}
	select {
	case <-s.gate:
	case <-ctx.Done():
	}
}

func (s *stubBackend) TotalPrice(ctx context.Context, _ pricing.StayKey) (pricing.Money, error) {
	s.mu.Lock()
	s.totalCalls++
	s.mu.Unlock()
	s.wait(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, s.totalErr
}

func (s *stubBackend) DateType(ctx context.Context, q pricing.DateTypeQuery) (pricing.DayType, error) {
	s.mu.Lock()
	s.dateCalls++
	s.dateOrder = append(s.dateOrder, q.Date)
	s.mu.Unlock()
	s.wait(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dateErr != nil {
		return 0, s.dateErr
	}
	return s.dayTypes[q.Date], nil
}

func (s *stubBackend) PricingByRoomType(ctx context.Context, roomTypeID int64) ([]pricing.Row, error) {
	s.mu.Lock()
	s.tableCalls++
	s.mu.Unlock()
	s.wait(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tableErr != nil {
		return nil, s.tableErr
	}
	return s.tables[roomTypeID], nil
}

func (s *stubBackend) calls() (total, date, table int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCalls, s.dateCalls, s.tableCalls
}

func (s *stubBackend) setTotalErr(err error) {
	s.mu.Lock()
	s.totalErr = err
	s.mu.Unlock()
}

func (s *stubBackend) setTableErr(err error) {
	s.mu.Lock()
	s.tableErr = err
	s.mu.Unlock()
}

func date(t *testing.T, value string) stay.Date {
	t.Helper()
	d, err := stay.ParseDate(value)
	require.NoError(t, err)
	return d
}

func instant(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(stay.Layout, value)
	require.NoError(t, err)
	return ts
}

func newService(t *testing.T, backend pricing.Backend, linger time.Duration) *pricing.Service {
	t.Helper()
	svc, err := pricing.NewService(pricing.ServiceConfig{Backend: backend, TableLinger: linger})
	require.NoError(t, err)
	return svc
}

func roomStay(t *testing.T, in, out string, fallback pricing.Money) pricing.Stay {
	return pricing.Stay{
		RoomID:        7,
		RoomTypeID:    5,
		CheckIn:       instant(t, in),
		CheckOut:      instant(t, out),
		FallbackPrice: fallback,
	}
}
