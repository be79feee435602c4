package pricing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homestay-pricing/internal/pricing"
)

func TestResolveTotalCachesBackendValue(t *testing.T) {
	backend := &stubBackend{total: 800_000}
	svc := newService(t, backend, 0)
	s := roomStay(t, "2024-06-01", "2024-06-03", 450_000)

	r := svc.ResolveTotal(context.Background(), s)
	require.Equal(t, pricing.Money(800_000), r.Value)
	require.False(t, r.Degraded)

	r = svc.ResolveTotal(context.Background(), s)
	require.Equal(t, pricing.Money(800_000), r.Value)
	totalCalls, _, _ := backend.calls()
	require.Equal(t, 1, totalCalls)
}

func TestResolveTotalFallsBackToItemPriceWithoutCaching(t *testing.T) {
	backend := &stubBackend{total: 800_000, totalErr: errBackendDown}
	svc := newService(t, backend, 0)
	s := roomStay(t, "2024-06-01", "2024-06-03", 450_000)

	r := svc.ResolveTotal(context.Background(), s)
	require.Equal(t, pricing.Money(450_000), r.Value)
	require.True(t, r.Degraded)
	require.Equal(t, 0, svc.Stats().Totals)

	backend.setTotalErr(nil)
	r = svc.ResolveTotal(context.Background(), s)
	require.Equal(t, pricing.Money(800_000), r.Value)
	require.False(t, r.Degraded)
	totalCalls, _, _ := backend.calls()
	require.Equal(t, 2, totalCalls)
}

func TestResolveTotalKeyIgnoresRoomAndTimeOfDay(t *testing.T) {
	backend := &stubBackend{total: 10}
	svc := newService(t, backend, 0)
	a := roomStay(t, "2024-06-01", "2024-06-03", 0)
	b := a
	b.RoomID = 8
	b.CheckIn = b.CheckIn.Add(14 * time.Hour)

	svc.ResolveTotal(context.Background(), a)
	svc.ResolveTotal(context.Background(), b)
	totalCalls, _, _ := backend.calls()
	require.Equal(t, 1, totalCalls)

	c := a
	c.RentalID = 3
	svc.ResolveTotal(context.Background(), c)
	totalCalls, _, _ = backend.calls()
	require.Equal(t, 2, totalCalls)
}

func TestResolveTotalCoalescedFailureUsesEachCallersFallback(t *testing.T) {
	backend := &stubBackend{totalErr: errBackendDown, gate: make(chan struct{})}
	svc := newService(t, backend, 0)
	a := roomStay(t, "2024-06-01", "2024-06-03", 100)
	b := a
	b.RoomID = 9
	b.FallbackPrice = 200

	var wg sync.WaitGroup
	var ra, rb pricing.Resolution[pricing.Money]
	wg.Add(2)
	go func() { defer wg.Done(); ra = svc.ResolveTotal(context.Background(), a) }()
	go func() { defer wg.Done(); rb = svc.ResolveTotal(context.Background(), b) }()
	require.Eventually(t, func() bool {
		totalCalls, _, _ := backend.calls()
		return totalCalls == 1
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(backend.gate)
	wg.Wait()

	totalCalls, _, _ := backend.calls()
	require.Equal(t, 1, totalCalls)
	require.Equal(t, pricing.Money(100), ra.Value)
	require.Equal(t, pricing.Money(200), rb.Value)
	require.True(t, ra.Degraded && rb.Degraded)
}
