package pricing

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/homestay-pricing/internal/flight"
	"github.com/noah-isme/homestay-pricing/internal/obs"
)

// TotalCache caches the backend's total price per stay. It is the fast path
// for cart badges and checkout headers.
type TotalCache struct {
	backend Backend
	logger  *zerolog.Logger

	mu       sync.RWMutex
	totals   map[StayKey]Money
	inflight flight.Group[StayKey, Money]
}

// NewTotalCache constructs a total price cache.
func NewTotalCache(backend Backend, logger *zerolog.Logger) *TotalCache {
	return &TotalCache{
		backend: backend,
		logger:  loggerOrNop(logger),
		totals:  make(map[StayKey]Money),
	}
}

// ResolveTotal returns the total price of s. When the backend call fails the
// stay's own fallback price is returned with Degraded set, and nothing is
// cached so the next lookup retries.
func (c *TotalCache) ResolveTotal(ctx context.Context, s Stay) Resolution[Money] {
	key := s.Key()
	if total, ok := c.lookup(key); ok {
		obs.ObservePricingLookup("total", "hit")
		return Resolution[Money]{Value: total}
	}
	total, shared, err := c.inflight.Do(ctx, key, func(ctx context.Context) (Money, error) {
		if total, ok := c.lookup(key); ok {
			return total, nil
		}
		total, err := c.backend.TotalPrice(ctx, key)
		if err != nil {
			return 0, err
		}
		c.mu.Lock()
		c.totals[key] = total
		c.mu.Unlock()
		return total, nil
	})
	if err != nil {
		reason := "backend_error"
		if ctx.Err() != nil {
			reason = "caller_done"
		}
		c.logger.Warn().Err(err).
			Int64("room_type_id", key.RoomTypeID).
			Int64("rental_id", key.RentalID).
			Str("check_in", key.CheckIn.String()).
			Str("check_out", key.CheckOut.String()).
			Msg("total price lookup failed, using fallback price")
		obs.ObservePricingFallback("total", reason)
		return Resolution[Money]{Value: s.FallbackPrice, Degraded: true}
	}
	obs.ObservePricingLookup("total", lookupResult(shared))
	return Resolution[Money]{Value: total}
}

// Len reports the number of cached totals.
func (c *TotalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.totals)
}

func (c *TotalCache) lookup(key StayKey) (Money, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total, ok := c.totals[key]
	return total, ok
}
