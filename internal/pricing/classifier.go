package pricing

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/homestay-pricing/internal/flight"
	"github.com/noah-isme/homestay-pricing/internal/obs"
)

// Classifier resolves the day type of a night, caching results for the
// lifetime of the process and coalescing concurrent lookups of one key.
type Classifier struct {
	backend Backend
	logger  *zerolog.Logger

	mu       sync.RWMutex
	cache    map[DayTypeKey]Resolution[DayType]
	inflight flight.Group[DayTypeKey, Resolution[DayType]]
}

// NewClassifier constructs a classifier backed by the provided backend.
func NewClassifier(backend Backend, logger *zerolog.Logger) *Classifier {
	return &Classifier{
		backend: backend,
		logger:  loggerOrNop(logger),
		cache:   make(map[DayTypeKey]Resolution[DayType]),
	}
}

// Classify returns the day type for key. Backend failures resolve to Normal
// with Degraded set and are cached like any other classification. A caller
// whose context ends first also gets Normal, but nothing is cached for it.
func (c *Classifier) Classify(ctx context.Context, key DayTypeKey, q DateTypeQuery) Resolution[DayType] {
	if r, ok := c.lookup(key); ok {
		obs.ObservePricingLookup("daytype", "hit")
		return r
	}
	r, shared, err := c.inflight.Do(ctx, key, func(ctx context.Context) (Resolution[DayType], error) {
		if r, ok := c.lookup(key); ok {
			return r, nil
		}
		dt, err := c.backend.DateType(ctx, q)
		res := Resolution[DayType]{Value: dt}
		if err != nil {
			c.logger.Warn().Err(err).
				Int64("room_id", key.RoomID).
				Int64("rental_id", key.RentalID).
				Str("date", key.Date.String()).
				Msg("day type lookup failed, defaulting to normal")
			obs.ObservePricingFallback("daytype", "backend_error")
			res = Resolution[DayType]{Value: Normal, Degraded: true}
		}
		c.mu.Lock()
		c.cache[key] = res
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		obs.ObservePricingFallback("daytype", "caller_done")
		return Resolution[DayType]{Value: Normal, Degraded: true}
	}
	obs.ObservePricingLookup("daytype", lookupResult(shared))
	return r
}

// Len reports the number of cached classifications.
func (c *Classifier) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *Classifier) lookup(key DayTypeKey) (Resolution[DayType], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.cache[key]
	return r, ok
}

var nopLogger = zerolog.Nop()

func loggerOrNop(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		return &nopLogger
	}
	return logger
}

func lookupResult(shared bool) string {
	if shared {
		return "shared"
	}
	return "miss"
}
