package pricing

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/homestay-pricing/internal/flight"
	"github.com/noah-isme/homestay-pricing/internal/obs"
	"github.com/noah-isme/homestay-pricing/internal/stay"
)

// DefaultTableLinger is how long a settled table fetch stays visible to new
// callers before a cache miss may fetch again.
const DefaultTableLinger = 5 * time.Second

// TableCache holds the pricing table of each room type. Fetched tables are
// kept for the lifetime of the process; a failed fetch answers with an empty
// table until its pending entry expires.
type TableCache struct {
	backend Backend
	logger  *zerolog.Logger

	mu       sync.RWMutex
	tables   map[int64][]Row
	inflight flight.Group[int64, Resolution[[]Row]]
}

// NewTableCache constructs a table cache. A non-positive linger uses DefaultTableLinger.
func NewTableCache(backend Backend, linger time.Duration, logger *zerolog.Logger) *TableCache {
	if linger <= 0 {
		linger = DefaultTableLinger
	}
	t := &TableCache{
		backend: backend,
		logger:  loggerOrNop(logger),
		tables:  make(map[int64][]Row),
	}
	t.inflight.Linger = linger
	return t
}

// Table returns a copy of the pricing table for roomTypeID.
func (t *TableCache) Table(ctx context.Context, roomTypeID int64) Resolution[[]Row] {
	if rows, ok := t.lookup(roomTypeID); ok {
		obs.ObservePricingLookup("table", "hit")
		return Resolution[[]Row]{Value: slices.Clone(rows)}
	}
	r, shared, err := t.inflight.Do(ctx, roomTypeID, func(ctx context.Context) (Resolution[[]Row], error) {
		if rows, ok := t.lookup(roomTypeID); ok {
			return Resolution[[]Row]{Value: rows}, nil
		}
		rows, err := t.backend.PricingByRoomType(ctx, roomTypeID)
		if err != nil {
			t.logger.Warn().Err(err).Int64("room_type_id", roomTypeID).Msg("pricing table fetch failed, using empty table")
			obs.ObservePricingFallback("table", "backend_error")
			return Resolution[[]Row]{Degraded: true}, nil
		}
		rows = slices.Clone(rows)
		t.mu.Lock()
		t.tables[roomTypeID] = rows
		t.mu.Unlock()
		return Resolution[[]Row]{Value: rows}, nil
	})
	if err != nil {
		obs.ObservePricingFallback("table", "caller_done")
		return Resolution[[]Row]{Degraded: true}
	}
	obs.ObservePricingLookup("table", lookupResult(shared))
	return Resolution[[]Row]{Value: slices.Clone(r.Value), Degraded: r.Degraded}
}

// UnitPrice resolves the rent price of one night of the given day type.
func (t *TableCache) UnitPrice(ctx context.Context, roomTypeID int64, d DayType, night stay.Date) Resolution[Money] {
	table := t.Table(ctx, roomTypeID)
	return Resolution[Money]{Value: LookupUnitPrice(table.Value, d, night), Degraded: table.Degraded}
}

// Len reports the number of cached tables.
func (t *TableCache) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tables)
}

// Pending reports the number of table fetches in flight or lingering.
func (t *TableCache) Pending() int {
	return t.inflight.Pending()
}

func (t *TableCache) lookup(roomTypeID int64) ([]Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows, ok := t.tables[roomTypeID]
	return rows, ok
}
