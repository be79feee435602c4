package pricing

import (
	"context"

	"github.com/noah-isme/homestay-pricing/internal/stay"
)

// Aggregator prices a stay night by night.
type Aggregator struct {
	classifier *Classifier
	tables     *TableCache
}

// NewAggregator combines a classifier and a table cache.
func NewAggregator(classifier *Classifier, tables *TableCache) *Aggregator {
	return &Aggregator{classifier: classifier, tables: tables}
}

// PriceStay classifies and prices each night in chronological order. A night
// is fully resolved before the next one starts; callers that want several
// stays priced at once run PriceStay concurrently.
func (a *Aggregator) PriceStay(ctx context.Context, s Stay) StayQuote {
	nights := stay.Nights(s.CheckIn, s.CheckOut)
	quote := StayQuote{Nights: len(nights)}
	for _, night := range nights {
		dt := a.classifier.Classify(ctx, s.DayTypeKey(night), s.dateTypeQuery(night))
		kind := dt.Value.Normalize()
		price := a.tables.UnitPrice(ctx, s.RoomTypeID, kind, night)
		quote.Breakdown.record(kind, price.Value)
		quote.Degraded = quote.Degraded || dt.Degraded || price.Degraded
	}
	quote.Total = quote.Breakdown.Total()
	return quote
}
