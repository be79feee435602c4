package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/homestay-pricing/internal/stay"
)

// ServiceConfig wires the pricing service.
type ServiceConfig struct {
	Backend Backend
	// TableLinger defaults to DefaultTableLinger.
	TableLinger time.Duration
	Logger      *zerolog.Logger
}

// Service owns the day type, pricing table and total price caches. One
// instance is shared by every cart and checkout flow in the process.
type Service struct {
	classifier *Classifier
	tables     *TableCache
	totals     *TotalCache
	aggregator *Aggregator
}

// Stats summarises cache occupancy.
type Stats struct {
	DayTypes      int `json:"dayTypes"`
	Tables        int `json:"tables"`
	TablesPending int `json:"tablesPending"`
	Totals        int `json:"totals"`
}

// NewService constructs the pricing service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Backend == nil {
		return nil, errors.New("pricing: backend is required")
	}
	classifier := NewClassifier(cfg.Backend, cfg.Logger)
	tables := NewTableCache(cfg.Backend, cfg.TableLinger, cfg.Logger)
	return &Service{
		classifier: classifier,
		tables:     tables,
		totals:     NewTotalCache(cfg.Backend, cfg.Logger),
		aggregator: NewAggregator(classifier, tables),
	}, nil
}

// Classify resolves the day type of one night.
func (s *Service) Classify(ctx context.Context, key DayTypeKey, q DateTypeQuery) Resolution[DayType] {
	return s.classifier.Classify(ctx, key, q)
}

// UnitPrice resolves the rent price of one night of a room type.
func (s *Service) UnitPrice(ctx context.Context, roomTypeID int64, d DayType, night stay.Date) Resolution[Money] {
	return s.tables.UnitPrice(ctx, roomTypeID, d, night)
}

// Table returns the pricing table of a room type.
func (s *Service) Table(ctx context.Context, roomTypeID int64) Resolution[[]Row] {
	return s.tables.Table(ctx, roomTypeID)
}

// PriceStay computes the night-by-night breakdown of a stay.
func (s *Service) PriceStay(ctx context.Context, st Stay) StayQuote {
	return s.aggregator.PriceStay(ctx, st)
}

// ResolveTotal returns the cached or backend total of a stay.
func (s *Service) ResolveTotal(ctx context.Context, st Stay) Resolution[Money] {
	return s.totals.ResolveTotal(ctx, st)
}

// Stats reports cache sizes.
func (s *Service) Stats() Stats {
	return Stats{
		DayTypes:      s.classifier.Len(),
		Tables:        s.tables.Len(),
		TablesPending: s.tables.Pending(),
		Totals:        s.totals.Len(),
	}
}
