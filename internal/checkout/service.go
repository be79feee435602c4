// Package checkout aggregates cart items into priced summaries.
package checkout

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/homestay-pricing/internal/cart"
	"github.com/noah-isme/homestay-pricing/internal/pricing"
)

const defaultMaxConcurrency = 8

// Pricer resolves stay prices. *pricing.Service satisfies it.
type Pricer interface {
	ResolveTotal(ctx context.Context, s pricing.Stay) pricing.Resolution[pricing.Money]
	PriceStay(ctx context.Context, s pricing.Stay) pricing.StayQuote
}

// Line is the backend total of one cart item.
type Line struct {
	Item     cart.Item     `json:"item"`
	Total    pricing.Money `json:"total"`
	Degraded bool          `json:"degraded"`
}

// Summary is the fast-path price of a cart.
type Summary struct {
	Lines      []Line        `json:"lines"`
	GrandTotal pricing.Money `json:"grandTotal"`
	Degraded   bool          `json:"degraded"`
}

// QuoteLine is the night-by-night price of one cart item.
type QuoteLine struct {
	Item  cart.Item         `json:"item"`
	Quote pricing.StayQuote `json:"quote"`
}

// Detailed is the slow-path price of a cart with the merged breakdown of
// every item.
type Detailed struct {
	Lines      []QuoteLine       `json:"lines"`
	Breakdown  pricing.Breakdown `json:"breakdown"`
	Nights     int               `json:"nights"`
	GrandTotal pricing.Money     `json:"grandTotal"`
	Degraded   bool              `json:"degraded"`
}

// Service prices whole carts by fanning out one lookup per item.
type Service struct {
	Pricing Pricer
	Logger  *zerolog.Logger
	// MaxConcurrency bounds the lookups in flight per call.
	MaxConcurrency int
}

var nopLogger = zerolog.Nop()

func (s *Service) limit() int {
	if s == nil || s.MaxConcurrency <= 0 {
		return defaultMaxConcurrency
	}
	return s.MaxConcurrency
}

func (s *Service) logger() *zerolog.Logger {
	if s == nil || s.Logger == nil {
		return &nopLogger
	}
	return s.Logger
}

// Summary resolves the backend total of every item concurrently. Lines keep
// the order of items. Failed lookups contribute the item's own price.
func (s *Service) Summary(ctx context.Context, items []cart.Item) (Summary, error) {
	if s == nil || s.Pricing == nil {
		return Summary{}, errors.New("checkout: pricing not configured")
	}
	lines := make([]Line, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit())
	for i, it := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := s.Pricing.ResolveTotal(gctx, it.Stay())
			lines[i] = Line{Item: it, Total: r.Value, Degraded: r.Degraded}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	out := Summary{Lines: lines}
	for _, l := range lines {
		out.GrandTotal += l.Total
		out.Degraded = out.Degraded || l.Degraded
	}
	if out.Degraded {
		s.logger().Info().Int("items", len(items)).Int64("grand_total", out.GrandTotal).Msg("cart summary used fallback prices")
	}
	return out, nil
}

// Breakdown prices every item night by night, concurrently across items.
func (s *Service) Breakdown(ctx context.Context, items []cart.Item) (Detailed, error) {
	if s == nil || s.Pricing == nil {
		return Detailed{}, errors.New("checkout: pricing not configured")
	}
	lines := make([]QuoteLine, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit())
	for i, it := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lines[i] = QuoteLine{Item: it, Quote: s.Pricing.PriceStay(gctx, it.Stay())}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Detailed{}, err
	}

	out := Detailed{Lines: lines}
	for _, l := range lines {
		out.Breakdown = out.Breakdown.Add(l.Quote.Breakdown)
		out.Degraded = out.Degraded || l.Quote.Degraded
	}
	out.Nights = out.Breakdown.Nights()
	out.GrandTotal = out.Breakdown.Total()
	return out, nil
}
