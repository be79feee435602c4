package backend

import (
	"context"
	"time"

	"github.com/noah-isme/homestay-pricing/internal/pricing"
	"github.com/noah-isme/homestay-pricing/internal/stay"
)

const (
	mockNormalRate  pricing.Money = 300000
	mockWeekendRate pricing.Money = 400000
)

// Mock is an offline backend for development and tests. Saturdays and
// Sundays are weekend nights, every other night is normal, and every room
// type shares one static table.
type Mock struct {
	// NormalRate and WeekendRate override the static table when non-zero.
	NormalRate  pricing.Money
	WeekendRate pricing.Money
}

var _ pricing.Backend = Mock{}

// TotalPrice sums the static table over the nights of the stay.
func (m Mock) TotalPrice(ctx context.Context, q pricing.StayKey) (pricing.Money, error) {
	rows, _ := m.PricingByRoomType(ctx, q.RoomTypeID)
	var total pricing.Money
	for _, night := range stay.Nights(q.CheckIn.Time(), q.CheckOut.Time()) {
		total += pricing.LookupUnitPrice(rows, weekdayType(night), night)
	}
	return total, nil
}

// DateType classifies the night by weekday.
func (m Mock) DateType(_ context.Context, q pricing.DateTypeQuery) (pricing.DayType, error) {
	return weekdayType(q.Date), nil
}

// PricingByRoomType returns the static table regardless of room type.
func (m Mock) PricingByRoomType(_ context.Context, _ int64) ([]pricing.Row, error) {
	normal, weekend := m.NormalRate, m.WeekendRate
	if normal == 0 {
		normal = mockNormalRate
	}
	if weekend == 0 {
		weekend = mockWeekendRate
	}
	return []pricing.Row{
		{DayType: pricing.Normal, RentPrice: normal, UnitPrice: normal, Note: "mock"},
		{DayType: pricing.Weekend, RentPrice: weekend, UnitPrice: weekend, Note: "mock"},
	}, nil
}

func weekdayType(d stay.Date) pricing.DayType {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return pricing.Weekend
	default:
		return pricing.Normal
	}
}
