package pricing

import (
	"context"
	"time"

	"github.com/noah-isme/homestay-pricing/internal/stay"
)

// Stay is the input to every stay-level price resolution.
type Stay struct {
	RoomID     int64
	RoomTypeID int64
	// RentalID is zero when the stay is a single room rather than a
	// whole-unit rental.
	RentalID      int64
	CheckIn       time.Time
	CheckOut      time.Time
	FallbackPrice Money
}

// StayKey identifies a stay for total-price caching and is also the query
// sent to the backend. Dates are normalized to calendar dates.
type StayKey struct {
	CheckIn    stay.Date
	CheckOut   stay.Date
	RentalID   int64
	RoomTypeID int64
}

// DayTypeKey identifies the classification of one night for one room or,
// when RoomID is zero, one rental.
type DayTypeKey struct {
	RoomID   int64
	RentalID int64
	Date     stay.Date
}

// DateTypeQuery is the backend request for a night's classification.
type DateTypeQuery struct {
	Date       stay.Date
	RentalID   int64
	RoomTypeID int64
}

// Key returns the total-price cache key of the stay.
func (s Stay) Key() StayKey {
	return StayKey{
		CheckIn:    stay.DateOf(s.CheckIn),
		CheckOut:   stay.DateOf(s.CheckOut),
		RentalID:   s.RentalID,
		RoomTypeID: s.RoomTypeID,
	}
}

// DayTypeKey returns the classification key for one night of the stay.
func (s Stay) DayTypeKey(night stay.Date) DayTypeKey {
	if s.RoomID != 0 {
		return DayTypeKey{RoomID: s.RoomID, Date: night}
	}
	return DayTypeKey{RentalID: s.RentalID, Date: night}
}

func (s Stay) dateTypeQuery(night stay.Date) DateTypeQuery {
	return DateTypeQuery{Date: night, RentalID: s.RentalID, RoomTypeID: s.RoomTypeID}
}

// Backend is the upstream homestay API consumed by the pricing engine.
type Backend interface {
	TotalPrice(ctx context.Context, q StayKey) (Money, error)
	DateType(ctx context.Context, q DateTypeQuery) (DayType, error)
	PricingByRoomType(ctx context.Context, roomTypeID int64) ([]Row, error)
}
