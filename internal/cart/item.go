package cart

import (
	"time"

	"github.com/noah-isme/homestay-pricing/internal/pricing"
	"github.com/noah-isme/homestay-pricing/internal/stay"
)

// Item is one selected room (or whole-unit rental) in a cart. The JSON shape
// is the persisted shape.
type Item struct {
	ID           string        `json:"id"`
	RoomID       int64         `json:"roomID"`
	RoomTypeID   int64         `json:"roomTypeID"`
	HomeStayID   int64         `json:"homeStayID"`
	RentalID     int64         `json:"rentalId,omitempty"`
	RentalName   string        `json:"rentalName,omitempty"`
	Price        pricing.Money `json:"price"`
	CheckInDate  time.Time     `json:"checkInDate"`
	CheckOutDate time.Time     `json:"checkOutDate"`
	Image        string        `json:"image,omitempty"`
	RoomTypeName string        `json:"roomTypeName,omitempty"`
}

// Stay converts the item into a pricing input. Price is the fallback used
// when the backend total cannot be fetched.
func (it Item) Stay() pricing.Stay {
	return pricing.Stay{
		RoomID:        it.RoomID,
		RoomTypeID:    it.RoomTypeID,
		RentalID:      it.RentalID,
		CheckIn:       it.CheckInDate,
		CheckOut:      it.CheckOutDate,
		FallbackPrice: it.Price,
	}
}

// Filter selects items. Zero fields match everything.
type Filter struct {
	HomeStayID int64
	RoomTypeID int64
	RentalID   int64
	CheckIn    stay.Date
	CheckOut   stay.Date
}

// Match reports whether it satisfies every set field of f. Dates compare as
// calendar dates.
func (f Filter) Match(it Item) bool {
	if f.HomeStayID != 0 && it.HomeStayID != f.HomeStayID {
		return false
	}
	if f.RoomTypeID != 0 && it.RoomTypeID != f.RoomTypeID {
		return false
	}
	if f.RentalID != 0 && it.RentalID != f.RentalID {
		return false
	}
	if !f.CheckIn.IsZero() && stay.DateOf(it.CheckInDate) != f.CheckIn {
		return false
	}
	if !f.CheckOut.IsZero() && stay.DateOf(it.CheckOutDate) != f.CheckOut {
		return false
	}
	return true
}
