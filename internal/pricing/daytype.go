package pricing

import (
	"encoding/json"

	"github.com/noah-isme/homestay-pricing/internal/stay"
)

// DayType classifies a night for pricing purposes.
type DayType int

const (
	// Normal is a regular weekday night.
	Normal DayType = iota
	// Weekend is a weekend night.
	Weekend
	// Special is a holiday or event night, usually bound to a date window.
	Special
)

// Normalize maps values outside the known range to Normal.
func (d DayType) Normalize() DayType {
	switch d {
	case Normal, Weekend, Special:
		return d
	default:
		return Normal
	}
}

func (d DayType) String() string {
	switch d {
	case Normal:
		return "normal"
	case Weekend:
		return "weekend"
	case Special:
		return "special"
	default:
		return "unknown"
	}
}

// Row is one entry of a room type's pricing table.
type Row struct {
	DayType   DayType   `json:"dayType"`
	RentPrice Money     `json:"rentPrice"`
	UnitPrice Money     `json:"unitPrice"`
	Note      string    `json:"note,omitempty"`
	StartDate stay.Date `json:"-"`
	EndDate   stay.Date `json:"-"`
}

// MarshalJSON writes the date window as YYYY-MM-DD and omits unset ends.
func (r Row) MarshalJSON() ([]byte, error) {
	type plain Row
	return json.Marshal(struct {
		plain
		StartDate string `json:"startDate,omitempty"`
		EndDate   string `json:"endDate,omitempty"`
	}{plain: plain(r), StartDate: dateString(r.StartDate), EndDate: dateString(r.EndDate)})
}

func dateString(d stay.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

// Covers reports whether the row's date window, if any, contains night.
// Both ends of the window are inclusive.
func (r Row) Covers(night stay.Date) bool {
	if !r.StartDate.IsZero() && night.Before(r.StartDate) {
		return false
	}
	if !r.EndDate.IsZero() && night.After(r.EndDate) {
		return false
	}
	return true
}

// LookupUnitPrice returns the rent price for a night of the given day type.
// Weekend and special nights without a matching row fall back to the normal
// row; a missing normal row prices at zero.
func LookupUnitPrice(rows []Row, d DayType, night stay.Date) Money {
	if price, ok := findRow(rows, d, night); ok {
		return price
	}
	if d == Weekend || d == Special {
		if price, ok := findRow(rows, Normal, night); ok {
			return price
		}
	}
	return 0
}

func findRow(rows []Row, d DayType, night stay.Date) (Money, bool) {
	for _, r := range rows {
		if r.DayType == d && r.Covers(night) {
			return r.RentPrice, true
		}
	}
	return 0, false
}
