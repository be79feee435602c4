package pricing

// Money represents a monetary value in whole currency units.
type Money = int64

// Bucket accumulates the nights and subtotal of one day type.
type Bucket struct {
	Count int   `json:"count"`
	Price Money `json:"price"`
}

// Breakdown splits a stay price by day type.
type Breakdown struct {
	Normal  Bucket `json:"normal"`
	Weekend Bucket `json:"weekend"`
	Special Bucket `json:"special"`
}

// Total sums the subtotal of every bucket.
func (b Breakdown) Total() Money {
	return b.Normal.Price + b.Weekend.Price + b.Special.Price
}

// Nights sums the night count of every bucket.
func (b Breakdown) Nights() int {
	return b.Normal.Count + b.Weekend.Count + b.Special.Count
}

// Add merges other into a copy of b.
func (b Breakdown) Add(other Breakdown) Breakdown {
	b.Normal = b.Normal.add(other.Normal)
	b.Weekend = b.Weekend.add(other.Weekend)
	b.Special = b.Special.add(other.Special)
	return b
}

// Bucket returns the bucket for the given day type. Unknown day types land
// in the normal bucket.
func (b *Breakdown) Bucket(d DayType) *Bucket {
	switch d.Normalize() {
	case Weekend:
		return &b.Weekend
	case Special:
		return &b.Special
	default:
		return &b.Normal
	}
}

func (b *Breakdown) record(d DayType, price Money) {
	bucket := b.Bucket(d)
	bucket.Count++
	bucket.Price += price
}

func (b Bucket) add(other Bucket) Bucket {
	return Bucket{Count: b.Count + other.Count, Price: b.Price + other.Price}
}

// StayQuote is the night-by-night price of one stay.
type StayQuote struct {
	Total     Money     `json:"total"`
	Nights    int       `json:"nights"`
	Breakdown Breakdown `json:"breakdown"`
	// Degraded is set when any night was priced from a fallback value.
	Degraded bool `json:"degraded"`
}

// Resolution carries a resolved value and whether it came from a fallback
// instead of the backend.
type Resolution[T any] struct {
	Value    T
	Degraded bool
}
