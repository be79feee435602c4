package stay

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Count returns the number of nights between two instants. Time of day is
// ignored and the order of the arguments does not matter. A same-day or
// zero-length range still counts as one night.
func Count(checkIn, checkOut time.Time) int {
	in := DateOf(checkIn).Time()
	out := DateOf(checkOut).Time()
	diff := out.Sub(in)
	if diff < 0 {
		diff = -diff
	}
	n := int(math.Ceil(float64(diff) / float64(day)))
	if n < 1 {
		return 1
	}
	return n
}

// Nights lists every night of the stay in chronological order, starting at
// the check-in date. Each call returns a new slice.
func Nights(checkIn, checkOut time.Time) []Date {
	n := Count(checkIn, checkOut)
	first := DateOf(checkIn)
	out := make([]Date, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, first.AddDays(i))
	}
	return out
}
