// Package rate turns per-poll pulse counts into per-second and per-minute count rates.
package rate

import (
	"math"
	"time"
)

// Missing is the value used for a rate that could not be determined.
var Missing = math.NaN()

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// CPSValue is one counts-per-second sample stamped to the second boundary it closes.
type CPSValue struct {
	Time  time.Time
	Value float64 // Non-negative integer count or Missing
}

// Valid reports whether the value carries a count.
func (v CPSValue) Valid() bool {
	return !IsMissing(v.Value)
}
