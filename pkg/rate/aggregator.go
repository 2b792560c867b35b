package rate

import (
	"math"
	"time"
)

// SecondAggregator accumulates sub-second poll counts and emits one CPS value
// each time a wall-clock second boundary is crossed.
type SecondAggregator struct {
	factor   float64
	acc      int64
	since    time.Time // Start of the current accumulation
	boundary time.Time // Next second boundary
	started  bool
}

// NewSecondAggregator creates an aggregator. factor multiplies every emitted
// value and compensates aggregation overhead (1.0 means no correction).
func NewSecondAggregator(factor float64) *SecondAggregator {
	if factor <= 0 {
		factor = 1.0
	}
	return &SecondAggregator{factor: factor}
}

// Reset discards accumulated counts and starts a new accumulation at now.
func (a *SecondAggregator) Reset(now time.Time) {
	a.acc = 0
	a.since = now
	a.boundary = nextBoundary(now)
	a.started = true
}

// Add accumulates count observed up to now. When now reaches the pending
// second boundary it returns the CPS value for the elapsed interval and true.
func (a *SecondAggregator) Add(count int, now time.Time) (CPSValue, bool) {
	if !a.started {
		a.Reset(now)
	}
	if count > 0 {
		a.acc += int64(count)
	}

	if now.Before(a.boundary) {
		return CPSValue{}, false
	}

	v := CPSValue{Time: a.boundary, Value: Missing}
	elapsed := now.Sub(a.since).Seconds()
	if elapsed > 0 {
		v.Value = math.Round(float64(a.acc) / elapsed * a.factor)
	}

	a.acc = 0
	a.since = now
	a.boundary = nextBoundary(now)
	return v, true
}

// Pending returns the counts accumulated since the last emitted value.
func (a *SecondAggregator) Pending() int64 {
	return a.acc
}

// UntilBoundary returns the time left before the next second boundary.
func (a *SecondAggregator) UntilBoundary(now time.Time) time.Duration {
	if !a.started {
		return nextBoundary(now).Sub(now)
	}
	return a.boundary.Sub(now)
}

func nextBoundary(t time.Time) time.Time {
	return t.Truncate(time.Second).Add(time.Second)
}
