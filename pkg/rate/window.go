package rate

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// WindowSize is the number of CPS samples in one minute.
	WindowSize = 60
	// DefaultMinPartialSamples is the window length that must be exceeded
	// before a partial window is extrapolated to a CPM estimate.
	DefaultMinPartialSamples = 5
	// DefaultNoiseFloor is the raw sum that must be exceeded before a partial
	// window is extrapolated to a CPM estimate.
	DefaultNoiseFloor = 20
)

// SlidingWindow keeps the last WindowSize CPS values in arrival order.
// It is not safe for concurrent use; the owner serializes access.
type SlidingWindow struct {
	buf   [WindowSize]float64
	head  int // Index of the oldest value
	count int
	valid []float64 // Scratch for summation

	minSamples int
	noiseFloor float64
}

// NewSlidingWindow creates an empty window with the default partial-window policy.
func NewSlidingWindow() *SlidingWindow {
	return NewSlidingWindowWith(DefaultMinPartialSamples, DefaultNoiseFloor)
}

// NewSlidingWindowWith creates an empty window that extrapolates a partial
// window once it holds more than minSamples values summing above noiseFloor.
func NewSlidingWindowWith(minSamples int, noiseFloor float64) *SlidingWindow {
	return &SlidingWindow{
		valid:      make([]float64, 0, WindowSize),
		minSamples: minSamples,
		noiseFloor: noiseFloor,
	}
}

// Push appends v, evicting the oldest value once the window is full.
func (w *SlidingWindow) Push(v float64) {
	if w.count < WindowSize {
		w.buf[(w.head+w.count)%WindowSize] = v
		w.count++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % WindowSize
}

// Len returns the number of values in the window.
func (w *SlidingWindow) Len() int {
	return w.count
}

// Values returns the window contents, oldest first.
func (w *SlidingWindow) Values() []float64 {
	out := make([]float64, w.count)
	for i := range w.count {
		out[i] = w.buf[(w.head+i)%WindowSize]
	}
	return out
}

// Reset empties the window.
func (w *SlidingWindow) Reset() {
	w.head = 0
	w.count = 0
}

// CPM returns the exact sum of a full window, an extrapolated estimate once
// more than the minimum number of values summing above the noise floor are present,
// or Missing. Missing CPS values are left out of the sum and the length.
func (w *SlidingWindow) CPM() float64 {
	w.valid = w.valid[:0]
	for i := range w.count {
		v := w.buf[(w.head+i)%WindowSize]
		if !IsMissing(v) {
			w.valid = append(w.valid, v)
		}
	}

	n := len(w.valid)
	if n == 0 {
		return Missing
	}
	sum := floats.Sum(w.valid)
	if n == WindowSize {
		return sum
	}
	if n > w.minSamples && sum > w.noiseFloor {
		return math.Round(sum / float64(n) * WindowSize)
	}
	return Missing
}
