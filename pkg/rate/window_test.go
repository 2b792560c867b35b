package rate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindow_FullWindowExactSum(t *testing.T) {
	w := NewSlidingWindow()
	want := 0.0
	for i := range WindowSize {
		v := float64(i % 7)
		w.Push(v)
		want += v
	}

	assert.Equal(t, WindowSize, w.Len())
	assert.Equal(t, want, w.CPM())
}

func TestSlidingWindow_EvictsOldest(t *testing.T) {
	w := NewSlidingWindow()
	for i := range WindowSize + 10 {
		w.Push(float64(i))
	}

	values := w.Values()
	assert.Len(t, values, WindowSize)
	assert.Equal(t, float64(10), values[0])
	assert.Equal(t, float64(WindowSize+9), values[len(values)-1])

	want := 0.0
	for i := 10; i < WindowSize+10; i++ {
		want += float64(i)
	}
	assert.Equal(t, want, w.CPM())
}

func TestSlidingWindow_PartialWindow(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "empty", values: nil, want: Missing},
		{name: "too short", values: []float64{100, 100, 100, 100, 100}, want: Missing},
		{name: "below noise floor", values: []float64{3, 3, 3, 3, 3, 3}, want: Missing},
		{name: "at noise floor", values: []float64{5, 5, 5, 5, 0, 0}, want: Missing},
		{name: "extrapolated", values: []float64{4, 4, 4, 4, 4, 4}, want: 240},
		{name: "rounded", values: []float64{10, 11, 10, 11, 10, 11, 10}, want: 626},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewSlidingWindow()
			for _, v := range tt.values {
				w.Push(v)
			}
			got := w.CPM()
			if IsMissing(tt.want) {
				assert.True(t, IsMissing(got), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlidingWindow_ThreeEqualValues(t *testing.T) {
	for _, v := range []float64{1, 6, 7, 50} {
		w := NewSlidingWindowWith(2, DefaultNoiseFloor)
		for range 3 {
			w.Push(v)
		}
		if 3*v <= DefaultNoiseFloor {
			assert.True(t, IsMissing(w.CPM()), "v=%v", v)
		} else {
			assert.Equal(t, 60*v, w.CPM(), "v=%v", v)
		}

		// The default policy needs more than five samples.
		d := NewSlidingWindow()
		for range 3 {
			d.Push(v)
		}
		assert.True(t, IsMissing(d.CPM()), "v=%v", v)
	}
}

func TestSlidingWindow_SkipsMissing(t *testing.T) {
	w := NewSlidingWindow()
	for i := range WindowSize {
		if i == 3 {
			w.Push(Missing)
			continue
		}
		w.Push(10)
	}

	// 59 valid values extrapolate to a full minute.
	assert.Equal(t, float64(600), w.CPM())

	w.Reset()
	assert.Equal(t, 0, w.Len())
	assert.True(t, IsMissing(w.CPM()))
}
