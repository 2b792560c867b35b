package stream

import (
	"testing"
	"time"

	"github.com/itohio/gorad/pkg/deadtime"
	"github.com/itohio/gorad/pkg/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func feed(values ...float64) <-chan rate.CPSValue {
	in := make(chan rate.CPSValue, len(values))
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range values {
		in <- rate.CPSValue{Time: t0.Add(time.Duration(i+1) * time.Second), Value: v}
	}
	close(in)
	return in
}

func collect(t *testing.T, out <-chan rate.CPSValue) []float64 {
	t.Helper()
	var got []float64
	timeout := time.After(time.Second)
	for {
		select {
		case v, ok := <-out:
			if !ok {
				return got
			}
			got = append(got, v.Value)
		case <-timeout:
			t.Fatal("stage output was not closed")
			return nil
		}
	}
}

func TestAveraging(t *testing.T) {
	tests := []struct {
		name   string
		window int
		in     []float64
		want   []float64
	}{
		{
			name:   "window of three",
			window: 3,
			in:     []float64{10, 20, 30, 40},
			want:   []float64{10, 15, 20, 30},
		},
		{
			name:   "missing values skipped",
			window: 2,
			in:     []float64{rate.Missing, 10, rate.Missing, 30},
			want:   []float64{rate.Missing, 10, 10, 20},
		},
		{
			name:   "zero window passes values",
			window: 0,
			in:     []float64{5, 7},
			want:   []float64{5, 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, NewAveraging(tt.window, 0)(feed(tt.in...)))
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				if rate.IsMissing(tt.want[i]) {
					assert.True(t, rate.IsMissing(got[i]), "value %d", i)
					continue
				}
				assert.InDelta(t, tt.want[i], got[i], 1e-9, "value %d", i)
			}
		})
	}
}

func TestCorrecting(t *testing.T) {
	c := deadtime.NewCorrector(deadtime.NonParalyzing, 100*time.Microsecond, nil)
	got := collect(t, NewCorrecting(c, 1)(feed(1000, 20000, rate.Missing)))

	require.Len(t, got, 3)
	assert.InDelta(t, 1000/0.9, got[0], 1e-9)
	assert.True(t, rate.IsMissing(got[1]))
	assert.True(t, rate.IsMissing(got[2]))
}

func TestChainAndLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := deadtime.NewCorrector(deadtime.None, 0, nil)

	stage := Chain(
		NewCorrecting(c, 0),
		NewAveraging(2, 0),
		NewLogging(zap.New(core), "smoothed", zap.String("channel", "tube")),
	)
	got := collect(t, stage(feed(100, 200, rate.Missing)))

	assert.Equal(t, []float64{100, 150, 150}, got)
	require.Equal(t, 3, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "smoothed", entry.Message)
	assert.Equal(t, "tube", entry.ContextMap()["channel"])
	assert.Equal(t, float64(100), entry.ContextMap()["cps"])
}

// TestStage_GracefulShutdown tests that every stage closes its output when
// the input closes, and that a stage can be applied twice independently.
func TestStage_GracefulShutdown(t *testing.T) {
	avg := NewAveraging(10, 0)

	first := collect(t, avg(feed(10, 10)))
	second := collect(t, avg(feed(30)))

	assert.Equal(t, []float64{10, 10}, first)
	assert.Equal(t, []float64{30}, second)

	in := make(chan rate.CPSValue)
	out := avg(in)
	close(in)
	done := make(chan struct{})
	go func() {
		Drain(out)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drain did not return")
	}
}
