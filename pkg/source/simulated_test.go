package source_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/itohio/gorad/pkg/deadtime"
	"github.com/itohio/gorad/pkg/rate"
	"github.com/itohio/gorad/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSimulated(t *testing.T, opts source.SimulatedOptions, start time.Time) (*source.Simulated, *manualClock) {
	t.Helper()
	clock := &manualClock{now: start}
	s := source.NewSimulated(opts)
	s.SetClock(clock.Now)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestSimulated_CountsFollowElapsedTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 200*int(time.Millisecond), time.UTC)
	s, clock := newSimulated(t, source.SimulatedOptions{
		MeanRate: 1000,
		Model:    deadtime.Paralyzing,
		Seed:     7,
	}, start)

	n, err := s.Poll()
	require.NoError(t, err)
	assert.Zero(t, n, "no time elapsed")

	// The first poll covers only the rest of the starting second.
	clock.Advance(805 * time.Millisecond)
	n, err = s.Poll()
	require.NoError(t, err)
	assert.Greater(t, n, 680)
	assert.Less(t, n, 930)
	total := n

	for i := range 59 {
		clock.Advance(time.Second)
		n, err := s.Poll()
		require.NoError(t, err)
		assert.Greater(t, n, 850, "second %d", i)
		assert.Less(t, n, 1150, "second %d", i)
		total += n
	}
	assert.InEpsilon(t, 59805, total, 0.03)
}

func TestSimulated_SubSecondPolls(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, clock := newSimulated(t, source.SimulatedOptions{
		MeanRate: 500,
		Model:    deadtime.NonParalyzing,
		Seed:     3,
	}, start)

	total := 0
	for i := range 40 {
		clock.Advance(250 * time.Millisecond)
		n, err := s.Poll()
		require.NoError(t, err)
		assert.Greater(t, n, 70, "poll %d", i)
		assert.Less(t, n, 180, "poll %d", i)
		total += n
	}
	assert.InEpsilon(t, 5000, total, 0.05)
}

func TestSimulated_FirstSecondThroughAggregator(t *testing.T) {
	const (
		meanRate = 10000.0
		epsilon  = 10 * time.Millisecond
	)
	for _, offset := range []time.Duration{200 * time.Millisecond, 900 * time.Millisecond} {
		t.Run(offset.String(), func(t *testing.T) {
			start := time.Date(2024, 1, 1, 0, 0, 0, int(offset), time.UTC)
			s, clock := newSimulated(t, source.SimulatedOptions{
				MeanRate: meanRate,
				Model:    deadtime.Paralyzing,
				Seed:     21,
			}, start)

			agg := rate.NewSecondAggregator(1)
			agg.Reset(clock.Now())

			var values []rate.CPSValue
			for len(values) < 3 {
				n, err := s.Poll()
				require.NoError(t, err)
				if v, ok := agg.Add(n, clock.Now()); ok {
					values = append(values, v)
				}
				clock.Advance(s.NextPoll(clock.Now()))
			}

			for i, v := range values {
				assert.InEpsilon(t, meanRate, v.Value, 0.15, "value %d", i)
			}
		})
	}
}

func TestSimulated_DeadTimeLoss(t *testing.T) {
	const (
		rate = 5000.0
		tau  = 100 * time.Microsecond
	)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, clock := newSimulated(t, source.SimulatedOptions{
		MeanRate: rate,
		Model:    deadtime.Paralyzing,
		DeadTime: tau,
		Seed:     11,
	}, start)

	clock.Advance(100 * time.Second)
	n, err := s.Poll()
	require.NoError(t, err)

	expected := 100 * rate * math.Exp(-rate*tau.Seconds())
	assert.InEpsilon(t, expected, float64(n), 0.02)
}

func TestSimulated_SetMeanRateZero(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, clock := newSimulated(t, source.SimulatedOptions{MeanRate: 100, Model: deadtime.Paralyzing, Seed: 1}, start)

	s.SetMeanRate(0)
	clock.Advance(5 * time.Second)
	n, err := s.Poll()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSimulated_Lifecycle(t *testing.T) {
	s := source.NewSimulated(source.SimulatedOptions{MeanRate: 10, Model: deadtime.Paralyzing})
	assert.Equal(t, source.KindSimulation, s.Kind())

	_, err := s.Poll()
	assert.ErrorIs(t, err, source.ErrNotOpen)

	require.NoError(t, s.Open(context.Background()))
	assert.Error(t, s.Open(context.Background()), "second open")
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Open(ctx), context.Canceled)
}
