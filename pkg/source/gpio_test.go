package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itohio/gorad/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func pinResolver(p gpio.PinIn) source.PinResolver {
	return func(name string) (gpio.PinIn, error) {
		if p == nil {
			return nil, errors.New("no such pin " + name)
		}
		return p, nil
	}
}

func TestGPIO_CountsEdges(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", EdgesChan: make(chan gpio.Level, 500)}
	g := source.NewGPIO(source.GPIOOptions{
		Pin:      "GPIO17",
		Edge:     gpio.FallingEdge,
		Resolver: pinResolver(pin),
	})
	require.NoError(t, g.Open(context.Background()))
	defer g.Close()

	for range 150 {
		pin.EdgesChan <- gpio.Low
	}
	require.Eventually(t, func() bool { return len(pin.EdgesChan) == 0 }, time.Second, time.Millisecond)
	// The watcher may still be incrementing for the last edge it took.
	time.Sleep(10 * time.Millisecond)

	n, err := g.Poll()
	require.NoError(t, err)
	assert.Equal(t, 150, n)

	n, err = g.Poll()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "poll zeroes the counter")
}

func TestGPIO_RegistrationFailure(t *testing.T) {
	// gpiotest refuses edge detection without an edge channel.
	pin := &gpiotest.Pin{N: "GPIO4"}
	g := source.NewGPIO(source.GPIOOptions{Pin: "GPIO4", Resolver: pinResolver(pin)})
	assert.ErrorIs(t, g.Open(context.Background()), source.ErrDeviceUnavailable)

	missing := source.NewGPIO(source.GPIOOptions{Pin: "GPIO99", Resolver: pinResolver(nil)})
	assert.ErrorIs(t, missing.Open(context.Background()), source.ErrDeviceUnavailable)

	_, err := missing.Poll()
	assert.ErrorIs(t, err, source.ErrNotOpen)
}

func TestGPIO_CloseIsIdempotent(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", EdgesChan: make(chan gpio.Level)}
	g := source.NewGPIO(source.GPIOOptions{Pin: "GPIO17", Resolver: pinResolver(pin)})
	require.NoError(t, g.Open(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, g.Close())
		assert.NoError(t, g.Close())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	_, err := g.Poll()
	assert.ErrorIs(t, err, source.ErrNotOpen)
}

func TestGPIO_NextPoll(t *testing.T) {
	g := source.NewGPIO(source.GPIOOptions{Pin: "GPIO17"})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 700*time.Millisecond, g.NextPoll(base.Add(300*time.Millisecond)))
	assert.Equal(t, time.Second, g.NextPoll(base))
	assert.Equal(t, source.DefaultPollEpsilon, g.NextPoll(base.Add(999*time.Millisecond)))
}

func TestParseEdge(t *testing.T) {
	e, err := source.ParseEdge("rising")
	require.NoError(t, err)
	assert.Equal(t, gpio.RisingEdge, e)

	e, err = source.ParseEdge("")
	require.NoError(t, err)
	assert.Equal(t, gpio.FallingEdge, e)

	_, err = source.ParseEdge("both-ish")
	assert.Error(t, err)
}
