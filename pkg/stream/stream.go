// Package stream provides pipeline stages over published CPS values.
package stream

import (
	"github.com/itohio/gorad/pkg/deadtime"
	"github.com/itohio/gorad/pkg/rate"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// DefaultBufferSize is the output capacity of a stage when none is given.
const DefaultBufferSize = 100

// Stage transforms a stream of CPS values. The output channel is closed once
// the input is closed and drained.
type Stage func(in <-chan rate.CPSValue) <-chan rate.CPSValue

// Chain composes stages left to right.
func Chain(stages ...Stage) Stage {
	return func(in <-chan rate.CPSValue) <-chan rate.CPSValue {
		out := in
		for _, s := range stages {
			out = s(out)
		}
		return out
	}
}

// NewCorrecting creates a stage replacing every value by its dead-time
// corrected rate. Values outside the model's range become rate.Missing.
func NewCorrecting(c *deadtime.Corrector, bufSize int) Stage {
	return newStage(bufSize, func() func(rate.CPSValue) rate.CPSValue {
		return func(v rate.CPSValue) rate.CPSValue {
			v.Value, _ = c.Correct("cps", v.Value)
			return v
		}
	})
}

// NewAveraging creates a stage emitting, for every input value, the mean of
// the last window valid values. Missing values are skipped; the output is
// Missing until a valid value has been seen.
func NewAveraging(window, bufSize int) Stage {
	if window <= 0 {
		window = 1
	}
	return newStage(bufSize, func() func(rate.CPSValue) rate.CPSValue {
		buf := make([]float64, 0, window)
		return func(v rate.CPSValue) rate.CPSValue {
			if v.Valid() {
				if len(buf) == window {
					copy(buf, buf[1:])
					buf = buf[:window-1]
				}
				buf = append(buf, v.Value)
			}
			if len(buf) == 0 {
				v.Value = rate.Missing
				return v
			}
			v.Value = stat.Mean(buf, nil)
			return v
		}
	})
}

// NewLogging creates a stage logging every value and passing it on unchanged.
func NewLogging(logger *zap.Logger, msg string, fields ...zap.Field) Stage {
	return newStage(0, func() func(rate.CPSValue) rate.CPSValue {
		return func(v rate.CPSValue) rate.CPSValue {
			f := make([]zap.Field, 0, len(fields)+2)
			f = append(f, fields...)
			f = append(f, zap.Time("time", v.Time))
			if v.Valid() {
				f = append(f, zap.Float64("cps", v.Value))
			} else {
				f = append(f, zap.String("cps", "missing"))
			}
			logger.Info(msg, f...)
			return v
		}
	})
}

// Drain consumes in until it is closed.
func Drain(in <-chan rate.CPSValue) {
	for range in {
	}
}

// newStage runs a fresh transform from newFn for every input it is applied to.
func newStage(bufSize int, newFn func() func(rate.CPSValue) rate.CPSValue) Stage {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return func(in <-chan rate.CPSValue) <-chan rate.CPSValue {
		out := make(chan rate.CPSValue, bufSize)
		fn := newFn()

		go func() {
			defer close(out)

			for v := range in {
				out <- fn(v)
			}
		}()

		return out
	}
}
