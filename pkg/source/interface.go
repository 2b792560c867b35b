// Package source turns physical detector signals into pulse counts.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceUnavailable is returned by Open when the underlying device
	// cannot be found or acquired.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrNotOpen is returned by Poll before Open or after Close.
	ErrNotOpen = errors.New("source not open")
	// ErrOverflow marks a read whose data is valid but where the device
	// buffer saturated, so pulses may have been lost.
	ErrOverflow = errors.New("input overflow")
)

// Kind identifies a source variant.
type Kind int

const (
	KindAudio Kind = iota
	KindSerial
	KindGPIO
	KindSimulation
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindSerial:
		return "serial"
	case KindGPIO:
		return "gpio"
	case KindSimulation:
		return "simulation"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindAudio, KindSerial, KindGPIO, KindSimulation} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown source kind %q", s)
}

// Polarity is the direction of a detector pulse.
type Polarity int

const (
	Negative Polarity = iota
	Positive
)

func (p Polarity) String() string {
	if p == Positive {
		return "positive"
	}
	return "negative"
}

// ParsePolarity converts a configuration string to a Polarity.
func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "", "negative":
		return Negative, nil
	case "positive":
		return Positive, nil
	}
	return Negative, fmt.Errorf("unknown polarity %q", s)
}

// Source produces pulse counts for one detector channel.
//
// Open acquires every OS resource the source needs and releases all of them
// again when it fails. Poll returns the pulses seen since the previous Poll.
// NextPoll tells the caller how long to wait before polling again. Close
// releases resources and may be called any number of times.
type Source interface {
	Kind() Kind
	Open(ctx context.Context) error
	Poll() (int, error)
	NextPoll(now time.Time) time.Duration
	Close() error
}

// PolaritySetter is implemented by sources whose detection depends on pulse
// polarity. Callers must not call SetPolarity concurrently with Poll.
type PolaritySetter interface {
	SetPolarity(p Polarity)
	Polarity() Polarity
}

// Diagnostics counts degraded reads of a source.
type Diagnostics struct {
	Overflows  int64 // Reads where the device buffer saturated
	ReadErrors int64 // Failed reads, each counted as zero pulses
}

// Diagnoser is implemented by sources that track degraded reads.
type Diagnoser interface {
	Diagnostics() Diagnostics
}

// untilNextSecond returns the time left to the next wall-clock second, at least floor.
func untilNextSecond(now time.Time, floor time.Duration) time.Duration {
	return max(floor, now.Truncate(time.Second).Add(time.Second).Sub(now))
}
