package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/gorad/pkg/trace"
	"go.uber.org/zap"
)

const (
	// DefaultSampleRate is the audio capture rate.
	DefaultSampleRate = 44100
	// DefaultBlockSize is the smallest block that does not systematically
	// undercount; above ~128 samples pulses merge within a block.
	DefaultBlockSize = 64
	// DefaultPulseHeightMax is full scale for 16-bit samples.
	DefaultPulseHeightMax = 32768
	// DefaultThresholdPercent is the detection threshold in % of full scale.
	DefaultThresholdPercent = 50

	tracePulses = 40 // Pulses kept in the pulse trace
	traceGap    = 4  // NaN samples between recorded pulses
)

// BlockReader reads fixed-size blocks of mono 16-bit samples.
type BlockReader interface {
	// ReadBlock blocks until dst is filled. It returns ErrOverflow with a
	// valid block when samples were dropped before it.
	ReadBlock(dst []int16) error
	Close() error
}

// StreamOpener opens an input stream on the named device ("auto" for the default).
type StreamOpener func(device string, sampleRate float64, blockSize int) (BlockReader, error)

// AudioOptions configures an Audio source.
type AudioOptions struct {
	Device           string
	SampleRate       float64
	BlockSize        int
	PulseHeightMax   float64
	ThresholdPercent float64
	Polarity         Polarity
	Opener           StreamOpener // Defaults to the PortAudio input stream
	Logger           *zap.Logger
}

// Traces holds copies of the diagnostic recordings of an Audio source.
type Traces struct {
	LastPulse  []float32 // Block holding the most recent detected pulse
	Pulses     []float32 // Recent pulse blocks separated by NaN gaps
	LastSecond []float32 // Raw samples of roughly the last second
}

// Audio detects shaped detector pulses on an audio line input. Each block
// counts as at most one pulse.
type Audio struct {
	opts AudioOptions
	log  *zap.Logger

	mu       sync.Mutex
	stream   BlockReader
	block    []int16
	polarity Polarity

	lastPulse  *trace.Ring
	pulses     *trace.Ring
	lastSecond *trace.Ring

	overflows  atomic.Int64
	readErrors atomic.Int64
}

var (
	_ Source         = (*Audio)(nil)
	_ PolaritySetter = (*Audio)(nil)
	_ Diagnoser      = (*Audio)(nil)
)

// NewAudio creates an audio pulse source. Zero options take defaults.
func NewAudio(opts AudioOptions) *Audio {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.PulseHeightMax <= 0 {
		opts.PulseHeightMax = DefaultPulseHeightMax
	}
	if opts.ThresholdPercent <= 0 {
		opts.ThresholdPercent = DefaultThresholdPercent
	}
	if opts.Opener == nil {
		opts.Opener = OpenPortAudio
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Audio{
		opts:       opts,
		log:        opts.Logger.Named("audio"),
		block:      make([]int16, opts.BlockSize),
		polarity:   opts.Polarity,
		lastPulse:  trace.NewRing(opts.BlockSize),
		pulses:     trace.NewRing(tracePulses * (opts.BlockSize + traceGap)),
		lastSecond: trace.NewRing(int(opts.SampleRate)),
	}
}

// Kind returns KindAudio.
func (a *Audio) Kind() Kind { return KindAudio }

// Open opens the input stream.
func (a *Audio) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil {
		return fmt.Errorf("already open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stream, err := a.opts.Opener(a.opts.Device, a.opts.SampleRate, a.opts.BlockSize)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: audio input %q: %v", ErrDeviceUnavailable, a.opts.Device, err)
	}
	a.stream = stream

	a.log.Info("audio input opened",
		zap.String("device", a.opts.Device),
		zap.Float64("sample_rate", a.opts.SampleRate),
		zap.Int("block_size", a.opts.BlockSize),
		zap.Float64("threshold", a.threshold()),
		zap.Stringer("polarity", a.polarity),
	)
	return nil
}

// Close closes the input stream.
func (a *Audio) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream == nil {
		return nil
	}
	err := a.stream.Close()
	a.stream = nil
	if err != nil {
		return fmt.Errorf("failed to close audio input: %w", err)
	}
	return nil
}

// Poll reads one block and returns 1 when it holds the start of a pulse.
func (a *Audio) Poll() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream == nil {
		return 0, ErrNotOpen
	}

	if err := a.stream.ReadBlock(a.block); err != nil {
		if !errors.Is(err, ErrOverflow) {
			a.readErrors.Add(1)
			return 0, fmt.Errorf("failed to read audio block: %w", err)
		}
		a.overflows.Add(1)
		a.log.Warn("overflow detected", zap.Int("block_size", len(a.block)))
	}

	a.lastSecond.AppendInt16(a.block, 0)

	if !detectPulse(a.block, a.threshold(), a.polarity) {
		return 0, nil
	}

	a.lastPulse.Reset()
	a.lastPulse.AppendInt16(a.block, 0)
	a.pulses.AppendInt16(a.block, traceGap)
	return 1, nil
}

// NextPoll returns zero: the blocking read paces the loop.
func (a *Audio) NextPoll(time.Time) time.Duration { return 0 }

// SetPolarity changes the pulse direction used for detection.
func (a *Audio) SetPolarity(p Polarity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.polarity = p
}

// Polarity returns the pulse direction used for detection.
func (a *Audio) Polarity() Polarity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.polarity
}

// Diagnostics returns degraded read counters.
func (a *Audio) Diagnostics() Diagnostics {
	return Diagnostics{
		Overflows:  a.overflows.Load(),
		ReadErrors: a.readErrors.Load(),
	}
}

// Traces returns copies of the diagnostic recordings.
func (a *Audio) Traces() Traces {
	return Traces{
		LastPulse:  a.lastPulse.Snapshot(nil),
		Pulses:     a.pulses.Snapshot(nil),
		LastSecond: a.lastSecond.Snapshot(nil),
	}
}

func (a *Audio) threshold() float64 {
	return a.opts.ThresholdPercent / 100 * a.opts.PulseHeightMax
}

// detectPulse reports whether block holds a new pulse: its extreme value in
// the pulse direction exceeds threshold while its first sample does not.
// A block starting above threshold is the tail of an already counted pulse.
func detectPulse(block []int16, threshold float64, polarity Polarity) bool {
	if len(block) == 0 {
		return false
	}
	level := func(v int16) float64 {
		if polarity == Positive {
			return float64(v)
		}
		return -float64(v)
	}

	if level(block[0]) > threshold {
		return false
	}

	extreme := level(block[0])
	for _, v := range block[1:] {
		extreme = max(extreme, level(v))
	}
	return extreme > threshold
}
