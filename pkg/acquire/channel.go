// Package acquire runs pulse sources in the background and publishes their
// count rates once per second.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/gorad/pkg/config"
	"github.com/itohio/gorad/pkg/deadtime"
	"github.com/itohio/gorad/pkg/rate"
	"github.com/itohio/gorad/pkg/source"
	"go.uber.org/zap"
)

var (
	// ErrStopTimeout is returned by Stop when the acquisition goroutine does
	// not finish in time. Its resources may still be held.
	ErrStopTimeout = errors.New("acquisition did not stop in time")
	// ErrAlreadyRunning is returned by Start on a running channel.
	ErrAlreadyRunning = errors.New("channel already running")
	// ErrNoPolarity is returned by SetPolarity for sources without pulse polarity.
	ErrNoPolarity = errors.New("source has no pulse polarity")
)

const (
	// DefaultStopTimeout bounds how long Stop waits for the acquisition goroutine.
	DefaultStopTimeout = 5 * time.Second
	// ValuesBufferSize is the capacity of the Values channel; a slow reader
	// loses values instead of stalling acquisition.
	ValuesBufferSize = rate.WindowSize
)

// Options configures a Channel.
type Options struct {
	StopTimeout time.Duration
	Logger      *zap.Logger
	Now         func() time.Time // Defaults to time.Now
	Window      *rate.SlidingWindow
}

// Channel owns one pulse source, its second aggregator and its sliding
// window. A goroutine started by Start polls the source and publishes a
// Snapshot every second until Stop.
type Channel struct {
	name        string
	src         source.Source
	log         *zap.Logger
	now         func() time.Time
	stopTimeout time.Duration

	agg       *rate.SecondAggregator
	corrector *deadtime.Corrector

	mu       sync.RWMutex
	window   *rate.SlidingWindow
	snap     Snapshot
	last     time.Time // Time of the last published value
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	values   chan rate.CPSValue
	closed   bool             // values has been closed
	polarity *source.Polarity // Pending polarity change

	dropped atomic.Int64

	cbMu      sync.RWMutex
	callbacks []func(Snapshot)
}

// NewChannel creates a channel reading src with the correction and
// calibration settings of cfg.
func NewChannel(cfg config.ChannelConfig, src source.Source, opts Options) (*Channel, error) {
	model, err := deadtime.ParseModel(cfg.Correction)
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", cfg.Name, err)
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Window == nil {
		opts.Window = rate.NewSlidingWindow()
	}

	log := opts.Logger.Named("acquire").With(zap.String("channel", cfg.Name))
	return &Channel{
		name:        cfg.Name,
		src:         src,
		log:         log,
		now:         opts.Now,
		stopTimeout: opts.StopTimeout,
		agg:         rate.NewSecondAggregator(cfg.CalibrationFactor),
		corrector:   deadtime.NewCorrector(model, cfg.DeadTime(), log),
		window:      opts.Window,
		snap:        newSnapshot(cfg.Name, src.Kind()),
		values:      make(chan rate.CPSValue, ValuesBufferSize),
	}, nil
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Source returns the pulse source of the channel.
func (c *Channel) Source() source.Source { return c.src }

// Start opens the source and starts acquisition. ctx bounds opening the
// source only; acquisition runs until Stop. When the source cannot be opened
// the channel stays disconnected and no goroutine is started.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}
	if err := c.open(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx, c.done)
	return nil
}

// open acquires the source and resets the rate state. Caller holds c.mu.
func (c *Channel) open(ctx context.Context) error {
	if err := c.src.Open(ctx); err != nil {
		c.snap.Connected = false
		c.log.Error("failed to start channel", zap.Stringer("kind", c.src.Kind()), zap.Error(err))
		return fmt.Errorf("channel %q: %w", c.name, err)
	}

	c.agg.Reset(c.now())
	c.window.Reset()
	c.last = time.Time{}
	c.dropped.Store(0)
	c.snap = newSnapshot(c.name, c.src.Kind())
	c.snap.Connected = true
	if c.closed {
		c.values = make(chan rate.CPSValue, ValuesBufferSize)
		c.closed = false
	}

	c.log.Info("channel started",
		zap.Stringer("kind", c.src.Kind()),
		zap.Stringer("correction", c.corrector.Model()),
		zap.Duration("dead_time", c.corrector.DeadTime()),
	)
	return nil
}

// Stop signals the acquisition goroutine and waits for it to release the
// source. Stopping a stopped channel does nothing.
func (c *Channel) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()

	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		c.log.Info("channel stopped")
		return nil
	case <-timer.C:
		c.log.Error("acquisition did not stop, possible resource leak",
			zap.Stringer("kind", c.src.Kind()),
			zap.Duration("timeout", c.stopTimeout),
		)
		return fmt.Errorf("channel %q: %w", c.name, ErrStopTimeout)
	}
}

// IsRunning reports whether the acquisition goroutine is active.
func (c *Channel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Snapshot returns the last published state.
func (c *Channel) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Window returns a copy of the CPS values behind the current CPM, oldest first.
func (c *Channel) Window() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.Values()
}

// Values returns a channel receiving every CPS value as it is published. The
// channel is closed when acquisition stops; values are dropped when the
// reader falls behind.
func (c *Channel) Values() <-chan rate.CPSValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values
}

// OnUpdate registers a callback invoked with every published Snapshot. The
// callback runs on the acquisition goroutine and should return quickly.
func (c *Channel) OnUpdate(callback func(Snapshot)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

// SetPolarity changes the pulse polarity of the source. On a running channel
// the change is applied before the next poll.
func (c *Channel) SetPolarity(p source.Polarity) error {
	ps, ok := c.src.(source.PolaritySetter)
	if !ok {
		return fmt.Errorf("channel %q: %w", c.name, ErrNoPolarity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		ps.SetPolarity(p)
		return nil
	}
	c.polarity = &p
	return nil
}

func (c *Channel) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	defer c.release()

	for {
		if ctx.Err() != nil {
			return
		}

		c.step()

		wait := c.src.NextPoll(c.now())
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// step polls the source once and publishes a value when a second boundary
// has been crossed.
func (c *Channel) step() {
	c.applyPolarity()

	n, err := c.src.Poll()
	if err != nil {
		c.dropped.Add(1)
		c.log.Warn("transient read failure, counting zero pulses", zap.Error(err))
		n = 0
	}

	v, ok := c.agg.Add(n, c.now())
	if !ok {
		return
	}
	c.publish(v)
}

func (c *Channel) applyPolarity() {
	c.mu.Lock()
	p := c.polarity
	c.polarity = nil
	c.mu.Unlock()

	if p == nil {
		return
	}
	if ps, ok := c.src.(source.PolaritySetter); ok {
		ps.SetPolarity(*p)
		c.log.Info("pulse polarity changed", zap.Stringer("polarity", *p))
	}
}

func (c *Channel) publish(v rate.CPSValue) {
	c.mu.Lock()
	if !c.last.IsZero() && !v.Time.After(c.last) {
		c.mu.Unlock()
		c.log.Warn("discarding out of order value", zap.Time("time", v.Time), zap.Time("last", c.last))
		return
	}
	c.last = v.Time

	c.window.Push(v.Value)
	cpm := c.window.CPM()

	snap := c.snap
	snap.Time = v.Time
	snap.CPS = v.Value
	snap.CPM = cpm
	snap.CorrectedCPS, _ = c.corrector.Correct("cps", v.Value)
	snap.CorrectedCPM, _ = c.corrector.CorrectPerMinute("cpm", cpm)
	snap.WindowLen = c.window.Len()
	snap.DroppedReads = c.dropped.Load()
	if d, ok := c.src.(source.Diagnoser); ok {
		snap.Overflows = d.Diagnostics().Overflows
	}
	c.snap = snap
	values := c.values
	c.mu.Unlock()

	select {
	case values <- v:
	default:
	}

	c.notify(snap)
}

func (c *Channel) notify(snap Snapshot) {
	c.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(snap)
		}
	}
}

// release closes the source and the values channel once the goroutine exits.
func (c *Channel) release() {
	if err := c.src.Close(); err != nil {
		c.log.Warn("failed to release source", zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Connected = false
	c.polarity = nil
	close(c.values)
	c.closed = true
}
