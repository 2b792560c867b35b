package source

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgeWait bounds one WaitForEdge call so the watcher observes Close.
const edgeWait = 100 * time.Millisecond

// PinResolver finds an input pin by name.
type PinResolver func(name string) (gpio.PinIn, error)

// ResolvePin initializes the host drivers and looks the pin up in the registry.
func ResolvePin(name string) (gpio.PinIn, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return p, nil
}

// ParseEdge converts "falling" or "rising" to a gpio.Edge.
func ParseEdge(s string) (gpio.Edge, error) {
	switch s {
	case "", "falling":
		return gpio.FallingEdge, nil
	case "rising":
		return gpio.RisingEdge, nil
	}
	return gpio.NoEdge, fmt.Errorf("unknown edge %q", s)
}

// GPIOOptions configures a GPIO source.
type GPIOOptions struct {
	Pin         string
	Edge        gpio.Edge
	PollEpsilon time.Duration
	Resolver    PinResolver // Defaults to ResolvePin
	Logger      *zap.Logger
}

// GPIO counts detector edges on an input pin. Edges are counted without
// debounce: any debounce of a millisecond or more would swallow ~150 µs
// detector pulses.
//
// Edges are counted one WaitForEdge call at a time, so the count is only as
// good as the driver's edge queue. Drivers that queue edges (character device,
// gpiotest) lose nothing; the sysfs driver reports several edges between two
// calls as one, which undercounts at high rates.
type GPIO struct {
	opts GPIOOptions
	log  *zap.Logger

	mu     sync.Mutex
	pin    gpio.PinIn
	cancel context.CancelFunc
	done   chan struct{}

	count atomic.Int64
}

var _ Source = (*GPIO)(nil)

// NewGPIO creates a GPIO edge source.
func NewGPIO(opts GPIOOptions) *GPIO {
	if opts.Edge == gpio.NoEdge {
		opts.Edge = gpio.FallingEdge
	}
	if opts.PollEpsilon <= 0 {
		opts.PollEpsilon = DefaultPollEpsilon
	}
	if opts.Resolver == nil {
		opts.Resolver = ResolvePin
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &GPIO{
		opts: opts,
		log:  opts.Logger.Named("gpio"),
	}
}

// Kind returns KindGPIO.
func (g *GPIO) Kind() Kind { return KindGPIO }

// Open registers edge detection on the pin and starts counting.
func (g *GPIO) Open(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pin != nil {
		return fmt.Errorf("already open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pin, err := g.opts.Resolver(g.opts.Pin)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := pin.In(gpio.PullNoChange, g.opts.Edge); err != nil {
		return fmt.Errorf("%w: edge detection on %s: %v", ErrDeviceUnavailable, g.opts.Pin, err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	g.pin = pin
	g.cancel = cancel
	g.done = make(chan struct{})
	g.count.Store(0)

	go g.watch(wctx, pin, g.done)

	g.log.Info("gpio edge detection registered", zap.String("pin", g.opts.Pin), zap.Stringer("edge", g.opts.Edge))
	return nil
}

// Close stops counting and unregisters edge detection.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pin == nil {
		return nil
	}

	g.cancel()
	<-g.done

	err := g.pin.In(gpio.PullNoChange, gpio.NoEdge)
	if herr := g.pin.Halt(); err == nil {
		err = herr
	}
	g.pin = nil
	if err != nil {
		return fmt.Errorf("failed to release gpio %s: %w", g.opts.Pin, err)
	}
	return nil
}

// Poll returns and zeroes the number of edges counted since the last Poll.
func (g *GPIO) Poll() (int, error) {
	g.mu.Lock()
	open := g.pin != nil
	g.mu.Unlock()
	if !open {
		return 0, ErrNotOpen
	}
	return int(g.count.Swap(0)), nil
}

// NextPoll waits for the next second boundary; the interrupt already counts
// at full resolution.
func (g *GPIO) NextPoll(now time.Time) time.Duration {
	return untilNextSecond(now, g.opts.PollEpsilon)
}

// watch counts one edge per WaitForEdge that reports one.
func (g *GPIO) watch(ctx context.Context, pin gpio.PinIn, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if pin.WaitForEdge(edgeWait) {
			g.count.Add(1)
		}
	}
}
