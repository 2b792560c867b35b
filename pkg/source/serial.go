package source

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	// DefaultBaudRate is the highest rate common USB-serial bridges accept.
	// Lower rates measurably undercount high count rates.
	DefaultBaudRate = 921600
	// DefaultOverflowBytes is the drained byte count treated as a saturated
	// input buffer; bridges typically hold 4000-4100 bytes.
	DefaultOverflowBytes = 4000
	// DefaultReadTimeout bounds a blocking read.
	DefaultReadTimeout = 100 * time.Millisecond
	// DefaultPollEpsilon is the shortest wait between polls.
	DefaultPollEpsilon = 10 * time.Millisecond
	// DefaultPollFraction is the share of the remaining second waited between polls.
	DefaultPollFraction = 0.5

	readBufferSize = 8192
)

// Port is the part of a serial port a pulse source needs.
type Port interface {
	Read(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// PortOpener opens a serial port at the given baud rate.
type PortOpener func(name string, baudRate int) (Port, error)

// OpenSerialPort opens a real serial port.
func OpenSerialPort(name string, baudRate int) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SerialOptions configures a Serial source.
type SerialOptions struct {
	Port          string        // Port name, "" or "auto" discovers a port
	BaudRate      int
	OverflowBytes int
	ReadTimeout   time.Duration
	PollEpsilon   time.Duration
	PollFraction  float64
	Discover      DiscoverOptions // Used when Port is "auto"
	Opener        PortOpener      // Defaults to OpenSerialPort
	Logger        *zap.Logger
}

// Serial counts pulses arriving as bytes on a USB-serial line: the detector
// hardware toggles the line and every toggle is received as one byte.
type Serial struct {
	opts SerialOptions
	log  *zap.Logger

	mu   sync.Mutex
	port Port
	name string
	buf  []byte

	overflows  atomic.Int64
	readErrors atomic.Int64
}

var (
	_ Source    = (*Serial)(nil)
	_ Diagnoser = (*Serial)(nil)
)

// NewSerial creates a serial byte source. Zero options take defaults.
func NewSerial(opts SerialOptions) *Serial {
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.OverflowBytes <= 0 {
		opts.OverflowBytes = DefaultOverflowBytes
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.PollEpsilon <= 0 {
		opts.PollEpsilon = DefaultPollEpsilon
	}
	if opts.PollFraction <= 0 {
		opts.PollFraction = DefaultPollFraction
	}
	if opts.Opener == nil {
		opts.Opener = OpenSerialPort
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Discover.BaudRate == 0 {
		opts.Discover.BaudRate = opts.BaudRate
	}
	if opts.Discover.Opener == nil {
		opts.Discover.Opener = opts.Opener
	}
	if opts.Discover.Logger == nil {
		opts.Discover.Logger = opts.Logger
	}

	return &Serial{
		opts: opts,
		log:  opts.Logger.Named("serial"),
		buf:  make([]byte, readBufferSize),
	}
}

// Kind returns KindSerial.
func (s *Serial) Kind() Kind { return KindSerial }

// PortName returns the name of the open port, empty when closed.
func (s *Serial) PortName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Open opens the configured port, discovering one first for "auto".
func (s *Serial) Open(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return fmt.Errorf("already open")
	}

	name := s.opts.Port
	if name == "" || name == "auto" {
		name, err = DiscoverSerial(ctx, s.opts.Discover)
		if err != nil {
			return err
		}
	}

	port, err := s.opts.Opener(name, s.opts.BaudRate)
	if err != nil {
		return fmt.Errorf("%w: serial port %s: %v", ErrDeviceUnavailable, name, err)
	}
	defer func() {
		if err != nil {
			port.Close()
		}
	}()

	if err := port.SetReadTimeout(s.opts.ReadTimeout); err != nil {
		return fmt.Errorf("%w: set read timeout on %s: %v", ErrDeviceUnavailable, name, err)
	}
	// Bytes queued before the channel started belong to no second.
	if err := port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("%w: reset input buffer on %s: %v", ErrDeviceUnavailable, name, err)
	}

	s.port = port
	s.name = name
	s.log.Info("serial port opened", zap.String("port", name), zap.Int("baud_rate", s.opts.BaudRate))
	return nil
}

// Close closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.name = ""
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// Poll drains the bytes waiting on the port, clears the input buffer and
// returns the number of bytes drained.
func (s *Serial) Poll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return 0, ErrNotOpen
	}

	total := 0
	for {
		n, err := s.port.Read(s.buf)
		if err != nil {
			s.readErrors.Add(1)
			return 0, fmt.Errorf("failed to read %s: %w", s.name, err)
		}
		total += n
		if n < len(s.buf) {
			break
		}
	}

	if err := s.port.ResetInputBuffer(); err != nil {
		s.log.Warn("failed to reset input buffer", zap.String("port", s.name), zap.Error(err))
	}

	if total >= s.opts.OverflowBytes {
		s.overflows.Add(1)
		s.log.Warn("overflow detected",
			zap.String("port", s.name),
			zap.Int("bytes", total),
			zap.Int("limit", s.opts.OverflowBytes),
		)
	}
	return total, nil
}

// NextPoll waits a fraction of the remainder of the current second, so polls
// crowd toward the second boundary and the input buffer never fills.
func (s *Serial) NextPoll(now time.Time) time.Duration {
	elapsed := now.Sub(now.Truncate(time.Second))
	wait := time.Duration(s.opts.PollFraction * float64(time.Second-elapsed))
	return max(s.opts.PollEpsilon, wait)
}

// Diagnostics returns degraded read counters.
func (s *Serial) Diagnostics() Diagnostics {
	return Diagnostics{
		Overflows:  s.overflows.Load(),
		ReadErrors: s.readErrors.Load(),
	}
}
