// Package sourcetest provides in-memory serial ports and audio streams for
// exercising pulse sources without hardware.
package sourcetest

import (
	"errors"
	"sync"
	"time"

	"github.com/itohio/gorad/pkg/source"
)

// ErrClosed is returned by reads on a closed fake.
var ErrClosed = errors.New("sourcetest: closed")

// Port is a fake serial port whose input buffer is filled with Feed.
type Port struct {
	mu         sync.Mutex
	pending    int
	timeout    time.Duration
	idle       time.Duration
	readErr    error
	closed     bool
	closeCalls int
	resets     int
}

var _ source.Port = (*Port)(nil)

// NewPort creates a fake port. idle is how long a read with no pending
// bytes blocks, standing in for the read timeout.
func NewPort(idle time.Duration) *Port {
	return &Port{idle: idle}
}

// Feed queues n pulse bytes.
func (p *Port) Feed(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending += n
}

// FailReads makes every following read return err (nil restores reads).
func (p *Port) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// Read drains up to len(b) pending bytes.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	n := min(p.pending, len(b))
	p.pending -= n
	idle := p.idle
	p.mu.Unlock()

	for i := range n {
		b[i] = 0x55
	}
	if n == 0 && idle > 0 {
		time.Sleep(idle)
	}
	return n, nil
}

// ResetInputBuffer discards pending bytes.
func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = 0
	p.resets++
	return nil
}

// SetReadTimeout records the timeout.
func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = t
	return nil
}

// Close marks the port closed. Closing twice returns an error.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	if p.closed {
		return errors.New("sourcetest: port already closed")
	}
	p.closed = true
	return nil
}

// Closed reports whether the port was closed.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// CloseCalls returns how many times Close was called.
func (p *Port) CloseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

// ReadTimeout returns the last timeout set.
func (p *Port) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

// Opener returns a PortOpener serving ports by name. Unknown names fail.
func Opener(ports map[string]*Port) source.PortOpener {
	return func(name string, baudRate int) (source.Port, error) {
		p, ok := ports[name]
		if !ok {
			return nil, errors.New("sourcetest: no such port " + name)
		}
		return p, nil
	}
}

// Stream is a fake audio input returning queued blocks, then silence.
type Stream struct {
	mu         sync.Mutex
	blocks     [][]int16
	errs       []error
	closed     bool
	closeCalls int
}

var _ source.BlockReader = (*Stream)(nil)

// Push queues a block; err is returned alongside it.
func (s *Stream) Push(block []int16, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, block)
	s.errs = append(s.errs, err)
}

// ReadBlock copies the next queued block into dst, or zeros when none are left.
func (s *Stream) ReadBlock(dst []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(s.blocks) == 0 {
		clear(dst)
		return nil
	}
	block, err := s.blocks[0], s.errs[0]
	s.blocks, s.errs = s.blocks[1:], s.errs[1:]
	clear(dst)
	copy(dst, block)
	return err
}

// Close closes the stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.closed {
		return errors.New("sourcetest: stream already closed")
	}
	s.closed = true
	return nil
}

// CloseCalls returns how many times Close was called.
func (s *Stream) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// StreamOpener returns a StreamOpener that always yields s.
func StreamOpener(s *Stream) source.StreamOpener {
	return func(device string, sampleRate float64, blockSize int) (source.BlockReader, error) {
		return s, nil
	}
}
