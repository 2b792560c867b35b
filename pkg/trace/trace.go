// Package trace keeps rolling float32 recordings of raw detector samples for
// diagnostic plotting.
package trace

import (
	"sync"

	"github.com/chewxy/math32"
)

// Ring is a fixed-capacity rolling recording. Gaps between recorded
// segments are stored as NaN so plots show them as breaks.
// Ring is safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []float32
	head  int // Index of the oldest sample
	count int
}

// NewRing creates a ring holding up to capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of recorded samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// AppendInt16 records a block of signed samples followed by gap NaN samples.
func (r *Ring) AppendInt16(block []int16, gap int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range block {
		r.push(float32(v))
	}
	for range gap {
		r.push(math32.NaN())
	}
}

// Append records samples.
func (r *Ring) Append(values ...float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range values {
		r.push(v)
	}
}

// Reset discards the recording.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}

// Snapshot copies the recording into dst, oldest first, reusing dst when
// it has enough capacity.
func (r *Ring) Snapshot(dst []float32) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cap(dst) >= r.count {
		dst = dst[:r.count]
	} else {
		dst = make([]float32, r.count)
	}
	n := copy(dst, r.buf[r.head:min(r.head+r.count, len(r.buf))])
	copy(dst[n:], r.buf[:r.count-n])
	return dst
}

func (r *Ring) push(v float32) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}
