package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/itohio/gorad/pkg/deadtime"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"
)

// minFraction is the share of a simulated second treated as used up.
const minFraction = 1e-9

// SimulatedOptions configures a Simulated source.
type SimulatedOptions struct {
	MeanRate    float64        // True event rate (events per second)
	Model       deadtime.Model // How the simulated detector loses pulses
	DeadTime    time.Duration
	Seed        uint64 // 0 seeds from the clock
	PollEpsilon time.Duration
	Logger      *zap.Logger
}

// Simulated is a detector without hardware. Every Poll yields the pulses
// counted during the real time elapsed since the previous Poll. Pulses are
// simulated a second at a time and handed out in proportion to elapsed time.
type Simulated struct {
	opts SimulatedOptions
	log  *zap.Logger
	now  func() time.Time

	mu       sync.Mutex
	sim      *deadtime.Simulator
	thin     distuv.Binomial
	lastPoll time.Time
	pending  int     // Pulses of the current simulated second not yet returned
	left     float64 // Share of the current simulated second not yet returned
	meanRate float64
}

var _ Source = (*Simulated)(nil)

// NewSimulated creates a simulated source.
func NewSimulated(opts SimulatedOptions) *Simulated {
	if opts.PollEpsilon <= 0 {
		opts.PollEpsilon = DefaultPollEpsilon
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Simulated{
		opts:     opts,
		log:      opts.Logger.Named("simulated"),
		now:      time.Now,
		meanRate: opts.MeanRate,
	}
}

// Kind returns KindSimulation.
func (s *Simulated) Kind() Kind { return KindSimulation }

// Open starts the simulation.
func (s *Simulated) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim != nil {
		return fmt.Errorf("already open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	seed := s.opts.Seed
	if seed == 0 {
		seed = uint64(s.now().UnixNano())
	}
	s.sim = deadtime.NewSeededSimulator(s.opts.Model, s.opts.DeadTime, seed)
	s.thin = distuv.Binomial{Src: rand.NewPCG(seed+1, seed^0x6a09e667f3bcc909)}
	s.lastPoll = s.now()
	s.pending, s.left = 0, 0

	s.log.Info("simulated detector started",
		zap.Float64("mean_rate", s.meanRate),
		zap.Stringer("model", s.opts.Model),
		zap.Duration("dead_time", s.opts.DeadTime),
	)
	return nil
}

// Close stops the simulation.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sim = nil
	return nil
}

// Poll returns the pulses counted since the previous Poll.
func (s *Simulated) Poll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return 0, ErrNotOpen
	}

	now := s.now()
	elapsed := now.Sub(s.lastPoll).Seconds()
	s.lastPoll = now
	return s.take(elapsed), nil
}

// take returns the pulses of the next d simulated seconds. A partly used
// second gives each remaining pulse a chance of d/left to be returned now.
func (s *Simulated) take(d float64) int {
	total := 0
	for d > minFraction {
		if s.left <= minFraction {
			s.pending = s.sim.Simulate(s.meanRate)
			s.left = 1
		}
		step := min(d, s.left)
		n := s.pending
		if step < s.left && n > 0 {
			s.thin.N = float64(n)
			s.thin.P = step / s.left
			n = int(s.thin.Rand())
		}
		s.pending -= n
		s.left -= step
		d -= step
		total += n
	}
	return total
}

// NextPoll waits for the next second boundary.
func (s *Simulated) NextPoll(now time.Time) time.Duration {
	return untilNextSecond(now, s.opts.PollEpsilon)
}

// SetMeanRate changes the simulated true rate.
func (s *Simulated) SetMeanRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meanRate = rate
	s.pending, s.left = 0, 0
}
