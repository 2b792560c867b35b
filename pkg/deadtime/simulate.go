package deadtime

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Simulator generates observed counts for one-second windows of a Poisson
// pulse train passing through a detector with dead time. Its state carries
// across calls, so one Simulator models exactly one channel.
// A Simulator is not safe for concurrent use.
type Simulator struct {
	model Model
	tau   float64
	exp   distuv.Exponential

	// Times are relative to the start of the current simulated second.
	next   float64 // Arrival time of the next pulse
	last   float64 // Start of the current dead interval
	primed bool
}

// NewSimulator creates a simulator for the model. A nil src draws from the
// global random source. Model None simulates a detector without dead time.
func NewSimulator(model Model, tau time.Duration, src rand.Source) *Simulator {
	t := tau.Seconds()
	if model == None || t < 0 {
		t = 0
	}
	return &Simulator{
		model: model,
		tau:   t,
		exp:   distuv.Exponential{Rate: 1, Src: src},
	}
}

// NewNonParalyzingSimulator creates a simulator where only counted pulses
// restart the dead interval.
func NewNonParalyzingSimulator(tau time.Duration, src rand.Source) *Simulator {
	return NewSimulator(NonParalyzing, tau, src)
}

// NewParalyzingSimulator creates a simulator where every pulse restarts the
// dead interval.
func NewParalyzingSimulator(tau time.Duration, src rand.Source) *Simulator {
	return NewSimulator(Paralyzing, tau, src)
}

// NewSeededSimulator creates a simulator with a deterministic PCG source.
func NewSeededSimulator(model Model, tau time.Duration, seed uint64) *Simulator {
	return NewSimulator(model, tau, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Simulate returns the number of pulses counted during the next simulated
// second for a true mean rate of meanRate pulses per second. A pulse whose
// gap overshoots the second is carried into the following one.
func (s *Simulator) Simulate(meanRate float64) int {
	if meanRate <= 0 || math.IsNaN(meanRate) {
		s.primed = false
		return 0
	}

	s.exp.Rate = meanRate
	if !s.primed {
		s.next = s.exp.Rand()
		s.last = math.Inf(-1)
		s.primed = true
	}

	count := 0
	for s.next < 1 {
		switch {
		case s.next-s.last >= s.tau:
			count++
			s.last = s.next
		case s.model == Paralyzing:
			// Missed pulses extend the dead interval.
			s.last = s.next
		}
		s.next += s.exp.Rand()
	}

	s.next--
	s.last--
	return count
}

// Model returns the detector model being simulated.
func (s *Simulator) Model() Model {
	return s.model
}
