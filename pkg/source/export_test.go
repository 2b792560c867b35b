package source

import "time"

var DetectPulse = detectPulse

// SetClock replaces the clock of a simulated source.
func (s *Simulated) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
