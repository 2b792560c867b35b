// Package deadtime corrects observed count rates for detector dead-time
// losses and simulates those losses.
package deadtime

import "fmt"

// Model is a detector dead-time model.
type Model int

const (
	// None leaves rates uncorrected.
	None Model = iota
	// NonParalyzing detectors ignore events during dead time without extending it.
	NonParalyzing
	// Paralyzing detectors restart the dead time on every event, counted or not.
	Paralyzing
)

func (m Model) String() string {
	switch m {
	case None:
		return "none"
	case NonParalyzing:
		return "non-paralyzing"
	case Paralyzing:
		return "paralyzing"
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ParseModel converts a configuration string to a Model.
func ParseModel(s string) (Model, error) {
	switch s {
	case "", "none":
		return None, nil
	case "non-paralyzing", "nonparalyzing":
		return NonParalyzing, nil
	case "paralyzing":
		return Paralyzing, nil
	}
	return None, fmt.Errorf("unknown dead-time model %q", s)
}
