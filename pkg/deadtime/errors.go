package deadtime

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissing is returned when there is no observed rate to correct.
	ErrMissing = errors.New("missing observed rate")
	// ErrExceedsMaximum is returned when the observed rate implies a
	// nonphysical true rate for the detector model and dead time.
	ErrExceedsMaximum = errors.New("observed rate exceeds theoretical maximum")
	// ErrInvalidDeadTime is returned for a negative dead time.
	ErrInvalidDeadTime = errors.New("invalid dead time")
	// ErrNegativeRate is returned for a negative observed rate.
	ErrNegativeRate = errors.New("negative observed rate")
)

// DomainError identifies the value that could not be corrected.
type DomainError struct {
	Variable string
	Index    int // Position in a batch, -1 for scalar values
	Observed float64
	Tau      time.Duration
	Err      error
}

func (e *DomainError) Error() string {
	name := e.Variable
	if name == "" {
		name = "value"
	}
	if e.Index >= 0 {
		name = fmt.Sprintf("%s[%d]", name, e.Index)
	}
	return fmt.Sprintf("%s: observed %g with dead time %v: %v", name, e.Observed, e.Tau, e.Err)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}
