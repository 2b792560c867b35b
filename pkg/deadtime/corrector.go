package deadtime

import (
	"errors"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Corrector applies one dead-time model with a fixed dead time and reports
// domain violations to the logger. It is safe for concurrent use.
type Corrector struct {
	model Model
	tau   time.Duration
	log   *zap.Logger
}

// NewCorrector creates a corrector. A nil logger discards diagnostics.
func NewCorrector(model Model, tau time.Duration, logger *zap.Logger) *Corrector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Corrector{
		model: model,
		tau:   tau,
		log:   logger.Named("deadtime"),
	}
}

// Model returns the correction model.
func (c *Corrector) Model() Model { return c.model }

// DeadTime returns the dead time.
func (c *Corrector) DeadTime() time.Duration { return c.tau }

// Correct returns the true rate for the observed rate of variable. On failure
// it returns NaN and the error, and logs the offending observed rate and dead
// time unless the input itself was missing.
func (c *Corrector) Correct(variable string, observed float64) (float64, error) {
	var (
		n   float64
		err error
	)
	switch c.model {
	case NonParalyzing:
		n, err = NonParalyzingCorrect(observed, c.tau)
	case Paralyzing:
		n, err = ParalyzingCorrect(observed, c.tau)
	default:
		if math.IsNaN(observed) {
			return observed, ErrMissing
		}
		return observed, nil
	}
	if err != nil {
		err = &DomainError{Variable: variable, Index: -1, Observed: observed, Tau: c.tau, Err: err}
		c.report(err)
	}
	return n, err
}

// CorrectAll corrects every element independently. Failed elements are NaN
// and each failure is logged; the combined error is returned.
func (c *Corrector) CorrectAll(variable string, observed []float64) ([]float64, error) {
	var (
		out []float64
		err error
	)
	switch c.model {
	case NonParalyzing:
		out, err = NonParalyzingCorrectAll(variable, observed, c.tau)
	case Paralyzing:
		out, err = ParalyzingCorrectAll(variable, observed, c.tau)
	default:
		out = make([]float64, len(observed))
		copy(out, observed)
		return out, nil
	}
	for _, e := range multierr.Errors(err) {
		c.report(e)
	}
	return out, err
}

// CorrectPerMinute corrects a counts-per-minute value. The model is solved on
// the per-second rate and the paralyzing result is rounded to whole counts
// per minute, so low rates never correct below the observed value.
func (c *Corrector) CorrectPerMinute(variable string, cpm float64) (float64, error) {
	var (
		n   float64
		err error
	)
	switch c.model {
	case NonParalyzing:
		n, err = NonParalyzingCorrect(cpm/60, c.tau)
		n *= 60
	case Paralyzing:
		n, err = paralyzingRoot(cpm/60, c.tau)
		n = math.Round(n * 60)
	default:
		if math.IsNaN(cpm) {
			return cpm, ErrMissing
		}
		return cpm, nil
	}
	if err != nil {
		err = &DomainError{Variable: variable, Index: -1, Observed: cpm, Tau: c.tau, Err: err}
		c.report(err)
	}
	return n, err
}

func (c *Corrector) report(err error) {
	var de *DomainError
	if !errors.As(err, &de) {
		c.log.Warn("dead-time correction failed", zap.Error(err))
		return
	}
	if errors.Is(de.Err, ErrMissing) {
		c.log.Debug("no observed rate to correct", zap.String("variable", de.Variable))
		return
	}
	c.log.Warn("dead-time correction failed",
		zap.String("variable", de.Variable),
		zap.Int("index", de.Index),
		zap.Float64("observed", de.Observed),
		zap.Duration("dead_time", de.Tau),
		zap.String("model", c.model.String()),
		zap.Error(de.Err),
	)
}
