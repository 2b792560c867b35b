package deadtime

import (
	"math"
	"time"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
)

const (
	bisectMaxIter = 200
	bisectRelTol  = 1e-12
)

// NonParalyzingCorrect returns observed / (1 - observed*tau). It fails with
// ErrExceedsMaximum when observed*tau >= 1.
func NonParalyzingCorrect(observed float64, tau time.Duration) (float64, error) {
	if err := checkInput(observed, tau); err != nil {
		return math.NaN(), err
	}
	t := tau.Seconds()
	d := 1 - observed*t
	if d <= 0 {
		return math.NaN(), ErrExceedsMaximum
	}
	return observed / d, nil
}

// ParalyzingCorrect solves observed = n*exp(-n*tau) for the true rate n on
// [0, 1/tau] by bisection and rounds it to the nearest integer. It fails with
// ErrExceedsMaximum when the bracket holds no root.
func ParalyzingCorrect(observed float64, tau time.Duration) (float64, error) {
	n, err := paralyzingRoot(observed, tau)
	if err != nil {
		return math.NaN(), err
	}
	return math.Round(n), nil
}

// paralyzingRoot is ParalyzingCorrect without the rounding, for callers that
// rescale the rate first.
func paralyzingRoot(observed float64, tau time.Duration) (float64, error) {
	if err := checkInput(observed, tau); err != nil {
		return math.NaN(), err
	}
	t := tau.Seconds()
	if t == 0 || observed == 0 {
		return observed, nil
	}

	balance := func(n float64) float64 {
		return n*math.Exp(-n*t) - observed
	}

	lo, hi := 0.0, 1/t
	flo, fhi := balance(lo), balance(hi)
	if fhi == 0 {
		return hi, nil
	}
	if math.Signbit(flo) == math.Signbit(fhi) {
		return math.NaN(), ErrExceedsMaximum
	}

	root, ok := bisect(balance, lo, hi, flo)
	if !ok {
		return math.NaN(), ErrExceedsMaximum
	}
	return root, nil
}

// bisect finds a root of f in [lo, hi] where f(lo) = flo and f(hi) has the
// opposite sign.
func bisect(f func(float64) float64, lo, hi, flo float64) (float64, bool) {
	tol := bisectRelTol * hi
	for range bisectMaxIter {
		mid := lo + (hi-lo)/2
		fmid := f(mid)
		if fmid == 0 || hi-lo < tol {
			return mid, true
		}
		if math.Signbit(fmid) == math.Signbit(flo) {
			lo, flo = mid, fmid
		} else {
			hi = mid
		}
	}
	mid := lo + (hi-lo)/2
	return mid, !math.IsNaN(mid)
}

// NonParalyzingCorrectAll applies NonParalyzingCorrect elementwise. Elements
// outside the domain become NaN and are reported as *DomainError values
// combined into the returned error; the other elements are still corrected.
func NonParalyzingCorrectAll(variable string, observed []float64, tau time.Duration) ([]float64, error) {
	out := make([]float64, len(observed))
	if tau < 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out, &DomainError{Variable: variable, Index: -1, Observed: math.NaN(), Tau: tau, Err: ErrInvalidDeadTime}
	}

	// out = observed / (1 - observed*tau)
	floats.ScaleTo(out, -tau.Seconds(), observed)
	floats.AddConst(1, out)
	floats.DivTo(out, observed, out)

	var errs error
	for i, v := range observed {
		var cause error
		switch {
		case math.IsNaN(v):
			cause = ErrMissing
		case v < 0:
			cause = ErrNegativeRate
		case 1-v*tau.Seconds() <= 0:
			cause = ErrExceedsMaximum
		default:
			continue
		}
		out[i] = math.NaN()
		errs = multierr.Append(errs, &DomainError{Variable: variable, Index: i, Observed: v, Tau: tau, Err: cause})
	}
	return out, errs
}

// ParalyzingCorrectAll solves every element independently. Failed elements
// become NaN and are reported as *DomainError values combined into the
// returned error.
func ParalyzingCorrectAll(variable string, observed []float64, tau time.Duration) ([]float64, error) {
	out := make([]float64, len(observed))
	var errs error
	for i, v := range observed {
		n, err := ParalyzingCorrect(v, tau)
		if err != nil {
			errs = multierr.Append(errs, &DomainError{Variable: variable, Index: i, Observed: v, Tau: tau, Err: err})
		}
		out[i] = n
	}
	return out, errs
}

// MaxObservable returns the largest observed rate the model can produce for
// the dead time: 1/tau for non-paralyzing, 1/(e*tau) for paralyzing.
func MaxObservable(model Model, tau time.Duration) float64 {
	t := tau.Seconds()
	if t <= 0 {
		return math.Inf(1)
	}
	switch model {
	case NonParalyzing:
		return 1 / t
	case Paralyzing:
		return 1 / (math.E * t)
	}
	return math.Inf(1)
}

func checkInput(observed float64, tau time.Duration) error {
	switch {
	case tau < 0:
		return ErrInvalidDeadTime
	case math.IsNaN(observed):
		return ErrMissing
	case observed < 0:
		return ErrNegativeRate
	case math.IsInf(observed, 1):
		return ErrExceedsMaximum
	}
	return nil
}
