package fractal

import (
	"math"
	"math/big"

	"github.com/ALTree/bigfloat"

	"sigmatod/pkg/gammainc"
)

const (
	// probeDelta is the separation step of the finite-difference slope
	// probe.
	probeDelta = 0.1

	// solverLMin: the solver expresses both bounds in units of the
	// lower one.
	solverLMin = 1.0
)

// DefaultDigits is the decimal precision carried through the
// autocorrelation model by default. The two probe values typically
// agree in their leading digits and the slope lives in the tail, so
// float64 is not enough; 40 digits leaves a wide margin over every
// input range the converter produces.
const DefaultDigits = 40

// Solver turns model parameters into exact fractal dimensions by
// differencing the logarithm of the autocorrelation model at two probe
// separations. A Solver is stateless and safe for concurrent use; each
// call builds its own extended-precision evaluator.
type Solver struct {
	digits uint
}

// NewSolver returns a solver carrying the given number of significant
// decimal digits through the model. Zero selects DefaultDigits.
func NewSolver(digits uint) *Solver {
	if digits == 0 {
		digits = DefaultDigits
	}
	return &Solver{digits: digits}
}

// Digits returns the solver's decimal working precision.
func (s *Solver) Digits() uint { return s.digits }

// ExactD converts one model parameter value into the exact fractal
// dimension D: lmax derives from the corrected mass, and D is the
// model's log-log slope at a probe pair near (lmax+lmin)/100, offset by
// the 3−d decay law. NaN input, a degenerate gamma shape (integer
// d-size above 3), or a non-positive model value at either probe yields
// NaN rather than an error.
func (s *Solver) ExactD(dSize float64) float64 {
	if math.IsNaN(dSize) {
		return math.NaN()
	}
	d := Nudge(dSize)
	lmax := MaxLengthScale(d)
	if math.IsNaN(lmax) || math.IsInf(lmax, 0) || lmax <= solverLMin {
		return math.NaN()
	}

	e := gammainc.NewEvaluator(s.digits)
	x := (lmax + solverLMin) / 100

	near, ok := acfBig(e, d, solverLMin, lmax, x)
	if !ok || near.Sign() <= 0 {
		return math.NaN()
	}
	far, ok := acfBig(e, d, solverLMin, lmax, x+probeDelta)
	if !ok || far.Sign() <= 0 {
		return math.NaN()
	}

	num := bigfloat.Log(far.Quo(far, near))

	xb := big.NewFloat(x).SetPrec(e.Prec())
	xd := big.NewFloat(x + probeDelta).SetPrec(e.Prec())
	den := bigfloat.Log(xd.Quo(xd, xb))

	slope, _ := num.Quo(num, den).Float64()
	return 3 + slope
}

// acfBig mirrors ACF at the evaluator's working precision. The bounds
// and the probe are exact float64 values promoted losslessly; only the
// model arithmetic widens.
func acfBig(e *gammainc.Evaluator, d, lmin, lmax, x float64) (*big.Float, bool) {
	prec := e.Prec()
	nu := d - 2

	lminB := big.NewFloat(lmin).SetPrec(prec)
	lmaxB := big.NewFloat(lmax).SetPrec(prec)
	xB := big.NewFloat(x).SetPrec(prec)

	atLMax, ok := e.ExpN(nu, new(big.Float).SetPrec(prec).Quo(xB, lmaxB))
	if !ok {
		return nil, false
	}
	atLMin, ok := e.ExpN(nu, new(big.Float).SetPrec(prec).Quo(xB, lminB))
	if !ok {
		return nil, false
	}

	ratio := new(big.Float).SetPrec(prec).Quo(lminB, lmaxB)

	lmin2 := new(big.Float).SetPrec(prec).Mul(lminB, lminB)
	lmin4 := new(big.Float).SetPrec(prec).Mul(lmin2, lmin2)
	lmax3 := new(big.Float).SetPrec(prec).Mul(lmaxB, lmaxB)
	lmax3.Mul(lmax3, lmaxB)

	num := bigfloat.Pow(ratio, big.NewFloat(-d).SetPrec(prec))
	num.Mul(num, atLMax)
	num.Mul(num, lmin4)
	num.Quo(num, lmax3)
	num.Sub(num, new(big.Float).SetPrec(prec).Mul(lminB, atLMin))

	threeMinusD := big.NewFloat(3 - d).SetPrec(prec)
	den := bigfloat.Pow(ratio, threeMinusD)
	den.Sub(big.NewFloat(1).SetPrec(prec), den)
	den.Mul(den, lminB)

	num.Mul(num, threeMinusD)
	num.Quo(num, den)
	return num, true
}
