// Package gammainc evaluates the upper incomplete gamma function
//
//	Γ(a, x) = ∫ₓ^∞ t^(a−1) e^(−t) dt
//
// for arbitrary real shape parameter a, extending the standard a > 0
// definition to negative a through the recurrence
//
//	Γ(a, x) = (Γ(a+1, x) − xᵃ e^(−x)) / a
//
// The package offers two paths: Upper works in float64 and is suitable
// for general inspection of the model, while Evaluator computes the same
// function on arbitrary-precision floats for callers that difference
// logarithms of nearly equal values downstream.
package gammainc

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// Upper returns the upper incomplete gamma function Γ(a, x) for any real
// a and x ≥ 0.
//
// For a > 0 the value is Γ(a)·Q(a, x), with Q the regularized upper
// incomplete gamma. For negative non-integer a the recurrence is applied
// until the shape parameter is positive. Γ(0, x) equals the exponential
// integral E₁(x), which is deliberately left unimplemented: a == 0, and
// any non-positive integer a whose recurrence chain passes through zero,
// yield NaN. Negative x yields NaN as well.
func Upper(a, x float64) float64 {
	switch {
	case math.IsNaN(a) || math.IsNaN(x) || x < 0:
		return math.NaN()
	case a > 0:
		return math.Gamma(a) * mathext.GammaIncRegComp(a, x)
	case a == math.Trunc(a):
		// Non-positive integer: the chain terminates at the
		// unimplemented E₁ branch.
		return math.NaN()
	}

	// Lift the shape parameter into (0, 1) and walk the recurrence back
	// down to a.
	n := int(math.Floor(-a)) + 1
	cur := Upper(a+float64(n), x)
	expx := math.Exp(-x)
	for k := n - 1; k >= 0; k-- {
		aa := a + float64(k)
		cur = (cur - math.Pow(x, aa)*expx) / aa
	}
	return cur
}

// ExpN returns the generalized exponential integral
//
//	E_ν(x) = ∫₁^∞ e^(−x·t) t^(−ν) dt = x^(ν−1) · Γ(1−ν, x)
//
// for real order ν and x > 0. The identity routes it through Upper, so
// the undefined regions carry over: x ≤ 0 yields NaN, as does any order
// whose gamma shape 1−ν is a non-positive integer (ν = 1 would land on
// the unimplemented E₁ branch, integer ν > 1 on the negative-integer
// chain).
func ExpN(nu, x float64) float64 {
	if math.IsNaN(nu) || x <= 0 {
		return math.NaN()
	}
	return math.Pow(x, nu-1) * Upper(1-nu, x)
}
