package poly

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Fit produces a new calibration table by least-squares fitting a
// polynomial of the given degree to the samples (xs[i], ys[i]). The
// intended use is recalibration: sweep the exact solver across the
// operating d-size range and refit instead of trusting the shipped
// legacy coefficients. The returned table is highest-degree-first with
// its domain set to the sampled x range.
func Fit(xs, ys []float64, degree int, version string) (*Table, error) {
	if degree < 1 {
		return nil, fmt.Errorf("invalid polynomial degree %d", degree)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("sample count mismatch: %d x values, %d y values", len(xs), len(ys))
	}
	if len(xs) <= degree {
		return nil, fmt.Errorf("degree-%d fit needs more than %d samples, have %d",
			degree, degree, len(xs))
	}
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) || math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			return nil, fmt.Errorf("sample %d is not finite (%v, %v)", i, xs[i], ys[i])
		}
	}

	m := len(xs)
	n := degree + 1

	// Vandermonde matrix with the highest powers in the leftmost
	// columns, so the solution vector comes out already in table order.
	vand := mat.NewDense(m, n, nil)
	for i, x := range xs {
		p := 1.0
		for j := n - 1; j >= 0; j-- {
			vand.Set(i, j, p)
			p *= x
		}
	}
	rhs := mat.NewDense(m, 1, nil)
	for i, y := range ys {
		rhs.Set(i, 0, y)
	}

	var qr mat.QR
	qr.Factorize(vand)

	sol := mat.NewDense(n, 1, nil)
	if err := qr.SolveTo(sol, false, rhs); err != nil {
		return nil, fmt.Errorf("polynomial fit failed: %w", err)
	}

	coefs := make([]float64, n)
	for i := range coefs {
		coefs[i] = sol.At(i, 0)
	}

	return &Table{
		Version:      version,
		Degree:       degree,
		Ordering:     OrderingHighestFirst,
		Domain:       Domain{Min: floats.Min(xs), Max: floats.Max(xs)},
		Coefficients: coefs,
	}, nil
}

// MaxResidual reports the largest absolute difference between the
// table's evaluation and the given samples, for judging fit quality
// after a recalibration sweep.
func (t *Table) MaxResidual(xs, ys []float64) float64 {
	worst := 0.0
	for i := range xs {
		r := math.Abs(t.Eval(xs[i]) - ys[i])
		if r > worst {
			worst = r
		}
	}
	return worst
}
