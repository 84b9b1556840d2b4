// Package fractal models chromatin as a mass fractal. The measurable
// quantity is the model parameter D_b (called d-size throughout the
// pipeline), an affine function of the measured Sigma; the quantity of
// interest is the true fractal dimension D, read off the local
// power-law decay of a modeled autocorrelation function between the
// fractal length bounds [lmin, lmax].
package fractal

import (
	"math"

	"sigmatod/pkg/gammainc"
)

const (
	// massFactor is the assumed total mass of the modeled medium, fixed
	// by the legacy calibration the coefficient table was fit under.
	massFactor = 1e6

	// sizeRatioApprox is the nominal lmax/lmin ratio assumed inside the
	// mass correction factor. The actual bounds ratio follows from the
	// corrected mass instead.
	sizeRatioApprox = 100

	// nudgedDSize replaces inputs sitting exactly on the d-size == 3
	// pole of the correction factor.
	nudgedDSize = 3.00001
)

// Nudge moves a model parameter off the d-size == 3 singularity of the
// mass correction factor. Every other value passes through unchanged.
func Nudge(dSize float64) float64 {
	if dSize == 3 {
		return nudgedDSize
	}
	return dSize
}

// MaxLengthScale returns the upper fractal length bound lmax, in units
// of lmin, for the given model parameter: the assumed total mass is
// corrected by a closed-form factor and lmax recovered from the
// mass–dimension relation mass = lmax^d. The input must already be
// nudged off 3 (see Nudge), where the correction has a pole.
func MaxLengthScale(dSize float64) float64 {
	correction := ((3 - dSize) * (1 - math.Pow(sizeRatioApprox, -dSize))) /
		(dSize * (1 - math.Pow(sizeRatioApprox, dSize-3)))
	mass := massFactor / correction
	return math.Pow(mass, 1/dSize)
}

// ACF evaluates the modeled autocorrelation of the chromatin density at
// separation x, for model parameter d and fractal bounds [lmin, lmax].
// Float64 throughout; the solver reevaluates the same expression at
// extended precision where its decay rate is differenced.
func ACF(d, lmin, lmax, x float64) float64 {
	nu := d - 2
	ratio := lmin / lmax
	lmin4 := lmin * lmin * lmin * lmin
	lmax3 := lmax * lmax * lmax

	num := lmin4 * math.Pow(ratio, -d) * gammainc.ExpN(nu, x/lmax) / lmax3
	num -= lmin * gammainc.ExpN(nu, x/lmin)
	den := lmin * (1 - math.Pow(ratio, 3-d))
	return (3 - d) * num / den
}

// ClosedFormApprox maps the model parameter straight to an estimate of
// D through a closed-form surrogate of the exact solver. It is cruder
// than the fitted polynomial table but needs no special functions,
// which makes it a convenient sanity check on either.
func ClosedFormApprox(dSize float64) float64 {
	return 3 * math.Pow(1-math.Exp(-math.Pow(dSize/3, 7)), 1.0/7)
}
