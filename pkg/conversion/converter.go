// Package conversion orchestrates the pipeline from raw PWS RMS
// measurements to chromatin fractal dimension: noise-corrected Sigma,
// the dimensionless d_size, the polynomial D estimate, and optionally
// the exact solver value per element. Elements are independent, so the
// expensive exact path fans out across a worker pool.
package conversion

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sigmatod/internal/models"
	"sigmatod/pkg/fractal"
	"sigmatod/pkg/poly"
)

// Calibrated affine map from Sigma to d_size. The intercept doubles as
// the d_size of a perfectly flat spectrum (Sigma = 0).
const (
	dSizeSlope     = 13.8738
	dSizeIntercept = 1.473
)

// Range policy thresholds on d_size.
const (
	rangeAdvisoryAt = 6.0
	rangeOverflowAt = 10.0
	overflowD       = 2.99
)

// selfCheckTolerance is the relative disagreement between the
// polynomial estimate and the exact solver above which the coefficient
// table is considered stale.
const selfCheckTolerance = 0.01

// ExactMode controls when Convert runs the exact solver.
type ExactMode int

const (
	// ExactIfRequested runs the exact solver only when
	// Params.RequestExact is set.
	ExactIfRequested ExactMode = iota

	// ExactAlways runs the exact solver on every element.
	ExactAlways

	// ExactNever skips the exact solver; results carry only the
	// polynomial estimate.
	ExactNever
)

// String returns the mode's configuration spelling.
func (m ExactMode) String() string {
	switch m {
	case ExactIfRequested:
		return "if-requested"
	case ExactAlways:
		return "always"
	case ExactNever:
		return "never"
	}
	return fmt.Sprintf("ExactMode(%d)", int(m))
}

// ParseExactMode parses the configuration spelling of an exact mode.
func ParseExactMode(s string) (ExactMode, error) {
	switch s {
	case "if-requested":
		return ExactIfRequested, nil
	case "always":
		return ExactAlways, nil
	case "never":
		return ExactNever, nil
	}
	return 0, fmt.Errorf("unknown exact mode %q (want if-requested, always, or never)", s)
}

// Warning codes carried in Result.Warnings.
const (
	WarnRangeAdvisory = "range-advisory"
	WarnRangeOverflow = "range-overflow"
	WarnSelfCheck     = "selfcheck"
)

// Warning is a non-fatal condition observed during a conversion.
type Warning struct {
	Code    string
	Message string
	Indices []int
}

// AdvisoryError is returned by Convert in strict mode when the
// conversion raised warnings. The accompanying Result is still fully
// populated; callers match the type with errors.As.
type AdvisoryError struct {
	Warnings []Warning
}

func (e *AdvisoryError) Error() string {
	codes := make([]string, len(e.Warnings))
	for i, w := range e.Warnings {
		codes[i] = w.Code
	}
	return fmt.Sprintf("conversion raised %d advisory warning(s): %s",
		len(e.Warnings), strings.Join(codes, ", "))
}

// ProgressCallback is a function that reports progress during the exact
// solving pass. It receives the number of completed elements, the total
// number of elements, and a message string; an empty message means a
// plain counter update.
type ProgressCallback func(completed, total int, message string)

// Params configures a Converter. The zero value is not usable; start
// from DefaultParams.
type Params struct {
	// SystemCorrection scales noise-subtracted RMS to Sigma.
	SystemCorrection float64

	// NAi is the illumination numerical aperture entering the d_size map.
	NAi float64

	// Noise is the instrument noise floor subtracted in quadrature.
	Noise float64

	// Mode gates the exact solver; see ExactMode.
	Mode ExactMode

	// RequestExact asks for exact values under ExactIfRequested.
	RequestExact bool

	// Strict promotes advisory warnings to an AdvisoryError.
	Strict bool

	// Workers is the goroutine count for the exact pass. Zero or
	// negative selects runtime.NumCPU().
	Workers int

	// PrecisionDigits is the decimal working precision of the exact
	// solver. Zero selects fractal.DefaultDigits.
	PrecisionDigits uint

	// Table is the polynomial calibration artifact. Nil selects the
	// shipped legacy table.
	Table *poly.Table
}

// DefaultParams returns the live-cell PWS instrument profile with the
// exact solver gated behind an explicit request.
func DefaultParams() Params {
	return Params{
		SystemCorrection: 2.43,
		NAi:              0.55,
		Noise:            0.009,
		Mode:             ExactIfRequested,
		Workers:          runtime.NumCPU(),
		PrecisionDigits:  fractal.DefaultDigits,
	}
}

// Converter runs RMS arrays through the conversion pipeline. It is
// safe for concurrent use once built; the calibration table is
// read-only shared state.
type Converter struct {
	params Params
	table  *poly.Table
	solver *fractal.Solver
	logger zerolog.Logger

	progressMu       sync.Mutex
	progressCallback ProgressCallback
}

// NewConverter validates the parameters and builds a converter.
func NewConverter(params Params) (*Converter, error) {
	if math.IsNaN(params.SystemCorrection) || params.SystemCorrection <= 0 {
		return nil, fmt.Errorf("system correction must be positive, got %v", params.SystemCorrection)
	}
	if math.IsNaN(params.NAi) || params.NAi <= 0 {
		return nil, fmt.Errorf("illumination NA must be positive, got %v", params.NAi)
	}
	if math.IsNaN(params.Noise) || params.Noise < 0 {
		return nil, fmt.Errorf("noise floor must be non-negative, got %v", params.Noise)
	}
	switch params.Mode {
	case ExactIfRequested, ExactAlways, ExactNever:
	default:
		return nil, fmt.Errorf("unknown exact mode %d", int(params.Mode))
	}
	if params.Workers <= 0 {
		params.Workers = runtime.NumCPU()
	}

	table := params.Table
	if table == nil {
		table = poly.Default()
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coefficient table: %w", err)
	}

	return &Converter{
		params: params,
		table:  table,
		solver: fractal.NewSolver(params.PrecisionDigits),
		logger: zerolog.Nop(),
	}, nil
}

// SetLogger routes the converter's structured logging. The default is
// a no-op logger.
func (c *Converter) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// SetProgressCallback sets a callback invoked during the exact solving
// pass, once per completed element.
//
// Example usage:
//
//	conv.SetProgressCallback(func(completed, total int, message string) {
//		if message == "" && total > 0 {
//			fmt.Printf("\rExact solve: %d/%d", completed, total)
//		}
//	})
func (c *Converter) SetProgressCallback(callback ProgressCallback) {
	c.progressMu.Lock()
	c.progressCallback = callback
	c.progressMu.Unlock()
}

// reportProgress calls the progress callback if one is set.
func (c *Converter) reportProgress(completed, total int, message string) {
	c.progressMu.Lock()
	callback := c.progressCallback
	c.progressMu.Unlock()
	if callback != nil {
		callback(completed, total, message)
	}
}

// SigmaFromRMS converts one RMS value to Sigma: the noise floor is
// subtracted in quadrature, clamped at zero, and the result scaled by
// the system correction. Never negative, never NaN for valid RMS.
func (c *Converter) SigmaFromRMS(rms float64) float64 {
	diff := rms*rms - c.params.Noise*c.params.Noise
	if diff < 0 {
		diff = 0
	}
	return math.Sqrt(diff) * c.params.SystemCorrection
}

// DSizeFromSigma maps Sigma to the dimensionless d_size through the
// calibrated affine relation.
func (c *Converter) DSizeFromSigma(sigma float64) float64 {
	return sigma*dSizeSlope*c.params.NAi + dSizeIntercept
}

// SelfCheckPoint is one sampled comparison between the polynomial
// estimate and the exact solver.
type SelfCheckPoint struct {
	Index    int
	DSize    float64
	Estimate float64
	Exact    float64
	RelErr   float64
}

// SelfCheck summarizes the per-batch comparison of the returned
// estimates against the exact solver at a handful of sample indices.
// NaN relative errors (the solver hit an undefined region) are
// excluded from the summary statistics and never fail the check.
type SelfCheck struct {
	Points     []SelfCheckPoint
	MaxRelErr  float64
	MeanRelErr float64
	Passed     bool
}

// Result carries everything one conversion produced. All arrays share
// the input's shape. DExact and LMax are nil unless the exact path ran.
// DSize holds the raw affine values; the singularity nudge is applied
// only inside the exact path.
type Result struct {
	Sigma     *models.Array
	DSize     *models.Array
	DEstimate *models.Array
	DExact    *models.Array
	LMax      *models.Array
	Warnings  []Warning
	SelfCheck *SelfCheck
}

// Convert runs the full pipeline on an RMS array. In strict mode a
// conversion that raised warnings returns the populated Result together
// with an *AdvisoryError; otherwise warnings travel only in the Result.
func (c *Converter) Convert(rms *models.Array) (*Result, error) {
	if rms == nil {
		return nil, fmt.Errorf("rms array is nil")
	}
	if err := rms.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rms array: %w", err)
	}
	n := rms.Len()
	for i, v := range rms.Data {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("rms[%d] is NaN", i)
		}
		if v < 0 {
			return nil, fmt.Errorf("rms[%d] = %v: negative RMS is not physical", i, v)
		}
	}

	result := &Result{
		Sigma:     newLike(rms),
		DSize:     newLike(rms),
		DEstimate: newLike(rms),
	}

	c.logger.Debug().Int("elements", n).Msg("computing sigma and d_size")
	for i, v := range rms.Data {
		sigma := c.SigmaFromRMS(v)
		result.Sigma.Data[i] = sigma
		result.DSize.Data[i] = c.DSizeFromSigma(sigma)
	}

	if c.exactWanted() {
		c.logger.Debug().
			Int("workers", c.params.Workers).
			Uint("digits", c.solver.Digits()).
			Msg("running exact solver")
		result.DExact = newLike(rms)
		result.LMax = newLike(rms)
		c.solveExact(result.DSize.Data, result.DExact.Data, result.LMax.Data)
	}

	c.applyEstimate(result)
	c.selfCheck(result)

	for _, w := range result.Warnings {
		c.logger.Warn().
			Str("code", w.Code).
			Int("count", len(w.Indices)).
			Ints("indices", headInts(w.Indices, 8)).
			Msg(w.Message)
	}
	if c.params.Strict && len(result.Warnings) > 0 {
		return result, &AdvisoryError{Warnings: result.Warnings}
	}
	return result, nil
}

// exactWanted resolves the mode flag to a decision for this call.
func (c *Converter) exactWanted() bool {
	switch c.params.Mode {
	case ExactAlways:
		return true
	case ExactNever:
		return false
	}
	return c.params.RequestExact
}

// solveExact fans the exact solver out over a worker pool, each worker
// taking a contiguous index range and writing results by index.
func (c *Converter) solveExact(dSize, exact, lmax []float64) {
	n := len(dSize)
	workers := c.params.Workers
	if workers > n {
		workers = n
	}
	perWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func(workerID int) {
			defer wg.Done()

			start := workerID * perWorker
			end := (workerID + 1) * perWorker
			if end > n {
				end = n
			}
			if start >= n {
				return
			}

			for i := start; i < end; i++ {
				d := dSize[i]
				exact[i] = c.solver.ExactD(d)
				lmax[i] = fractal.MaxLengthScale(fractal.Nudge(d))

				mu.Lock()
				completed++
				done := completed
				mu.Unlock()
				c.reportProgress(done, n, "")
			}
		}(w)
	}

	wg.Wait()
}

// applyEstimate evaluates the polynomial at every d_size and applies
// the range policy: at or above 10 the estimate is coerced to 2.99, in
// [6, 10) the value stands but the approximation is known to degrade.
func (c *Converter) applyEstimate(result *Result) {
	var overflow, advisory []int
	for i, d := range result.DSize.Data {
		est := c.table.Eval(d)
		switch {
		case d >= rangeOverflowAt:
			est = overflowD
			overflow = append(overflow, i)
		case d >= rangeAdvisoryAt:
			advisory = append(advisory, i)
		}
		result.DEstimate.Data[i] = est
	}
	if len(overflow) > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarnRangeOverflow,
			Message: fmt.Sprintf("d_size at or above %v coerced to %v", rangeOverflowAt, overflowD),
			Indices: overflow,
		})
	}
	if len(advisory) > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarnRangeAdvisory,
			Message: fmt.Sprintf("d_size in [%v, %v): approximation degraded", rangeAdvisoryAt, rangeOverflowAt),
			Indices: advisory,
		})
	}
}

// selfCheck compares the returned estimates against the exact solver
// at a handful of spread-out indices, reusing exact values when the
// exact pass already ran.
func (c *Converter) selfCheck(result *Result) {
	indices := selfCheckIndices(result.DSize.Len())

	check := &SelfCheck{Passed: true}
	var failed []int
	var relErrs []float64
	for _, idx := range indices {
		d := result.DSize.Data[idx]
		var exact float64
		if result.DExact != nil {
			exact = result.DExact.Data[idx]
		} else {
			exact = c.solver.ExactD(d)
		}

		rel := math.Abs(result.DEstimate.Data[idx]-exact) / math.Abs(exact)
		check.Points = append(check.Points, SelfCheckPoint{
			Index:    idx,
			DSize:    d,
			Estimate: result.DEstimate.Data[idx],
			Exact:    exact,
			RelErr:   rel,
		})
		if math.IsNaN(rel) {
			continue
		}
		relErrs = append(relErrs, rel)
		if rel > selfCheckTolerance {
			check.Passed = false
			failed = append(failed, idx)
		}
	}
	if len(relErrs) > 0 {
		check.MaxRelErr = floats.Max(relErrs)
		check.MeanRelErr = stat.Mean(relErrs, nil)
	}
	result.SelfCheck = check

	if !check.Passed {
		result.Warnings = append(result.Warnings, Warning{
			Code: WarnSelfCheck,
			Message: fmt.Sprintf("estimate disagrees with exact solver by more than %v%%: coefficient table may need recalibration",
				selfCheckTolerance*100),
			Indices: failed,
		})
	}
}

// selfCheckIndices returns the sample positions for an n-element batch:
// the first element, the last, and three spread through the interior.
// Duplicates collapse for small n; n = 1 degenerates to {0}.
func selfCheckIndices(n int) []int {
	raw := []int{
		0,
		ceilDiv(n, 4) - 1,
		ceilDiv(n, 2) - 1,
		ceilDiv(3*n, 4) - 1,
		n - 1,
	}
	seen := make(map[int]bool, len(raw))
	var indices []int
	for _, idx := range raw {
		if !seen[idx] {
			seen[idx] = true
			indices = append(indices, idx)
		}
	}
	return indices
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// newLike allocates a zero-filled array with the same shape as a.
func newLike(a *models.Array) *models.Array {
	shape := make([]int, len(a.Shape))
	copy(shape, a.Shape)
	return &models.Array{Shape: shape, Data: make([]float64, len(a.Data))}
}

// headInts returns at most k leading elements, for compact logging.
func headInts(s []int, k int) []int {
	if len(s) <= k {
		return s
	}
	return s[:k]
}
