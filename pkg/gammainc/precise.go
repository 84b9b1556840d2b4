package gammainc

import (
	"math"
	"math/big"

	"github.com/ALTree/bigfloat"
)

// π to 300 decimal digits, parsed at the evaluator's working precision.
// math/big carries no transcendental constants of its own.
const piString = "3.1415926535897932384626433832795028841971693993751" +
	"05820974944592307816406286208998628034825342117067982148086513282" +
	"30664709384460955058223172535940812848111745028410270193852110555" +
	"96446229489549303819644288109756659334461284756482337867831652712" +
	"019091456485669234603486104543266482133936072602491412737"

const (
	maxSeriesTerms = 10000
	maxCFTerms     = 10000
)

// PrecBits returns the big.Float mantissa width, in bits, that carries
// the requested number of significant decimal digits with guard room for
// intermediate cancellation.
func PrecBits(digits uint) uint {
	return uint(math.Ceil(float64(digits)*math.Log2(10))) + 32
}

// Evaluator computes Γ(a, x) on arbitrary-precision floats. It caches
// the complete gamma function per shape parameter, so the four
// incomplete-gamma terms of one autocorrelation probe pair cost a single
// Spouge expansion. An Evaluator is not safe for concurrent use; create
// one per goroutine.
type Evaluator struct {
	digits uint
	prec   uint

	// Shared constants at working precision. Treated as immutable:
	// they are only ever read as operands.
	one       *big.Float
	two       *big.Float
	sqrtTwoPi *big.Float

	gammas map[float64]*big.Float
}

// NewEvaluator returns an evaluator carrying the given number of
// significant decimal digits through every operation.
func NewEvaluator(digits uint) *Evaluator {
	prec := PrecBits(digits)
	pi, _, err := big.ParseFloat(piString, 10, prec, big.ToNearestEven)
	if err != nil {
		// The constant above is well-formed; a parse failure is a
		// programming error, not an input error.
		panic("gammainc: bad pi constant: " + err.Error())
	}
	e := &Evaluator{
		digits: digits,
		prec:   prec,
		one:    big.NewFloat(1).SetPrec(prec),
		two:    big.NewFloat(2).SetPrec(prec),
		gammas: make(map[float64]*big.Float),
	}
	twoPi := new(big.Float).SetPrec(prec).Mul(e.two, pi)
	e.sqrtTwoPi = bigfloat.Sqrt(twoPi)
	return e
}

// Prec returns the mantissa width in bits. Callers building operands for
// Upper should allocate them at this precision.
func (e *Evaluator) Prec() uint { return e.prec }

// Upper returns Γ(a, x) at the evaluator's precision. The boolean is
// false where the function is undefined under the implemented branches
// (x < 0, non-positive integer a, a ≤ 0 with x == 0) or where an
// expansion failed to converge; big.Float has no NaN, so callers map a
// false result to NaN themselves. The branch structure matches the
// float64 Upper: Γ(0, x) = E₁(x) is deliberately left unimplemented,
// and negative non-integer a is lifted into (0, 1) by the recurrence.
//
// The shape parameter stays a float64: every value the model produces
// originates there, and the exact binary value is promoted losslessly.
// All arithmetic that mixes a with indices runs at working precision so
// the promised digits survive.
func (e *Evaluator) Upper(a float64, x *big.Float) (*big.Float, bool) {
	if math.IsNaN(a) || x.Sign() < 0 {
		return nil, false
	}
	if a > 0 {
		return e.upperPositive(a, e.at(x))
	}
	if a == math.Trunc(a) {
		return nil, false
	}
	if x.Sign() == 0 {
		// Γ(a, 0) diverges for a < 0.
		return nil, false
	}

	x = e.at(x)
	n := int(math.Floor(-a)) + 1
	cur, ok := e.upperPositive(a+float64(n), x)
	if !ok {
		return nil, false
	}
	aBig := e.fromFloat(a)
	expx := bigfloat.Exp(new(big.Float).SetPrec(e.prec).Neg(x))
	for k := n - 1; k >= 0; k-- {
		aa := new(big.Float).SetPrec(e.prec).Add(aBig, e.fromInt(k))
		pow := bigfloat.Pow(x, aa)
		cur.Sub(cur, pow.Mul(pow, expx))
		cur.Quo(cur, aa)
	}
	return cur, true
}

// ExpN returns the generalized exponential integral
// E_ν(x) = x^(ν−1)·Γ(1−ν, x) at the evaluator's precision, mirroring
// the float64 ExpN. The boolean follows the Upper convention.
func (e *Evaluator) ExpN(nu float64, x *big.Float) (*big.Float, bool) {
	if math.IsNaN(nu) || x.Sign() <= 0 {
		return nil, false
	}
	x = e.at(x)
	g, ok := e.Upper(1-nu, x)
	if !ok {
		return nil, false
	}
	pow := bigfloat.Pow(x, e.fromFloat(nu-1))
	return pow.Mul(pow, g), true
}

// upperPositive evaluates Γ(a, x) for a > 0, x ≥ 0 at working
// precision, picking the lower-series or continued-fraction expansion by
// the usual x ≶ a+1 split.
func (e *Evaluator) upperPositive(a float64, x *big.Float) (*big.Float, bool) {
	if x.Sign() == 0 {
		return new(big.Float).SetPrec(e.prec).Set(e.gamma(a)), true
	}
	xf, _ := x.Float64()
	if xf < a+1 {
		lower, ok := e.lowerSeries(a, x)
		if !ok {
			return nil, false
		}
		return new(big.Float).SetPrec(e.prec).Sub(e.gamma(a), lower), true
	}
	return e.contFrac(a, x)
}

// gamma returns Γ(a) for a > 0 by Spouge's approximation, cached per
// shape value. The returned value is shared and must not be mutated.
func (e *Evaluator) gamma(a float64) *big.Float {
	if g, ok := e.gammas[a]; ok {
		return g
	}
	g := e.spouge(a)
	e.gammas[a] = g
	return g
}

// spouge computes Γ(a) with Spouge's series,
//
//	Γ(z+1) = (z+N)^(z+1/2) e^(−(z+N)) ( √(2π) + Σₖ cₖ/(z+k) ),
//	cₖ = (−1)^(k−1) (N−k)^(k−1/2) e^(N−k) / (k−1)!,
//
// with z = a−1. The term count N scales with the requested digits; the
// error bound N^(−1/2) (2π)^(−(N+1/2)) leaves a couple of guard digits
// at N ≈ 1.27·digits.
func (e *Evaluator) spouge(a float64) *big.Float {
	n := int(float64(e.digits)*1.27) + 3
	z := new(big.Float).SetPrec(e.prec).Sub(e.fromFloat(a), e.one)
	zpn := new(big.Float).SetPrec(e.prec).Add(z, e.fromInt(n))

	zPlusHalf := new(big.Float).SetPrec(e.prec).Add(z, e.fromFloat(0.5))
	out := bigfloat.Pow(zpn, zPlusHalf)
	out.Mul(out, bigfloat.Exp(new(big.Float).SetPrec(e.prec).Neg(zpn)))

	sum := new(big.Float).SetPrec(e.prec).Set(e.sqrtTwoPi)
	fact := big.NewFloat(1).SetPrec(e.prec)
	for k := 1; k < n; k++ {
		if k > 1 {
			fact.Mul(fact, e.fromInt(k-1))
		}
		nk := e.fromInt(n - k)
		ck := bigfloat.Pow(nk, e.fromFloat(float64(k)-0.5))
		ck.Mul(ck, bigfloat.Exp(nk))
		ck.Quo(ck, fact)
		if k%2 == 0 {
			ck.Neg(ck)
		}
		den := new(big.Float).SetPrec(e.prec).Add(z, e.fromInt(k))
		sum.Add(sum, ck.Quo(ck, den))
	}
	return out.Mul(out, sum)
}

// lowerSeries computes the lower incomplete gamma γ(a, x) for x < a+1,
//
//	γ(a, x) = xᵃ e^(−x) Σₙ xⁿ / (a(a+1)⋯(a+n)),
//
// summing until a term no longer moves the running total at working
// precision.
func (e *Evaluator) lowerSeries(a float64, x *big.Float) (*big.Float, bool) {
	aBig := e.fromFloat(a)
	den := new(big.Float).SetPrec(e.prec).Set(aBig)
	term := new(big.Float).SetPrec(e.prec).Quo(e.one, den)
	sum := new(big.Float).SetPrec(e.prec).Set(term)
	for n := 1; n <= maxSeriesTerms; n++ {
		den.Add(den, e.one)
		term.Mul(term, x)
		term.Quo(term, den)
		sum.Add(sum, term)
		if e.negligible(term, sum) {
			out := bigfloat.Pow(x, aBig)
			out.Mul(out, bigfloat.Exp(new(big.Float).SetPrec(e.prec).Neg(x)))
			return out.Mul(out, sum), true
		}
	}
	return nil, false
}

// contFrac computes Γ(a, x) for x ≥ a+1 through the continued fraction
//
//	Γ(a, x) = e^(−x) xᵃ / (x+1−a − 1·(1−a)/(x+3−a − 2·(2−a)/(⋯))),
//
// evaluated with the modified Lentz method.
func (e *Evaluator) contFrac(a float64, x *big.Float) (*big.Float, bool) {
	tiny := new(big.Float).SetPrec(e.prec).SetMantExp(
		big.NewFloat(1).SetPrec(e.prec), -4*int(e.prec))

	aBig := e.fromFloat(a)
	b := new(big.Float).SetPrec(e.prec).Sub(e.one, aBig)
	b.Add(b, x)
	c := new(big.Float).SetPrec(e.prec).Quo(e.one, tiny)
	d := new(big.Float).SetPrec(e.prec).Quo(e.one, b)
	h := new(big.Float).SetPrec(e.prec).Set(d)

	an := new(big.Float).SetPrec(e.prec)
	tmp := new(big.Float).SetPrec(e.prec)
	for i := 1; i <= maxCFTerms; i++ {
		// aₙ = −i·(i−a)
		an.Sub(e.fromInt(i), aBig)
		an.Mul(an, e.fromInt(i))
		an.Neg(an)
		b.Add(b, e.two)

		d.Mul(an, d)
		d.Add(d, b)
		if d.Sign() == 0 {
			d.Set(tiny)
		}

		tmp.Quo(an, c)
		c.Add(b, tmp)
		if c.Sign() == 0 {
			c.Set(tiny)
		}

		d.Quo(e.one, d)
		del := new(big.Float).SetPrec(e.prec).Mul(d, c)
		h.Mul(h, del)

		del.Sub(del, e.one)
		if del.Sign() == 0 || del.MantExp(nil) <= -int(e.prec) {
			out := bigfloat.Pow(x, aBig)
			out.Mul(out, bigfloat.Exp(new(big.Float).SetPrec(e.prec).Neg(x)))
			return out.Mul(out, h), true
		}
	}
	return nil, false
}

// negligible reports whether |term| ≤ |ref|·2^(−prec).
func (e *Evaluator) negligible(term, ref *big.Float) bool {
	if term.Sign() == 0 {
		return true
	}
	if ref.Sign() == 0 {
		return false
	}
	return term.MantExp(nil) <= ref.MantExp(nil)-int(e.prec)
}

// at returns x at working precision, copying only when widths differ.
func (e *Evaluator) at(x *big.Float) *big.Float {
	if x.Prec() == e.prec {
		return x
	}
	return new(big.Float).SetPrec(e.prec).Set(x)
}

func (e *Evaluator) fromFloat(v float64) *big.Float {
	return big.NewFloat(v).SetPrec(e.prec)
}

func (e *Evaluator) fromInt(v int) *big.Float {
	return new(big.Float).SetPrec(e.prec).SetInt64(int64(v))
}
