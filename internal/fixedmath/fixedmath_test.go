package fixedmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
)

// approxEqual asserts |got - want| <= tol.
func approxEqual(t *testing.T, want, got, tol *big.Int) {
	t.Helper()
	diff := new(big.Int).Sub(got, want)
	diff.Abs(diff)
	assert.True(t, diff.Cmp(tol) <= 0,
		"want %s, got %s (diff %s > tol %s)", want, got, diff, tol)
}

func TestMulTruncatesTowardZero(t *testing.T) {
	half := new(big.Int).Div(Scale, big.NewInt(2))

	assert.Equal(t, FromInt(6), Mul(FromInt(2), FromInt(3)))
	assert.Equal(t, FromInt(1), Mul(FromInt(2), half))

	// 1 * smallest unit truncates to zero below the scale.
	tiny := big.NewInt(1)
	assert.Equal(t, int64(0), Mul(tiny, tiny).Int64())

	// Negative products truncate toward zero, not toward minus infinity.
	n := Mul(big.NewInt(-1), big.NewInt(1))
	assert.Equal(t, int64(0), n.Int64())
}

func TestDiv(t *testing.T) {
	got, err := Div(FromInt(6), FromInt(3))
	require.NoError(t, err)
	assert.Equal(t, FromInt(2), got)

	got, err = Div(FromInt(1), FromInt(3))
	require.NoError(t, err)
	assert.Equal(t, "333333333333333333", got.String())

	_, err = Div(FromInt(1), new(big.Int))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindDivisionByZero))
}

func TestSqrt(t *testing.T) {
	cases := []struct {
		in   int64
		want int64
	}{
		{0, 0},
		{1, 1},
		{2, 1}, // below the first Newton iteration's reach
		{3, 1},
		{4, 2},
		{15, 3}, // floor of the root
		{16, 4},
		{1000000, 1000},
	}
	for _, tc := range cases {
		got, err := Sqrt(big.NewInt(tc.in))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Int64(), "sqrt(%d)", tc.in)
	}

	_, err := Sqrt(big.NewInt(-1))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
}

func TestSqrtFixed(t *testing.T) {
	got, err := SqrtFixed(FromInt(4))
	require.NoError(t, err)
	assert.Equal(t, FromInt(2), got)

	got, err = SqrtFixed(FromInt(2))
	require.NoError(t, err)
	assert.Equal(t, "1414213562373095048", got.String())
}

func TestExp(t *testing.T) {
	got, err := Exp(new(big.Int))
	require.NoError(t, err)
	assert.Equal(t, Scale, got)

	// e^1 with the documented series truncation.
	got, err = Exp(FromInt(1))
	require.NoError(t, err)
	approxEqual(t, big.NewInt(2718281828459045235), got, big.NewInt(1e14))

	// e^-1 via the reciprocal branch.
	got, err = Exp(FromInt(-1))
	require.NoError(t, err)
	approxEqual(t, big.NewInt(367879441171442321), got, big.NewInt(1e14))

	// Inputs beyond the clamp are capped, never rejected.
	capped, err := Exp(FromInt(20))
	require.NoError(t, err)
	huge, err := Exp(FromInt(500))
	require.NoError(t, err)
	assert.Equal(t, capped, huge)

	// Large negative inputs land near zero and stay non-negative.
	small, err := Exp(FromInt(-500))
	require.NoError(t, err)
	assert.True(t, small.Sign() >= 0)
	assert.True(t, small.Cmp(Scale) < 0)
}

func TestLn(t *testing.T) {
	got, err := Ln(new(big.Int).Set(Scale))
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Int64())

	// ln(1.1), close to the series center so convergence is tight.
	got, err = Ln(big.NewInt(11e17))
	require.NoError(t, err)
	approxEqual(t, big.NewInt(95310179804324860), got, big.NewInt(1e10))

	// Reciprocal branch: ln(x) = -ln(1/x) for x < 1.
	below, err := Ln(big.NewInt(909090909090909090))
	require.NoError(t, err)
	assert.True(t, below.Sign() < 0)
	approxEqual(t, big.NewInt(-95310179804324860), below, big.NewInt(1e11))

	for _, bad := range []*big.Int{new(big.Int), big.NewInt(-1)} {
		_, err := Ln(bad)
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
	}
}

func TestNormPDF(t *testing.T) {
	got, err := NormPDF(new(big.Int))
	require.NoError(t, err)
	approxEqual(t, big.NewInt(398942280401432678), got, big.NewInt(1e6))

	// Symmetric in x.
	pos, err := NormPDF(FromInt(1))
	require.NoError(t, err)
	neg, err := NormPDF(FromInt(-1))
	require.NoError(t, err)
	assert.Equal(t, pos, neg)
}

func TestNormCDF(t *testing.T) {
	half := new(big.Int).Div(Scale, big.NewInt(2))

	got, err := NormCDF(new(big.Int))
	require.NoError(t, err)
	approxEqual(t, half, got, big.NewInt(1e12))

	got, err = NormCDF(FromInt(1))
	require.NoError(t, err)
	approxEqual(t, big.NewInt(841344746068542949), got, big.NewInt(1e13))
}

func TestNormCDFReflectionIsExact(t *testing.T) {
	// CDF(x) + CDF(-x) must equal Scale to the last digit, not just
	// approximately: both branches share one tail computation.
	for _, x := range []*big.Int{
		big.NewInt(1),
		big.NewInt(5e17),
		FromInt(1),
		FromInt(3),
		big.NewInt(123456789123456789),
	} {
		pos, err := NormCDF(x)
		require.NoError(t, err)
		neg, err := NormCDF(new(big.Int).Neg(x))
		require.NoError(t, err)

		sum := new(big.Int).Add(pos, neg)
		assert.Equal(t, Scale, sum, "reflection broken at x=%s", x)
	}
}

func TestNormCDFSaturates(t *testing.T) {
	got, err := NormCDF(FromInt(7))
	require.NoError(t, err)
	assert.Equal(t, Scale, got)

	got, err = NormCDF(FromInt(-7))
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Int64())
}

func TestNormCDFMonotone(t *testing.T) {
	prev := new(big.Int).Neg(Scale)
	prevCDF, err := NormCDF(prev)
	require.NoError(t, err)

	for x := int64(-8e17); x <= 1e18; x += 2e17 {
		c, err := NormCDF(big.NewInt(x))
		require.NoError(t, err)
		assert.True(t, c.Cmp(prevCDF) >= 0, "CDF decreased at x=%d", x)
		prevCDF = c
	}
}

func TestDeterminism(t *testing.T) {
	// Same input, bit-identical output across repeated evaluation.
	x := big.NewInt(123456789987654321)
	first, err := NormCDF(x)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := NormCDF(x)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
