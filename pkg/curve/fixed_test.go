package curve

import (
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refPrec = 512

const ln2Digits = "0.6931471805599453094172321214581765680755001343602552541206800094933936219696947156058633269964186875420014810205706857336855202357581305570326707516350759619307"

func TestPower_MatchesReference(t *testing.T) {
	for _, tc := range []struct {
		baseN, baseD, expN, expD string
	}{
		{"2", "1", "1", "2"},
		{"3", "2", "500000", "1000000"},
		{"1000001000000", "1000000000000", "300000", "1000000"},
		{"999", "1000", "1000000", "250000"},
		{"1", "2", "1000000", "1"},
		{"100000000000000000000", "7", "1", "3"},
		{"5", "1000000000", "900000", "1000000"},
		{"123456789", "123456788", "1000000", "1"},
		{"1", "1000000", "1000000", "100000"},
		{"50000000000000000000000000", "49999999999999999999999999", "1", "1000000"},
		{"99000000000000000", "500000000000000000000000000", "500000", "1000000"},
	} {
		baseN := mustBigInt(t, tc.baseN)
		baseD := mustBigInt(t, tc.baseD)
		expN := mustBigInt(t, tc.expN)
		expD := mustBigInt(t, tc.expD)

		down, err := Power(baseN, baseD, expN, expD, false)
		require.NoError(t, err)
		up, err := Power(baseN, baseD, expN, expD, true)
		require.NoError(t, err)

		expected := refPowerFixed(baseN, baseD, expN, expD)
		assertPowerBounds(t, expected, down, up, fmt.Sprintf("%s/%s^%s/%s", tc.baseN, tc.baseD, tc.expN, tc.expD))
	}
}

func TestPower_EdgeCases(t *testing.T) {
	one := new(big.Int).Lsh(big.NewInt(1), Precision)

	_, err := Power(big.NewInt(1), big.NewInt(0), big.NewInt(1), big.NewInt(2), false)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Power(big.NewInt(1), big.NewInt(2), big.NewInt(1), big.NewInt(0), false)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Power(big.NewInt(-1), big.NewInt(2), big.NewInt(1), big.NewInt(2), false)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	actual, err := Power(big.NewInt(0), big.NewInt(2), big.NewInt(1), big.NewInt(2), true)
	require.NoError(t, err)
	assert.Zero(t, actual.Sign())

	actual, err = Power(big.NewInt(7), big.NewInt(7), big.NewInt(3), big.NewInt(2), false)
	require.NoError(t, err)
	assert.Equal(t, one, actual)

	actual, err = Power(big.NewInt(7), big.NewInt(3), big.NewInt(0), big.NewInt(2), false)
	require.NoError(t, err)
	assert.Equal(t, one, actual)

	// Unit exponents are exact
	actual, err = Power(big.NewInt(10), big.NewInt(4), big.NewInt(7), big.NewInt(7), false)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Add(new(big.Int).Lsh(one, 1), new(big.Int).Rsh(one, 1)), actual)

	down, err := Power(big.NewInt(10), big.NewInt(3), big.NewInt(1), big.NewInt(1), false)
	require.NoError(t, err)
	up, err := Power(big.NewInt(10), big.NewInt(3), big.NewInt(1), big.NewInt(1), true)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Add(down, big.NewInt(1)), up)

	_, err = Power(new(big.Int).Lsh(big.NewInt(1), 200), big.NewInt(1), big.NewInt(3), big.NewInt(2), false)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestLn2(t *testing.T) {
	expected, _, err := big.ParseFloat(ln2Digits, 10, refPrec, big.ToNearestEven)
	require.NoError(t, err)
	expected.SetMantExp(expected, Precision)

	actual := new(big.Float).SetPrec(refPrec).SetInt(ln2)
	diff := new(big.Float).Sub(expected, actual)
	assert.True(t, diff.Abs(diff).Cmp(big.NewFloat(marginUlps)) <= 0, "ln2 off by %s ulps", diff.Text('g', 6))
}

func mustBigInt(t *testing.T, s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

// assertPowerBounds checks down and up bracket the exact fixed-point value and
// stay within the documented error bound of it.
func assertPowerBounds(t *testing.T, expected *big.Float, down, up *big.Int, name string) {
	tolerance := new(big.Float).Mul(expected, Epsilon)
	tolerance.Add(tolerance, big.NewFloat(128))

	diff := new(big.Float).Sub(expected, new(big.Float).SetPrec(refPrec).SetInt(down))
	assert.True(t, diff.Cmp(big.NewFloat(-1)) >= 0, "%s rounded down above exact", name)
	assert.True(t, diff.Cmp(tolerance) <= 0, "%s rounded down too far", name)

	diff = new(big.Float).Sub(new(big.Float).SetPrec(refPrec).SetInt(up), expected)
	assert.True(t, diff.Cmp(big.NewFloat(-1)) >= 0, "%s rounded up below exact", name)
	assert.True(t, diff.Cmp(tolerance) <= 0, "%s rounded up too far", name)

	assert.True(t, down.Cmp(up) <= 0, "%s bounds crossed", name)
}

// refPowerFixed computes (baseN/baseD)^(expN/expD) scaled by 2^Precision with
// high precision floats.
func refPowerFixed(baseN, baseD, expN, expD *big.Int) *big.Float {
	base := new(big.Float).SetPrec(refPrec).Quo(
		new(big.Float).SetPrec(refPrec).SetInt(baseN),
		new(big.Float).SetPrec(refPrec).SetInt(baseD),
	)
	exponent := new(big.Float).SetPrec(refPrec).Quo(
		new(big.Float).SetPrec(refPrec).SetInt(expN),
		new(big.Float).SetPrec(refPrec).SetInt(expD),
	)

	result := refExp(new(big.Float).Mul(exponent, refLog(base)))
	return result.SetMantExp(result, Precision)
}

func refExp(x *big.Float) *big.Float {
	if x.Sign() < 0 {
		inverse := refExp(new(big.Float).Neg(x))
		return new(big.Float).SetPrec(refPrec).Quo(big.NewFloat(1).SetPrec(refPrec), inverse)
	}

	result := big.NewFloat(1).SetPrec(refPrec)
	term := big.NewFloat(1).SetPrec(refPrec)
	for i := 1; i < 2000; i++ {
		term = term.Mul(term, x)
		term = term.Quo(term, big.NewFloat(float64(i)))
		old := new(big.Float).Copy(result)
		result = result.Add(result, term)
		if term.Sign() == 0 || old.Cmp(result) == 0 {
			break
		}
	}
	return result
}

func refLog(y *big.Float) *big.Float {
	yf, _ := y.Float64()
	z := big.NewFloat(math.Log(yf)).SetPrec(refPrec)
	for range 12 {
		expz := refExp(z)
		adjustment := new(big.Float).SetPrec(refPrec).Quo(y, expz)
		z = z.Add(z, adjustment)
		z = z.Sub(z, big.NewFloat(1))
	}
	return z
}
