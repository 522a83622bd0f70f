package curve

import (
	"math/big"
)

const (
	// Precision is the number of fractional bits carried by fixed-point
	// values returned from Power.
	Precision = 127

	// Values produced by the exponential must stay below 2^maxExpBits.
	maxExpBits = 256

	// Series are cut off after this many terms even if they have not
	// converged to zero. Both series converge well before the cap over the
	// reduced ranges they are evaluated on.
	maxSeriesTerms = 64

	// Relative rounding margin applied to every Power result, as a right
	// shift, plus a fixed absolute margin in units of the last place.
	marginShift = 80
	marginUlps  = 64
)

var (
	// Epsilon is the documented relative error bound of Power against the
	// exact real-valued result, outside an absolute slack of 2^-120.
	Epsilon = new(big.Float).SetMantExp(big.NewFloat(1), -64)

	fixedOne = new(big.Int).Lsh(big.NewInt(1), Precision)
	ln2      = lnSeries(new(big.Int).Div(fixedOne, big.NewInt(3)))

	// exp(-x) is below one unit in the last place once x reaches
	// (Precision+1)*ln(2).
	negativeExpCutoff = new(big.Int).Mul(ln2, big.NewInt(Precision+1))

	marginAbs = big.NewInt(marginUlps)
)

// Power approximates (baseN/baseD)^(expN/expD) and returns it as a fixed-point
// value with Precision fractional bits.
//
// The result is biased away from the exact value in the requested direction:
// with roundUp false the result never exceeds the exact value, and with
// roundUp true it is never below it. Callers choose the direction that favors
// the market.
func Power(baseN, baseD, expN, expD *big.Int, roundUp bool) (*big.Int, error) {
	if baseD.Sign() == 0 || expD.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if baseN.Sign() < 0 || baseD.Sign() < 0 || expN.Sign() < 0 || expD.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	if baseN.Sign() == 0 {
		if expN.Sign() == 0 {
			return new(big.Int).Set(fixedOne), nil
		}
		return new(big.Int), nil
	}

	if expN.Sign() == 0 || baseN.Cmp(baseD) == 0 {
		return new(big.Int).Set(fixedOne), nil
	}

	// Exact for unit exponents
	if expN.Cmp(expD) == 0 {
		return fixedQuo(baseN, baseD, roundUp), nil
	}

	y := new(big.Int).Sub(lnInt(baseN), lnInt(baseD))
	y.Mul(y, expN)
	y.Quo(y, expD)

	var result *big.Int
	if y.Sign() >= 0 {
		e, err := expFixed(y)
		if err != nil {
			return nil, err
		}
		result = e
	} else {
		y.Neg(y)
		if y.Cmp(negativeExpCutoff) >= 0 {
			result = new(big.Int)
		} else {
			e, err := expFixed(y)
			if err != nil {
				return nil, err
			}
			result = new(big.Int).Mul(fixedOne, fixedOne)
			result.Quo(result, e)
		}
	}

	margin := new(big.Int).Rsh(result, marginShift)
	margin.Add(margin, marginAbs)
	if roundUp {
		return result.Add(result, margin), nil
	}

	result.Sub(result, margin)
	if result.Sign() < 0 {
		result.SetInt64(0)
	}
	return result, nil
}

// fixedQuo returns n/d as a fixed-point value, truncated or rounded up.
func fixedQuo(n, d *big.Int, roundUp bool) *big.Int {
	num := new(big.Int).Lsh(n, Precision)
	if roundUp {
		num.Add(num, d)
		num.Sub(num, big.NewInt(1))
	}
	return num.Quo(num, d)
}

// lnInt returns ln(v) in fixed point for an integer v >= 1.
func lnInt(v *big.Int) *big.Int {
	k := v.BitLen() - 1

	// Normalize into [1, 2) so that only the mantissa needs the series
	m := new(big.Int).Lsh(v, Precision)
	m.Rsh(m, uint(k))

	result := new(big.Int).Mul(ln2, big.NewInt(int64(k)))
	if m.Cmp(fixedOne) == 0 {
		return result
	}

	// ln(m) = 2*atanh((m-1)/(m+1)), with the argument in [0, 1/3)
	num := new(big.Int).Sub(m, fixedOne)
	num.Lsh(num, Precision)
	den := new(big.Int).Add(m, fixedOne)
	z := num.Quo(num, den)

	return result.Add(result, lnSeries(z))
}

// lnSeries computes 2*(z + z^3/3 + z^5/5 + ...) in fixed point.
func lnSeries(z *big.Int) *big.Int {
	sum := new(big.Int).Set(z)
	zz := new(big.Int).Mul(z, z)
	zz.Rsh(zz, Precision)

	power := new(big.Int).Set(z)
	term := new(big.Int)
	for i := int64(1); i < maxSeriesTerms; i++ {
		power.Mul(power, zz)
		power.Rsh(power, Precision)
		if power.Sign() == 0 {
			break
		}

		term.Quo(power, big.NewInt(2*i+1))
		sum.Add(sum, term)
	}

	return sum.Lsh(sum, 1)
}

// expFixed returns e^y in fixed point for y >= 0.
func expFixed(y *big.Int) (*big.Int, error) {
	// y = k*ln(2) + r with 0 <= r < ln(2)
	k, r := new(big.Int).QuoRem(y, ln2, new(big.Int))
	if !k.IsInt64() || k.Int64()+Precision+2 > maxExpBits {
		return nil, ErrArithmeticOverflow
	}

	sum := new(big.Int).Set(fixedOne)
	term := new(big.Int).Set(fixedOne)
	for i := int64(1); i < maxSeriesTerms; i++ {
		term.Mul(term, r)
		term.Rsh(term, Precision)
		term.Quo(term, big.NewInt(i))
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}

	sum.Lsh(sum, uint(k.Int64()))
	if sum.BitLen() > maxExpBits {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

// toUint64 converts an integer to uint64, failing when it does not fit.
func toUint64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return v.Uint64(), nil
}
