package curve

import (
	"math/big"
)

const (
	// MaxReserveRatio is a reserve ratio of 100%, in parts per million.
	MaxReserveRatio = 1_000_000

	// TokenDecimals is the number of decimals of every continuous token.
	TokenDecimals = 10

	// QuarksPerToken is the number of base units in one whole continuous token.
	QuarksPerToken = 10_000_000_000

	defaultPricePrec = 128
)

var (
	bigMaxReserveRatio = big.NewInt(MaxReserveRatio)
	bigQuarksPerToken  = big.NewInt(QuarksPerToken)
)

func validateRatio(ratio uint32) error {
	if ratio == 0 || ratio > MaxReserveRatio {
		return ErrInvalidRatio
	}
	return nil
}

// PurchaseReturn is the number of continuous tokens minted for depositing
// deposit reserve quarks into a market at the given supply and reserve:
//
//	supply * ((1 + deposit/reserve)^(ratio/1000000) - 1)
//
// The result is rounded down.
func PurchaseReturn(supply, reserve uint64, ratio uint32, deposit uint64) (uint64, error) {
	if err := validateRatio(ratio); err != nil {
		return 0, err
	}
	if supply == 0 || reserve == 0 {
		return 0, ErrDivisionByZero
	}
	if deposit == 0 {
		return 0, nil
	}

	bigSupply := new(big.Int).SetUint64(supply)
	bigReserve := new(big.Int).SetUint64(reserve)
	bigDeposit := new(big.Int).SetUint64(deposit)

	if ratio == MaxReserveRatio {
		result := new(big.Int).Mul(bigSupply, bigDeposit)
		return toUint64(result.Quo(result, bigReserve))
	}

	base := new(big.Int).Add(bigReserve, bigDeposit)
	r, err := Power(base, bigReserve, big.NewInt(int64(ratio)), bigMaxReserveRatio, false)
	if err != nil {
		return 0, err
	}

	newSupply := r.Mul(r, bigSupply)
	newSupply.Rsh(newSupply, Precision)

	minted := newSupply.Sub(newSupply, bigSupply)
	if minted.Sign() <= 0 {
		return 0, nil
	}
	return toUint64(minted)
}

// SaleReturn is the number of reserve quarks released for burning amount
// continuous tokens from a market at the given supply and reserve:
//
//	reserve * (1 - (1 - amount/supply)^(1000000/ratio))
//
// The result is rounded down. Selling the entire supply releases the entire
// reserve.
func SaleReturn(supply, reserve uint64, ratio uint32, amount uint64) (uint64, error) {
	if err := validateRatio(ratio); err != nil {
		return 0, err
	}
	if supply == 0 {
		return 0, ErrDivisionByZero
	}
	if amount > supply {
		return 0, ErrInvalidAmount
	}
	if amount == 0 || reserve == 0 {
		return 0, nil
	}
	if amount == supply {
		return reserve, nil
	}

	bigSupply := new(big.Int).SetUint64(supply)
	bigReserve := new(big.Int).SetUint64(reserve)
	bigAmount := new(big.Int).SetUint64(amount)

	if ratio == MaxReserveRatio {
		result := new(big.Int).Mul(bigReserve, bigAmount)
		return toUint64(result.Quo(result, bigSupply))
	}

	// The reserve left behind is rounded up so the payout rounds down
	base := new(big.Int).Sub(bigSupply, bigAmount)
	r, err := Power(base, bigSupply, bigMaxReserveRatio, big.NewInt(int64(ratio)), true)
	if err != nil {
		return 0, err
	}

	remaining := r.Mul(r, bigReserve)
	remaining.Add(remaining, new(big.Int).Sub(fixedOne, big.NewInt(1)))
	remaining.Rsh(remaining, Precision)
	if remaining.Cmp(bigReserve) >= 0 {
		return 0, nil
	}

	return toUint64(remaining.Sub(bigReserve, remaining))
}

// InitialPurchaseReturn is the number of continuous tokens minted for the
// first deposit into an empty market.
//
// An empty market has no supply or reserve to price against, so the first
// purchase is placed on the pure power curve reserve = k*supply^(1000000/ratio)
// that passes through anchorPrice (reserve quarks per whole token) at
// anchorSupply token quarks. The reserve held at the anchor is
//
//	R0 = ratio/1000000 * anchorPrice/QuarksPerToken * anchorSupply
//
// and depositing d returns anchorSupply * (d/R0)^(ratio/1000000), rounded
// down. Subsequent purchases through PurchaseReturn stay on the same curve.
func InitialPurchaseReturn(anchorSupply, anchorPrice uint64, ratio uint32, deposit uint64) (uint64, error) {
	if err := validateRatio(ratio); err != nil {
		return 0, err
	}
	if anchorSupply == 0 || anchorPrice == 0 {
		return 0, ErrInvalidAmount
	}
	if deposit == 0 {
		return 0, nil
	}

	if ratio == MaxReserveRatio {
		result := new(big.Int).SetUint64(deposit)
		result.Mul(result, bigQuarksPerToken)
		return toUint64(result.Quo(result, new(big.Int).SetUint64(anchorPrice)))
	}

	bigAnchorSupply := new(big.Int).SetUint64(anchorSupply)

	n := new(big.Int).SetUint64(deposit)
	n.Mul(n, bigMaxReserveRatio)
	n.Mul(n, bigQuarksPerToken)

	d := new(big.Int).SetUint64(anchorPrice)
	d.Mul(d, big.NewInt(int64(ratio)))
	d.Mul(d, bigAnchorSupply)

	r, err := Power(n, d, big.NewInt(int64(ratio)), bigMaxReserveRatio, false)
	if err != nil {
		return 0, err
	}

	minted := r.Mul(r, bigAnchorSupply)
	minted.Rsh(minted, Precision)
	return toUint64(minted)
}

// SpotPrice is the marginal price of one continuous token quark, in reserve
// quarks:
//
//	reserve / (supply * ratio/1000000)
func SpotPrice(supply, reserve uint64, ratio uint32) (*big.Float, error) {
	if err := validateRatio(ratio); err != nil {
		return nil, err
	}
	if supply == 0 {
		return nil, ErrDivisionByZero
	}

	num := new(big.Float).SetPrec(defaultPricePrec).SetUint64(reserve)
	num.Mul(num, new(big.Float).SetPrec(defaultPricePrec).SetInt64(MaxReserveRatio))

	den := new(big.Float).SetPrec(defaultPricePrec).SetUint64(supply)
	den.Mul(den, new(big.Float).SetPrec(defaultPricePrec).SetInt64(int64(ratio)))

	return num.Quo(num, den), nil
}

// SpotPricePerToken is SpotPrice scaled to one whole continuous token.
func SpotPricePerToken(supply, reserve uint64, ratio uint32) (*big.Float, error) {
	price, err := SpotPrice(supply, reserve, ratio)
	if err != nil {
		return nil, err
	}
	return price.Mul(price, new(big.Float).SetPrec(defaultPricePrec).SetInt64(QuarksPerToken)), nil
}
