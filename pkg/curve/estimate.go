package curve

import (
	"math/big"
)

// MaxFeeBps is a fee of 100%, in basis points.
const MaxFeeBps = 10_000

// CalculateFee returns bps basis points of amount, rounded up in favor of the
// fee collector.
func CalculateFee(amount uint64, bps uint16) uint64 {
	if amount == 0 || bps == 0 {
		return 0
	}
	if bps >= MaxFeeBps {
		return amount
	}

	fee := new(big.Int).SetUint64(amount)
	fee.Mul(fee, big.NewInt(int64(bps)))
	fee.Add(fee, big.NewInt(MaxFeeBps-1))
	fee.Quo(fee, big.NewInt(MaxFeeBps))
	return fee.Uint64()
}

type EstimateBuyArgs struct {
	BuyAmountInQuarks      uint64
	CurrentSupplyInQuarks  uint64
	CurrentReserveInQuarks uint64
	ReserveRatio           uint32
	AnchorSupplyInQuarks   uint64
	AnchorPriceInQuarks    uint64
	BuyFeeBps              uint16
}

// EstimateBuy returns the continuous token quarks received and the reserve
// quarks taken as fees for a buy. Fees are deducted from the paid amount
// before it enters the curve.
func EstimateBuy(args *EstimateBuyArgs) (uint64, uint64, error) {
	fees := CalculateFee(args.BuyAmountInQuarks, args.BuyFeeBps)
	net := args.BuyAmountInQuarks - fees

	var received uint64
	var err error
	if args.CurrentSupplyInQuarks == 0 {
		received, err = InitialPurchaseReturn(args.AnchorSupplyInQuarks, args.AnchorPriceInQuarks, args.ReserveRatio, net)
	} else {
		received, err = PurchaseReturn(args.CurrentSupplyInQuarks, args.CurrentReserveInQuarks, args.ReserveRatio, net)
	}
	if err != nil {
		return 0, 0, err
	}
	return received, fees, nil
}

type EstimateSellArgs struct {
	SellAmountInQuarks     uint64
	CurrentSupplyInQuarks  uint64
	CurrentReserveInQuarks uint64
	ReserveRatio           uint32
	SellFeeBps             uint16
}

// EstimateSell returns the reserve quarks received and the reserve quarks
// taken as fees for a sell. Fees are deducted from the curve's payout.
func EstimateSell(args *EstimateSellArgs) (uint64, uint64, error) {
	gross, err := SaleReturn(args.CurrentSupplyInQuarks, args.CurrentReserveInQuarks, args.ReserveRatio, args.SellAmountInQuarks)
	if err != nil {
		return 0, 0, err
	}

	fees := CalculateFee(gross, args.SellFeeBps)
	return gross - fees, fees, nil
}
