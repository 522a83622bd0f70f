package market

import (
	"context"

	"github.com/dibs-shares/shares-server/pkg/metrics"
)

const (
	metricsStructName = "market.Market"

	buyEventName      = "ContinuousTokenBuy"
	sellEventName     = "ContinuousTokenSell"
	feeClaimEventName = "ContinuousTokenFeeClaim"

	reserveVolumeMetricName = "ContinuousToken/ReserveVolume"
	feeVolumeMetricName     = "ContinuousToken/FeeVolume"
)

func recordBuyEvent(ctx context.Context, res *BuyResult) {
	metrics.RecordEvent(ctx, buyEventName, map[string]interface{}{
		"market":      res.Market,
		"buyer":       res.Buyer,
		"amount":      res.Amount,
		"tokens_out":  res.TokensOut,
		"fee":         res.Fee,
		"new_supply":  res.NewSupply,
		"new_reserve": res.NewReserve,
	})
	metrics.RecordCount(ctx, reserveVolumeMetricName, res.Amount)
	metrics.RecordCount(ctx, feeVolumeMetricName, res.Fee)
}

func recordSellEvent(ctx context.Context, res *SellResult) {
	metrics.RecordEvent(ctx, sellEventName, map[string]interface{}{
		"market":      res.Market,
		"seller":      res.Seller,
		"amount":      res.Amount,
		"reserve_out": res.ReserveOut,
		"fee":         res.Fee,
		"new_supply":  res.NewSupply,
		"new_reserve": res.NewReserve,
	})
	metrics.RecordCount(ctx, reserveVolumeMetricName, res.ReserveOut+res.Fee)
	metrics.RecordCount(ctx, feeVolumeMetricName, res.Fee)
}

func recordFeeClaimEvent(ctx context.Context, market, claimant string, amount uint64) {
	metrics.RecordEvent(ctx, feeClaimEventName, map[string]interface{}{
		"market":   market,
		"claimant": claimant,
		"amount":   amount,
	})
}
