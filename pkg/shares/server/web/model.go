package web

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dibs-shares/shares-server/pkg/curve"
	market_data "github.com/dibs-shares/shares-server/pkg/shares/data/market"
	"github.com/dibs-shares/shares-server/pkg/shares/market"
	"github.com/dibs-shares/shares-server/pkg/shares/registry"
)

// Quark amounts are encoded as strings so clients without 64-bit integers
// don't lose precision

type createMarketRequest struct {
	Creator   string `json:"creator" binding:"required"`
	Authority string `json:"authority"`
	Name      string `json:"name" binding:"required"`
	Symbol    string `json:"symbol" binding:"required"`

	ReserveRatio       *uint32 `json:"reserve_ratio"`
	MaxSupply          *uint64 `json:"max_supply"`
	BuyFeeBps          *uint16 `json:"buy_fee_bps"`
	SellFeeBps         *uint16 `json:"sell_fee_bps"`
	CreatorFeeShareBps *uint16 `json:"creator_fee_share_bps"`
}

type tradeRequest struct {
	Account string `json:"account" binding:"required"`
	Amount  uint64 `json:"amount,string"`
	MinOut  uint64 `json:"min_out,string"`
}

type callerRequest struct {
	Caller string `json:"caller" binding:"required"`
}

type marketResponse struct {
	Index       uint64 `json:"index"`
	Address     string `json:"address"`
	Creator     string `json:"creator"`
	Beneficiary string `json:"beneficiary,omitempty"`
	Authority   string `json:"authority,omitempty"`

	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	ReserveMint string `json:"reserve_mint,omitempty"`

	ReserveRatio  uint32 `json:"reserve_ratio"`
	InitialSupply uint64 `json:"initial_supply,string,omitempty"`
	InitialPrice  uint64 `json:"initial_price,string,omitempty"`
	MaxSupply     uint64 `json:"max_supply,string,omitempty"`

	BuyFeeBps          uint16 `json:"buy_fee_bps"`
	SellFeeBps         uint16 `json:"sell_fee_bps"`
	CreatorFeeShareBps uint16 `json:"creator_fee_share_bps"`

	Supply       uint64 `json:"supply,string"`
	SupplyTokens string `json:"supply_tokens"`
	Reserve      uint64 `json:"reserve,string"`

	SpotPricePerToken *string `json:"spot_price_per_token"`

	IsPaused  bool      `json:"is_paused"`
	CreatedAt time.Time `json:"created_at"`
}

type listMarketsResponse struct {
	Markets    []*marketResponse `json:"markets"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type priceResponse struct {
	Market            string `json:"market"`
	SpotPrice         string `json:"spot_price"`
	SpotPricePerToken string `json:"spot_price_per_token"`
}

type quoteResponse struct {
	Market string `json:"market"`
	Side   string `json:"side"`
	Amount uint64 `json:"amount,string"`
	Out    uint64 `json:"out,string"`
	Fee    uint64 `json:"fee,string"`
}

type buyResponse struct {
	TradeId   string `json:"trade_id"`
	Market    string `json:"market"`
	Buyer     string `json:"buyer"`
	Amount    uint64 `json:"amount,string"`
	Fee       uint64 `json:"fee,string"`
	TokensOut uint64 `json:"tokens_out,string"`
	Supply    uint64 `json:"supply,string"`
	Reserve   uint64 `json:"reserve,string"`
}

type sellResponse struct {
	TradeId    string `json:"trade_id"`
	Market     string `json:"market"`
	Seller     string `json:"seller"`
	Amount     uint64 `json:"amount,string"`
	Fee        uint64 `json:"fee,string"`
	ReserveOut uint64 `json:"reserve_out,string"`
	Supply     uint64 `json:"supply,string"`
	Reserve    uint64 `json:"reserve,string"`
}

type holderResponse struct {
	Market        string `json:"market"`
	Owner         string `json:"owner"`
	Balance       uint64 `json:"balance,string"`
	BalanceTokens string `json:"balance_tokens"`
}

type claimResponse struct {
	Market  string `json:"market"`
	Claimed uint64 `json:"claimed,string"`
}

func toMarketResponse(record *market_data.Record) *marketResponse {
	return &marketResponse{
		Index:       record.Index,
		Address:     record.Address,
		Creator:     record.Creator,
		Beneficiary: record.Beneficiary,
		Authority:   record.Authority,

		Name:        record.Name,
		Symbol:      record.Symbol,
		ReserveMint: record.ReserveMint,

		ReserveRatio:  record.ReserveRatio,
		InitialSupply: record.InitialSupply,
		InitialPrice:  record.InitialPrice,
		MaxSupply:     record.MaxSupply,

		BuyFeeBps:          record.BuyFeeBps,
		SellFeeBps:         record.SellFeeBps,
		CreatorFeeShareBps: record.CreatorFeeShareBps,

		Supply:       record.ContinuousSupply,
		SupplyTokens: quarksToTokens(record.ContinuousSupply),
		Reserve:      record.ReserveBalance,

		SpotPricePerToken: spotPricePerToken(record.ContinuousSupply, record.ReserveBalance, record.ReserveRatio),

		IsPaused:  record.IsPaused,
		CreatedAt: record.CreatedAt,
	}
}

func toSummaryResponse(summary *registry.Summary) *marketResponse {
	return &marketResponse{
		Index:   summary.Index,
		Address: summary.Address,
		Creator: summary.Creator,

		Name:   summary.Name,
		Symbol: summary.Symbol,

		ReserveRatio: summary.ReserveRatio,

		Supply:       summary.ContinuousSupply,
		SupplyTokens: quarksToTokens(summary.ContinuousSupply),
		Reserve:      summary.ReserveBalance,

		SpotPricePerToken: spotPricePerToken(summary.ContinuousSupply, summary.ReserveBalance, summary.ReserveRatio),

		IsPaused:  summary.IsPaused,
		CreatedAt: summary.CreatedAt,
	}
}

func toBuyResponse(res *market.BuyResult) *buyResponse {
	return &buyResponse{
		TradeId:   res.TradeId,
		Market:    res.Market,
		Buyer:     res.Buyer,
		Amount:    res.Amount,
		Fee:       res.Fee,
		TokensOut: res.TokensOut,
		Supply:    res.NewSupply,
		Reserve:   res.NewReserve,
	}
}

func toSellResponse(res *market.SellResult) *sellResponse {
	return &sellResponse{
		TradeId:    res.TradeId,
		Market:     res.Market,
		Seller:     res.Seller,
		Amount:     res.Amount,
		Fee:        res.Fee,
		ReserveOut: res.ReserveOut,
		Supply:     res.NewSupply,
		Reserve:    res.NewReserve,
	}
}

// quarksToTokens renders continuous token quarks as whole tokens
func quarksToTokens(quarks uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(quarks), -curve.TokenDecimals).String()
}

func priceToDecimal(price *big.Float) string {
	d, err := decimal.NewFromString(price.Text('f', curve.TokenDecimals))
	if err != nil {
		return price.Text('g', 20)
	}
	return d.String()
}

func spotPricePerToken(supply, reserve uint64, ratio uint32) *string {
	if supply == 0 {
		return nil
	}

	price, err := curve.SpotPricePerToken(supply, reserve, ratio)
	if err != nil {
		return nil
	}

	rendered := priceToDecimal(price)
	return &rendered
}
