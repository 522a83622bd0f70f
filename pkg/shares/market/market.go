package market

import (
	"context"
	"database/sql"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dibs-shares/shares-server/pkg/curve"
	"github.com/dibs-shares/shares-server/pkg/metrics"
	"github.com/dibs-shares/shares-server/pkg/shares/common"
	"github.com/dibs-shares/shares-server/pkg/shares/data"
	"github.com/dibs-shares/shares-server/pkg/shares/data/holder"
	market_data "github.com/dibs-shares/shares-server/pkg/shares/data/market"
	"github.com/dibs-shares/shares-server/pkg/shares/reserve"
)

// Market is a single creator's continuous token market. Every mutating call is
// serialized on the market and either fully applies or leaves the market,
// its holders and the reserve account untouched.
type Market struct {
	log        *logrus.Entry
	data       data.Provider
	transferer reserve.Transferer
	authorizer Authorizer

	mu     sync.RWMutex
	record *market_data.Record
}

// New returns a Market operating on a persisted record. Markets are created
// through the registry, which owns the only write path for new records.
func New(data data.Provider, transferer reserve.Transferer, authorizer Authorizer, record *market_data.Record) *Market {
	cloned := record.Clone()
	return &Market{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type":   "market",
			"market": record.Address,
		}),
		data:       data,
		transferer: transferer,
		authorizer: authorizer,
		record:     &cloned,
	}
}

type BuyArgs struct {
	Buyer *common.Account

	// Amount is the gross number of reserve quarks paid, fees included
	Amount uint64

	// MinTokensOut fails the purchase when fewer tokens would be minted
	MinTokensOut uint64
}

type BuyResult struct {
	TradeId string

	Market string
	Buyer  string

	Amount    uint64
	Fee       uint64
	ReserveIn uint64
	TokensOut uint64

	NewSupply  uint64
	NewReserve uint64
}

type SellArgs struct {
	Seller *common.Account

	// Amount is the number of continuous token quarks burned
	Amount uint64

	// MinReserveOut fails the sale when the payout after fees would be lower
	MinReserveOut uint64
}

type SellResult struct {
	TradeId string

	Market string
	Seller string

	Amount     uint64
	Fee        uint64
	ReserveOut uint64

	NewSupply  uint64
	NewReserve uint64
}

// Address is the market's derived address, which also holds its reserve
func (m *Market) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record.Address
}

// Snapshot returns a read-only copy of the market's current state
func (m *Market) Snapshot() market_data.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record.Clone()
}

// Buy deposits reserve quarks and mints continuous tokens to the buyer
func (m *Market) Buy(ctx context.Context, args *BuyArgs) (*BuyResult, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Buy")
	tracer.AddAttribute("market", m.Address())
	defer tracer.End()

	res, err := m.buy(ctx, args)
	tracer.OnError(err)
	return res, err
}

func (m *Market) buy(ctx context.Context, args *BuyArgs) (*BuyResult, error) {
	if args == nil || args.Buyer == nil {
		return nil, errors.Wrap(ErrInvalidAmount, "buyer is required")
	}
	if args.Amount == 0 {
		return nil, ErrZeroAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.log.WithFields(logrus.Fields{
		"method": "Buy",
		"buyer":  args.Buyer.String(),
		"amount": args.Amount,
	})

	if m.record.IsPaused {
		return nil, ErrPaused
	}

	// The market address holds the reserve, so it can never pay into it
	if args.Buyer.String() == m.record.Address {
		return nil, ErrSelfTrade
	}

	fee := curve.CalculateFee(args.Amount, m.record.BuyFeeBps)
	tokensOut, _, err := curve.EstimateBuy(m.buyEstimateArgs(args.Amount))
	if err != nil {
		return nil, errors.Wrap(err, "error calculating purchase return")
	}
	net := args.Amount - fee

	if tokensOut == 0 {
		return nil, errors.Wrap(ErrInvalidAmount, "purchase is too small to mint any tokens")
	}
	if tokensOut < args.MinTokensOut {
		return nil, ErrSlippageExceeded
	}

	staged := m.record.Clone()
	if staged.ContinuousSupply > math.MaxUint64-tokensOut || staged.ReserveBalance > math.MaxUint64-net {
		return nil, ErrArithmeticOverflow
	}
	staged.ContinuousSupply += tokensOut
	staged.ReserveBalance += net
	if staged.MaxSupply > 0 && staged.ContinuousSupply > staged.MaxSupply {
		return nil, errors.Wrap(ErrInvalidAmount, "purchase exceeds the max supply")
	}
	if err := accrueFees(&staged, fee); err != nil {
		return nil, err
	}

	buyer := args.Buyer.String()
	err = m.data.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		if err := m.data.SaveMarket(ctx, &staged); err != nil {
			return errors.Wrap(err, "error saving market")
		}

		if err := m.creditHolder(ctx, buyer, tokensOut); err != nil {
			return err
		}

		// Reserve movement goes last so a failure rolls back everything above
		return m.transferer.Transfer(ctx, staged.ReserveMint, buyer, staged.Address, args.Amount)
	})
	if err != nil {
		m.onCommitError(ctx, log, err)
		return nil, err
	}

	m.record = &staged

	res := &BuyResult{
		TradeId:    uuid.New().String(),
		Market:     staged.Address,
		Buyer:      buyer,
		Amount:     args.Amount,
		Fee:        fee,
		ReserveIn:  net,
		TokensOut:  tokensOut,
		NewSupply:  staged.ContinuousSupply,
		NewReserve: staged.ReserveBalance,
	}

	log.WithFields(logrus.Fields{
		"trade":      res.TradeId,
		"tokens_out": tokensOut,
		"fee":        fee,
	}).Debug("purchase executed")
	recordBuyEvent(ctx, res)

	return res, nil
}

// Sell burns continuous tokens from the seller and pays out reserve quarks
func (m *Market) Sell(ctx context.Context, args *SellArgs) (*SellResult, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Sell")
	tracer.AddAttribute("market", m.Address())
	defer tracer.End()

	res, err := m.sell(ctx, args)
	tracer.OnError(err)
	return res, err
}

func (m *Market) sell(ctx context.Context, args *SellArgs) (*SellResult, error) {
	if args == nil || args.Seller == nil {
		return nil, errors.Wrap(ErrInvalidAmount, "seller is required")
	}
	if args.Amount == 0 {
		return nil, ErrZeroAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seller := args.Seller.String()
	log := m.log.WithFields(logrus.Fields{
		"method": "Sell",
		"seller": seller,
		"amount": args.Amount,
	})

	if m.record.IsPaused {
		return nil, ErrPaused
	}

	if seller == m.record.Address {
		return nil, ErrSelfTrade
	}

	balance, err := m.balanceOf(ctx, seller)
	if err != nil {
		return nil, err
	}
	if balance < args.Amount {
		return nil, ErrInsufficientBalance
	}

	gross, err := curve.SaleReturn(m.record.ContinuousSupply, m.record.ReserveBalance, m.record.ReserveRatio, args.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "error calculating sale return")
	}
	if gross == 0 {
		return nil, errors.Wrap(ErrInvalidAmount, "sale is too small to release any reserve")
	}

	fee := curve.CalculateFee(gross, m.record.SellFeeBps)
	net := gross - fee
	if net < args.MinReserveOut {
		return nil, ErrSlippageExceeded
	}

	staged := m.record.Clone()
	staged.ContinuousSupply -= args.Amount
	staged.ReserveBalance -= gross
	if (staged.ContinuousSupply == 0) != (staged.ReserveBalance == 0) {
		return nil, errors.Wrap(ErrInvalidAmount, "sale would leave supply and reserve out of balance")
	}
	if err := accrueFees(&staged, fee); err != nil {
		return nil, err
	}

	err = m.data.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		if err := m.data.SaveMarket(ctx, &staged); err != nil {
			return errors.Wrap(err, "error saving market")
		}

		if err := m.debitHolder(ctx, seller, args.Amount); err != nil {
			return err
		}

		if net == 0 {
			return nil
		}
		return m.transferer.Transfer(ctx, staged.ReserveMint, staged.Address, seller, net)
	})
	if err != nil {
		m.onCommitError(ctx, log, err)
		return nil, err
	}

	m.record = &staged

	res := &SellResult{
		TradeId:    uuid.New().String(),
		Market:     staged.Address,
		Seller:     seller,
		Amount:     args.Amount,
		Fee:        fee,
		ReserveOut: net,
		NewSupply:  staged.ContinuousSupply,
		NewReserve: staged.ReserveBalance,
	}

	log.WithFields(logrus.Fields{
		"trade":       res.TradeId,
		"reserve_out": net,
		"fee":         fee,
	}).Debug("sale executed")
	recordSellEvent(ctx, res)

	return res, nil
}

// SpotPrice is the marginal price of one continuous token quark in reserve
// quarks. It is undefined for a market with no supply.
func (m *Market) SpotPrice() (*big.Float, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record.ContinuousSupply == 0 {
		return nil, ErrUndefined
	}
	return curve.SpotPrice(m.record.ContinuousSupply, m.record.ReserveBalance, m.record.ReserveRatio)
}

// SpotPricePerToken is SpotPrice for one whole continuous token
func (m *Market) SpotPricePerToken() (*big.Float, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record.ContinuousSupply == 0 {
		return nil, ErrUndefined
	}
	return curve.SpotPricePerToken(m.record.ContinuousSupply, m.record.ReserveBalance, m.record.ReserveRatio)
}

// QuoteBuy estimates a purchase against the current state without executing it
func (m *Market) QuoteBuy(amount uint64) (tokensOut, fee uint64, err error) {
	if amount == 0 {
		return 0, 0, ErrZeroAmount
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return curve.EstimateBuy(m.buyEstimateArgs(amount))
}

// QuoteSell estimates a sale against the current state without executing it
func (m *Market) QuoteSell(amount uint64) (reserveOut, fee uint64, err error) {
	if amount == 0 {
		return 0, 0, ErrZeroAmount
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return curve.EstimateSell(&curve.EstimateSellArgs{
		SellAmountInQuarks:     amount,
		CurrentSupplyInQuarks:  m.record.ContinuousSupply,
		CurrentReserveInQuarks: m.record.ReserveBalance,
		ReserveRatio:           m.record.ReserveRatio,
		SellFeeBps:             m.record.SellFeeBps,
	})
}

// BalanceOf returns the continuous token balance of an owner
func (m *Market) BalanceOf(ctx context.Context, owner *common.Account) (uint64, error) {
	if owner == nil {
		return 0, errors.New("owner is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.balanceOf(ctx, owner.String())
}

func (m *Market) Pause(ctx context.Context, caller *common.Account) error {
	return m.setPaused(ctx, caller, true)
}

func (m *Market) Unpause(ctx context.Context, caller *common.Account) error {
	return m.setPaused(ctx, caller, false)
}

func (m *Market) setPaused(ctx context.Context, caller *common.Account, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.authorizer.CanAdminister(ctx, m.record, caller) {
		return ErrUnauthorized
	}
	if m.record.IsPaused == paused {
		return nil
	}

	staged := m.record.Clone()
	staged.IsPaused = paused
	if err := m.data.SaveMarket(ctx, &staged); err != nil {
		m.onCommitError(ctx, m.log.WithField("method", "setPaused"), err)
		return errors.Wrap(err, "error saving market")
	}

	m.record = &staged
	m.log.WithField("paused", paused).Info("market pause state updated")
	return nil
}

// ClaimFees pays out the fees accrued to the caller, who must be the market's
// creator or beneficiary. Both shares are paid when the caller is both.
func (m *Market) ClaimFees(ctx context.Context, caller *common.Account) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ClaimFees")
	tracer.AddAttribute("market", m.Address())
	defer tracer.End()

	if caller == nil {
		return 0, ErrUnauthorized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	claimant := caller.String()
	staged := m.record.Clone()

	var amount uint64
	var isParty bool
	if claimant == staged.Creator {
		isParty = true
		amount += staged.CreatorFeesAccrued
		staged.CreatorFeesAccrued = 0
	}
	if claimant == staged.Beneficiary {
		isParty = true
		amount += staged.BeneficiaryFeesAccrued
		staged.BeneficiaryFeesAccrued = 0
	}
	if !isParty {
		tracer.OnError(ErrUnauthorized)
		return 0, ErrUnauthorized
	}
	if amount == 0 {
		return 0, ErrNoFeesAccrued
	}

	err := m.data.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		if err := m.data.SaveMarket(ctx, &staged); err != nil {
			return errors.Wrap(err, "error saving market")
		}
		return m.transferer.Transfer(ctx, staged.ReserveMint, staged.Address, claimant, amount)
	})
	if err != nil {
		tracer.OnError(err)
		m.onCommitError(ctx, m.log.WithField("method", "ClaimFees"), err)
		return 0, err
	}

	m.record = &staged
	recordFeeClaimEvent(ctx, staged.Address, claimant, amount)
	return amount, nil
}

func (m *Market) buyEstimateArgs(amount uint64) *curve.EstimateBuyArgs {
	return &curve.EstimateBuyArgs{
		BuyAmountInQuarks:      amount,
		CurrentSupplyInQuarks:  m.record.ContinuousSupply,
		CurrentReserveInQuarks: m.record.ReserveBalance,
		ReserveRatio:           m.record.ReserveRatio,
		AnchorSupplyInQuarks:   m.record.InitialSupply,
		AnchorPriceInQuarks:    m.record.InitialPrice,
		BuyFeeBps:              m.record.BuyFeeBps,
	}
}

func (m *Market) balanceOf(ctx context.Context, owner string) (uint64, error) {
	record, err := m.data.GetHolder(ctx, m.record.Address, owner)
	if err == holder.ErrNotFound {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrap(err, "error getting holder")
	}
	return record.Balance, nil
}

func (m *Market) creditHolder(ctx context.Context, owner string, amount uint64) error {
	record, err := m.data.GetHolder(ctx, m.record.Address, owner)
	switch err {
	case nil:
	case holder.ErrNotFound:
		record = &holder.Record{
			Market:    m.record.Address,
			Owner:     owner,
			CreatedAt: time.Now(),
		}
	default:
		return errors.Wrap(err, "error getting holder")
	}

	if record.Balance > math.MaxUint64-amount {
		return ErrArithmeticOverflow
	}
	record.Balance += amount

	return errors.Wrap(m.data.SaveHolder(ctx, record), "error saving holder")
}

func (m *Market) debitHolder(ctx context.Context, owner string, amount uint64) error {
	record, err := m.data.GetHolder(ctx, m.record.Address, owner)
	if err == holder.ErrNotFound {
		return ErrInsufficientBalance
	} else if err != nil {
		return errors.Wrap(err, "error getting holder")
	}

	if record.Balance < amount {
		return ErrInsufficientBalance
	}
	record.Balance -= amount

	return errors.Wrap(m.data.SaveHolder(ctx, record), "error saving holder")
}

// onCommitError reloads the market when another writer got there first, so
// the next call operates on the latest persisted state. Must be called with
// the write lock held.
func (m *Market) onCommitError(ctx context.Context, log *logrus.Entry, err error) {
	if !errors.Is(err, market_data.ErrStaleVersion) {
		log.WithError(err).Warn("failure committing market update")
		return
	}

	latest, err := m.data.GetMarketByAddress(ctx, m.record.Address)
	if err != nil {
		log.WithError(err).Warn("failure reloading stale market")
		return
	}
	m.record = latest
	log.Info("reloaded stale market")
}

func accrueFees(record *market_data.Record, fee uint64) error {
	if fee == 0 {
		return nil
	}

	var toCreator uint64
	if fee > math.MaxUint64/curve.MaxFeeBps {
		toCreator = fee / curve.MaxFeeBps * uint64(record.CreatorFeeShareBps)
	} else {
		toCreator = fee * uint64(record.CreatorFeeShareBps) / curve.MaxFeeBps
	}
	toBeneficiary := fee - toCreator

	if record.CreatorFeesAccrued > math.MaxUint64-toCreator {
		return ErrArithmeticOverflow
	}
	record.CreatorFeesAccrued += toCreator
	if record.BeneficiaryFeesAccrued > math.MaxUint64-toBeneficiary {
		return ErrArithmeticOverflow
	}
	record.BeneficiaryFeesAccrued += toBeneficiary
	if record.CreatorFeesAccrued > math.MaxUint64-record.BeneficiaryFeesAccrued {
		return ErrArithmeticOverflow
	}

	return nil
}
