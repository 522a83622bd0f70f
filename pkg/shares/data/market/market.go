package market

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/dibs-shares/shares-server/pkg/curve"
)

const (
	maxReserveRatio = 1_000_000
	maxBps          = 10_000
)

type Record struct {
	Id uint64

	Address     string
	Index       uint64
	Creator     string
	Beneficiary string
	Authority   string

	Name        string
	Symbol      string
	ReserveMint string

	ReserveRatio  uint32
	InitialSupply uint64
	InitialPrice  uint64
	MaxSupply     uint64

	BuyFeeBps          uint16
	SellFeeBps         uint16
	CreatorFeeShareBps uint16

	ContinuousSupply       uint64
	ReserveBalance         uint64
	CreatorFeesAccrued     uint64
	BeneficiaryFeesAccrued uint64

	IsPaused bool

	Version uint64

	CreatedAt time.Time
}

func (r *Record) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Creator) == 0 {
		return errors.New("creator is required")
	}

	if len(r.Beneficiary) == 0 {
		return errors.New("beneficiary is required")
	}

	if len(r.Name) == 0 {
		return errors.New("name is required")
	}

	if len(r.Symbol) == 0 {
		return errors.New("symbol is required")
	}

	if len(r.ReserveMint) == 0 {
		return errors.New("reserve mint is required")
	}

	if r.ReserveRatio == 0 || r.ReserveRatio > maxReserveRatio {
		return errors.New("reserve ratio must be in (0, 1000000]")
	}

	if r.InitialSupply == 0 {
		return errors.New("initial supply is required")
	}

	if r.InitialPrice == 0 {
		return errors.New("initial price is required")
	}

	if r.BuyFeeBps > maxBps || r.SellFeeBps > maxBps || r.CreatorFeeShareBps > maxBps {
		return errors.New("basis points cannot exceed 10000")
	}

	if (r.ContinuousSupply == 0) != (r.ReserveBalance == 0) {
		return errors.New("supply and reserve must be both zero or both non-zero")
	}

	if r.MaxSupply > 0 && r.ContinuousSupply > r.MaxSupply {
		return errors.New("supply exceeds max supply")
	}

	if r.CreatorFeesAccrued > math.MaxUint64-r.BeneficiaryFeesAccrued {
		return errors.New("accrued fees overflow")
	}

	// Amounts are stored in signed 64-bit columns
	for _, v := range []uint64{
		r.Index,
		r.InitialSupply,
		r.InitialPrice,
		r.MaxSupply,
		r.ContinuousSupply,
		r.ReserveBalance,
		r.CreatorFeesAccrued,
		r.BeneficiaryFeesAccrued,
	} {
		if v > math.MaxInt64 {
			return errors.Wrap(curve.ErrArithmeticOverflow, "amount exceeds storage range")
		}
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Address:     r.Address,
		Index:       r.Index,
		Creator:     r.Creator,
		Beneficiary: r.Beneficiary,
		Authority:   r.Authority,

		Name:        r.Name,
		Symbol:      r.Symbol,
		ReserveMint: r.ReserveMint,

		ReserveRatio:  r.ReserveRatio,
		InitialSupply: r.InitialSupply,
		InitialPrice:  r.InitialPrice,
		MaxSupply:     r.MaxSupply,

		BuyFeeBps:          r.BuyFeeBps,
		SellFeeBps:         r.SellFeeBps,
		CreatorFeeShareBps: r.CreatorFeeShareBps,

		ContinuousSupply:       r.ContinuousSupply,
		ReserveBalance:         r.ReserveBalance,
		CreatorFeesAccrued:     r.CreatorFeesAccrued,
		BeneficiaryFeesAccrued: r.BeneficiaryFeesAccrued,

		IsPaused: r.IsPaused,

		Version: r.Version,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	*dst = r.Clone()
}
