package holder

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/dibs-shares/shares-server/pkg/curve"
)

// Record is a continuous token balance held by an owner in a market
type Record struct {
	Id uint64

	Market string
	Owner  string

	Balance uint64

	Version uint64

	CreatedAt time.Time
}

func (r *Record) Validate() error {
	if len(r.Market) == 0 {
		return errors.New("market is required")
	}

	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}

	if r.Balance > math.MaxInt64 {
		return errors.Wrap(curve.ErrArithmeticOverflow, "balance exceeds storage range")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id:        r.Id,
		Market:    r.Market,
		Owner:     r.Owner,
		Balance:   r.Balance,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id
	dst.Market = r.Market
	dst.Owner = r.Owner
	dst.Balance = r.Balance
	dst.Version = r.Version
	dst.CreatedAt = r.CreatedAt
}
