package balance

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/dibs-shares/shares-server/pkg/curve"
)

// Record is the reserve asset balance of an account for a single mint
type Record struct {
	Id uint64

	Mint  string
	Owner string

	Quarks uint64

	Version uint64

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

func (r *Record) Validate() error {
	if len(r.Mint) == 0 {
		return errors.New("mint is required")
	}

	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}

	if r.Quarks > math.MaxInt64 {
		return errors.Wrap(curve.ErrArithmeticOverflow, "quarks exceed storage range")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id:            r.Id,
		Mint:          r.Mint,
		Owner:         r.Owner,
		Quarks:        r.Quarks,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	*dst = r.Clone()
}
