package holder

import (
	"context"
	"errors"

	"github.com/dibs-shares/shares-server/pkg/database/query"
)

var (
	ErrNotFound     = errors.New("holder not found")
	ErrStaleVersion = errors.New("holder version is stale")
)

type Store interface {
	// Save creates or updates a holder balance
	Save(ctx context.Context, record *Record) error

	// Get gets the balance record for an owner in a market
	Get(ctx context.Context, market, owner string) (*Record, error)

	// GetAllByMarket gets a page of holders for a market
	GetAllByMarket(ctx context.Context, market string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// CountByMarket returns the number of owners that have ever held a market's token
	CountByMarket(ctx context.Context, market string) (uint64, error)
}
