package market

import (
	"context"
	"errors"

	"github.com/dibs-shares/shares-server/pkg/database/query"
)

var (
	ErrNotFound     = errors.New("market not found")
	ErrExists       = errors.New("market already exists")
	ErrStaleVersion = errors.New("market version is stale")
)

type Store interface {
	// Save creates or updates a market. Only the mutable trading state
	// (supply, reserve, accrued fees and pause flag) changes on update.
	Save(ctx context.Context, record *Record) error

	// GetByAddress gets a market by its address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// GetByCreator gets the market deployed for a creator
	GetByCreator(ctx context.Context, creator string) (*Record, error)

	// GetByIndex gets a market by its registry index
	GetByIndex(ctx context.Context, index uint64) (*Record, error)

	// GetAll gets a page of markets in creation order
	GetAll(ctx context.Context, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// Count returns the number of markets
	Count(ctx context.Context) (uint64, error)
}
