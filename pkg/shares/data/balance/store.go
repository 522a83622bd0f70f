package balance

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("balance not found")
	ErrStaleVersion = errors.New("balance version is stale")
)

type Store interface {
	// Save creates or updates a balance. ErrStaleVersion is returned when the
	// record's version is behind the stored one.
	Save(ctx context.Context, record *Record) error

	// Get gets the balance of an owner for a mint. Within a transaction the
	// row stays locked until the transaction ends.
	Get(ctx context.Context, mint, owner string) (*Record, error)
}
