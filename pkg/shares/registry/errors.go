package registry

import (
	"errors"

	"github.com/dibs-shares/shares-server/pkg/shares/market"
)

var (
	ErrInvalidConfig    = market.ErrInvalidConfig
	ErrDuplicateCreator = errors.New("creator already has a market")
	ErrNotFound         = errors.New("market not found")

	errIndexTaken = errors.New("market index already taken")
)
