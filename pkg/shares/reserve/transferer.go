package reserve

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds indicates the source account cannot cover a transfer
	ErrInsufficientFunds = errors.New("insufficient reserve funds")

	// ErrInvalidTransfer indicates a malformed transfer request
	ErrInvalidTransfer = errors.New("invalid reserve transfer")
)

// Transferer moves reserve asset quarks between accounts. Markets hold their
// reserve and unclaimed fees in an account at the market address.
type Transferer interface {
	// Transfer moves amount quarks of mint from one account to another
	Transfer(ctx context.Context, mint, from, to string, amount uint64) error

	// GetBalance returns the quarks of mint held by an account
	GetBalance(ctx context.Context, mint, account string) (uint64, error)
}
