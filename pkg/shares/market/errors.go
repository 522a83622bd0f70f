package market

import (
	"errors"

	"github.com/dibs-shares/shares-server/pkg/curve"
)

var (
	ErrInvalidConfig       = errors.New("invalid market config")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient continuous token balance")
	ErrSlippageExceeded    = errors.New("trade result is below the minimum accepted")
	ErrUndefined           = errors.New("spot price is undefined for an empty market")
	ErrPaused              = errors.New("market is paused")
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrNoFeesAccrued       = errors.New("no fees accrued")
	ErrSelfTrade           = errors.New("market account cannot trade in its own market")
)

// Curve errors surface unchanged from trades
var (
	ErrDivisionByZero     = curve.ErrDivisionByZero
	ErrInvalidAmount      = curve.ErrInvalidAmount
	ErrArithmeticOverflow = curve.ErrArithmeticOverflow
	ErrInvalidRatio       = curve.ErrInvalidRatio
)
