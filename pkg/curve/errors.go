package curve

import (
	"errors"
)

var (
	ErrDivisionByZero     = errors.New("division by zero")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrInvalidRatio       = errors.New("invalid reserve ratio")
)
