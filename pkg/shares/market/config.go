package market

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/dibs-shares/shares-server/pkg/curve"
	"github.com/dibs-shares/shares-server/pkg/shares/common"
)

const (
	maxNameLength   = 64
	maxSymbolLength = 16
)

// Config is the immutable configuration a market is created with
type Config struct {
	Creator     *common.Account
	Beneficiary *common.Account
	Authority   *common.Account

	Name        string
	Symbol      string
	ReserveMint *common.Account

	// ReserveRatio is in parts per million
	ReserveRatio uint32

	// InitialSupply and InitialPrice anchor the curve for the first purchase.
	// InitialPrice is in reserve quarks per whole continuous token.
	InitialSupply uint64
	InitialPrice  uint64

	// MaxSupply caps the continuous supply. Zero means uncapped.
	MaxSupply uint64

	BuyFeeBps          uint16
	SellFeeBps         uint16
	CreatorFeeShareBps uint16
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidConfig, "config is nil")
	}

	for name, account := range map[string]*common.Account{
		"creator":      c.Creator,
		"beneficiary":  c.Beneficiary,
		"reserve mint": c.ReserveMint,
	} {
		if account == nil {
			return errors.Wrapf(ErrInvalidConfig, "%s is required", name)
		}
		if err := account.Validate(); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "invalid %s: %s", name, err)
		}
	}
	if c.Authority != nil {
		if err := c.Authority.Validate(); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "invalid authority: %s", err)
		}
	}

	name := strings.TrimSpace(c.Name)
	if len(name) == 0 || len(name) > maxNameLength {
		return errors.Wrapf(ErrInvalidConfig, "name must be between 1 and %d characters", maxNameLength)
	}
	symbol := strings.TrimSpace(c.Symbol)
	if len(symbol) == 0 || len(symbol) > maxSymbolLength {
		return errors.Wrapf(ErrInvalidConfig, "symbol must be between 1 and %d characters", maxSymbolLength)
	}

	if c.ReserveRatio == 0 || c.ReserveRatio > curve.MaxReserveRatio {
		return errors.Wrapf(ErrInvalidConfig, "reserve ratio %d outside (0, %d]", c.ReserveRatio, curve.MaxReserveRatio)
	}

	if c.InitialSupply == 0 || c.InitialPrice == 0 {
		return errors.Wrap(ErrInvalidConfig, "initial supply and price are required")
	}
	if c.MaxSupply > 0 && c.MaxSupply < c.InitialSupply {
		return errors.Wrap(ErrInvalidConfig, "max supply is below the initial supply")
	}

	if c.BuyFeeBps > curve.MaxFeeBps || c.SellFeeBps > curve.MaxFeeBps || c.CreatorFeeShareBps > curve.MaxFeeBps {
		return errors.Wrapf(ErrInvalidConfig, "basis points cannot exceed %d", curve.MaxFeeBps)
	}
	if c.BuyFeeBps == curve.MaxFeeBps {
		return errors.Wrap(ErrInvalidConfig, "buy fee cannot consume the entire purchase")
	}

	return nil
}
