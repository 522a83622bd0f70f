package market

import (
	"context"

	"github.com/dibs-shares/shares-server/pkg/shares/common"
	market_data "github.com/dibs-shares/shares-server/pkg/shares/data/market"
)

// Authorizer decides who may administer a market
type Authorizer interface {
	CanAdminister(ctx context.Context, record *market_data.Record, caller *common.Account) bool
}

type authorityAuthorizer struct{}

// NewAuthorityAuthorizer returns an Authorizer that only admits the market's
// authority, falling back to its creator when no authority was configured.
func NewAuthorityAuthorizer() Authorizer {
	return &authorityAuthorizer{}
}

func (a *authorityAuthorizer) CanAdminister(_ context.Context, record *market_data.Record, caller *common.Account) bool {
	if caller == nil {
		return false
	}

	admin := record.Authority
	if len(admin) == 0 {
		admin = record.Creator
	}
	return caller.PublicKey().ToBase58() == admin
}
