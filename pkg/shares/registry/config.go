package registry

import (
	"github.com/dibs-shares/shares-server/pkg/config"
	"github.com/dibs-shares/shares-server/pkg/config/env"
	"github.com/dibs-shares/shares-server/pkg/config/memory"
	"github.com/dibs-shares/shares-server/pkg/config/wrapper"
	"github.com/dibs-shares/shares-server/pkg/curve"
)

const (
	envConfigPrefix = "SHARES_REGISTRY_"

	AddressConfigEnvName = envConfigPrefix + "ADDRESS"
	defaultAddress       = ""

	ReserveMintConfigEnvName = envConfigPrefix + "RESERVE_MINT"
	defaultReserveMint       = ""

	PlatformBeneficiaryConfigEnvName = envConfigPrefix + "PLATFORM_BENEFICIARY"
	defaultPlatformBeneficiary       = ""

	ReserveRatioConfigEnvName = envConfigPrefix + "RESERVE_RATIO"
	defaultReserveRatio       = 500_000

	InitialSupplyConfigEnvName = envConfigPrefix + "INITIAL_SUPPLY"
	defaultInitialSupply       = 1_000 * curve.QuarksPerToken

	InitialPriceConfigEnvName = envConfigPrefix + "INITIAL_PRICE"
	defaultInitialPrice       = 1_000_000

	MaxSupplyConfigEnvName = envConfigPrefix + "MAX_SUPPLY"
	defaultMaxSupply       = 0

	BuyFeeBpsConfigEnvName = envConfigPrefix + "BUY_FEE_BPS"
	defaultBuyFeeBps       = 100

	SellFeeBpsConfigEnvName = envConfigPrefix + "SELL_FEE_BPS"
	defaultSellFeeBps       = 100

	CreatorFeeShareBpsConfigEnvName = envConfigPrefix + "CREATOR_FEE_SHARE_BPS"
	defaultCreatorFeeShareBps       = 5_000

	PageSizeConfigEnvName = envConfigPrefix + "PAGE_SIZE"
	defaultPageSize       = 100
)

type conf struct {
	address             config.String
	reserveMint         config.String
	platformBeneficiary config.String
	reserveRatio        config.Uint64
	initialSupply       config.Uint64
	initialPrice        config.Uint64
	maxSupply           config.Uint64
	buyFeeBps           config.Uint64
	sellFeeBps          config.Uint64
	creatorFeeShareBps  config.Uint64
	pageSize            config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			address:             env.NewStringConfig(AddressConfigEnvName, defaultAddress),
			reserveMint:         env.NewStringConfig(ReserveMintConfigEnvName, defaultReserveMint),
			platformBeneficiary: env.NewStringConfig(PlatformBeneficiaryConfigEnvName, defaultPlatformBeneficiary),
			reserveRatio:        env.NewUint64Config(ReserveRatioConfigEnvName, defaultReserveRatio),
			initialSupply:       env.NewUint64Config(InitialSupplyConfigEnvName, defaultInitialSupply),
			initialPrice:        env.NewUint64Config(InitialPriceConfigEnvName, defaultInitialPrice),
			maxSupply:           env.NewUint64Config(MaxSupplyConfigEnvName, defaultMaxSupply),
			buyFeeBps:           env.NewUint64Config(BuyFeeBpsConfigEnvName, defaultBuyFeeBps),
			sellFeeBps:          env.NewUint64Config(SellFeeBpsConfigEnvName, defaultSellFeeBps),
			creatorFeeShareBps:  env.NewUint64Config(CreatorFeeShareBpsConfigEnvName, defaultCreatorFeeShareBps),
			pageSize:            env.NewUint64Config(PageSizeConfigEnvName, defaultPageSize),
		}
	}
}

type testOverrides struct {
	address             string
	reserveMint         string
	platformBeneficiary string
	pageSize            uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	pageSize := overrides.pageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}

	return func() *conf {
		return &conf{
			address:             wrapper.NewStringConfig(memory.NewConfig(overrides.address), defaultAddress),
			reserveMint:         wrapper.NewStringConfig(memory.NewConfig(overrides.reserveMint), defaultReserveMint),
			platformBeneficiary: wrapper.NewStringConfig(memory.NewConfig(overrides.platformBeneficiary), defaultPlatformBeneficiary),
			reserveRatio:        wrapper.NewUint64Config(memory.NewConfig(uint64(defaultReserveRatio)), defaultReserveRatio),
			initialSupply:       wrapper.NewUint64Config(memory.NewConfig(uint64(defaultInitialSupply)), defaultInitialSupply),
			initialPrice:        wrapper.NewUint64Config(memory.NewConfig(uint64(defaultInitialPrice)), defaultInitialPrice),
			maxSupply:           wrapper.NewUint64Config(memory.NewConfig(uint64(defaultMaxSupply)), defaultMaxSupply),
			buyFeeBps:           wrapper.NewUint64Config(memory.NewConfig(uint64(defaultBuyFeeBps)), defaultBuyFeeBps),
			sellFeeBps:          wrapper.NewUint64Config(memory.NewConfig(uint64(defaultSellFeeBps)), defaultSellFeeBps),
			creatorFeeShareBps:  wrapper.NewUint64Config(memory.NewConfig(uint64(defaultCreatorFeeShareBps)), defaultCreatorFeeShareBps),
			pageSize:            wrapper.NewUint64Config(memory.NewConfig(pageSize), pageSize),
		}
	}
}
