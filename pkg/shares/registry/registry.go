package registry

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dibs-shares/shares-server/pkg/cache"
	"github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/lock"
	"github.com/dibs-shares/shares-server/pkg/metrics"
	"github.com/dibs-shares/shares-server/pkg/retry"
	"github.com/dibs-shares/shares-server/pkg/shares/common"
	"github.com/dibs-shares/shares-server/pkg/shares/data"
	market_data "github.com/dibs-shares/shares-server/pkg/shares/data/market"
	"github.com/dibs-shares/shares-server/pkg/shares/market"
	"github.com/dibs-shares/shares-server/pkg/shares/reserve"
	shares_sync "github.com/dibs-shares/shares-server/pkg/sync"
)

const (
	metricsStructName = "registry.Registry"

	marketCreatedEventName = "ContinuousTokenMarketCreated"
	loadDurationMetricName = "Registry/LoadDuration"

	loadLockStripes = 256

	creatorCacheBudget = 100_000

	creationUnlockTimeout = 5 * time.Second

	maxIndexAttempts = 3
)

// Summary is a point-in-time view of a market as persisted
type Summary struct {
	Cursor query.Cursor

	Index   uint64
	Address string
	Creator string

	Name         string
	Symbol       string
	ReserveRatio uint32

	ContinuousSupply uint64
	ReserveBalance   uint64

	IsPaused  bool
	CreatedAt time.Time
}

// Registry creates markets and owns the only write path for new ones. Each
// creator gets at most one market, and markets are never removed.
type Registry struct {
	log        *logrus.Entry
	conf       *conf
	data       data.Provider
	transferer reserve.Transferer
	authorizer market.Authorizer

	address *common.Account

	createMu     sync.Mutex
	creationLock lock.DistributedLock

	// Creator to market address. Entries never go stale since markets are
	// never removed or reassigned.
	creators cache.Cache[string]

	loadLocks *shares_sync.StripedLock
	marketsMu sync.RWMutex
	markets   map[string]*market.Market
}

// Option configures a Registry
type Option func(*Registry)

// WithCreationLock serializes market creation across every process sharing
// the same store
func WithCreationLock(l lock.DistributedLock) Option {
	return func(r *Registry) {
		r.creationLock = l
	}
}

func New(
	ctx context.Context,
	data data.Provider,
	transferer reserve.Transferer,
	authorizer market.Authorizer,
	configProvider ConfigProvider,
	opts ...Option,
) (*Registry, error) {
	conf := configProvider()

	address, err := common.NewAccountFromPublicKeyString(conf.address.Get(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "invalid registry address")
	}

	r := &Registry{
		log:        logrus.StandardLogger().WithField("type", "registry"),
		conf:       conf,
		data:       data,
		transferer: transferer,
		authorizer: authorizer,
		address:    address,
		creators:   cache.New[string]("market_creators", creatorCacheBudget),
		loadLocks:  shares_sync.NewStripedLock(loadLockStripes),
		markets:    make(map[string]*market.Market),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewConfig returns a market config for a creator populated with the
// registry's configured defaults
func (r *Registry) NewConfig(ctx context.Context, creator *common.Account, name, symbol string) (*market.Config, error) {
	mint, err := common.NewAccountFromPublicKeyString(r.conf.reserveMint.Get(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "invalid reserve mint")
	}

	beneficiary := creator
	if platform := r.conf.platformBeneficiary.Get(ctx); len(platform) > 0 {
		beneficiary, err = common.NewAccountFromPublicKeyString(platform)
		if err != nil {
			return nil, errors.Wrap(err, "invalid platform beneficiary")
		}
	}

	return &market.Config{
		Creator:            creator,
		Beneficiary:        beneficiary,
		Name:               name,
		Symbol:             symbol,
		ReserveMint:        mint,
		ReserveRatio:       uint32(r.conf.reserveRatio.Get(ctx)),
		InitialSupply:      r.conf.initialSupply.Get(ctx),
		InitialPrice:       r.conf.initialPrice.Get(ctx),
		MaxSupply:          r.conf.maxSupply.Get(ctx),
		BuyFeeBps:          uint16(r.conf.buyFeeBps.Get(ctx)),
		SellFeeBps:         uint16(r.conf.sellFeeBps.Get(ctx)),
		CreatorFeeShareBps: uint16(r.conf.creatorFeeShareBps.Get(ctx)),
	}, nil
}

// CreateMarket validates config and creates the creator's market at the next
// index
func (r *Registry) CreateMarket(ctx context.Context, config *market.Config) (*market.Market, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "CreateMarket")
	defer tracer.End()

	m, err := r.createMarket(ctx, config)
	tracer.OnError(err)
	return m, err
}

func (r *Registry) createMarket(ctx context.Context, config *market.Config) (*market.Market, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	creator := config.Creator.String()
	log := r.log.WithFields(logrus.Fields{
		"method":  "CreateMarket",
		"creator": creator,
	})

	address, _, err := common.GetMarketAddress(r.address, config.Creator)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving market address")
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	if r.creationLock != nil {
		lostCh, err := r.creationLock.Acquire(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "error acquiring market creation lock")
		}
		defer func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), creationUnlockTimeout)
			defer cancel()

			if err := r.creationLock.Unlock(unlockCtx); err != nil {
				log.WithError(err).Warn("failure releasing market creation lock")
			}
		}()

		select {
		case <-lostCh:
			return nil, errors.New("market creation lock lost")
		default:
		}
	}

	var record *market_data.Record
	_, err = retry.Retry(
		func() error {
			record, err = r.saveMarket(ctx, address, config)
			return err
		},
		retry.RetriableErrors(errIndexTaken),
		retry.Limit(maxIndexAttempts),
	)
	if err != nil {
		if err != ErrDuplicateCreator {
			log.WithError(err).Warn("failure saving market")
		}
		return nil, err
	}

	m := market.New(r.data, r.transferer, r.authorizer, record)

	r.marketsMu.Lock()
	r.markets[record.Address] = m
	r.marketsMu.Unlock()

	r.rememberCreator(creator, record.Address)

	log.WithFields(logrus.Fields{
		"market": record.Address,
		"index":  record.Index,
	}).Info("market created")

	metrics.RecordEvent(ctx, marketCreatedEventName, map[string]interface{}{
		"market":        record.Address,
		"index":         record.Index,
		"creator":       creator,
		"reserve_ratio": record.ReserveRatio,
	})

	return m, nil
}

// saveMarket persists a new market at the next free index. Another process
// may claim the same index first, which yields errIndexTaken.
func (r *Registry) saveMarket(ctx context.Context, address *common.Account, config *market.Config) (*market_data.Record, error) {
	creator := config.Creator.String()

	_, err := r.data.GetMarketByCreator(ctx, creator)
	if err == nil {
		return nil, ErrDuplicateCreator
	} else if err != market_data.ErrNotFound {
		return nil, errors.Wrap(err, "error checking for existing market")
	}

	index, err := r.data.CountMarkets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error counting markets")
	}

	record := &market_data.Record{
		Address:     address.String(),
		Index:       index,
		Creator:     creator,
		Beneficiary: config.Beneficiary.String(),

		Name:        config.Name,
		Symbol:      config.Symbol,
		ReserveMint: config.ReserveMint.String(),

		ReserveRatio:  config.ReserveRatio,
		InitialSupply: config.InitialSupply,
		InitialPrice:  config.InitialPrice,
		MaxSupply:     config.MaxSupply,

		BuyFeeBps:          config.BuyFeeBps,
		SellFeeBps:         config.SellFeeBps,
		CreatorFeeShareBps: config.CreatorFeeShareBps,

		CreatedAt: time.Now(),
	}
	if config.Authority != nil {
		record.Authority = config.Authority.String()
	}

	err = r.data.SaveMarket(ctx, record)
	if err == market_data.ErrExists {
		if _, err := r.data.GetMarketByCreator(ctx, creator); err == nil {
			return nil, ErrDuplicateCreator
		}
		return nil, errIndexTaken
	} else if err != nil {
		return nil, errors.Wrap(err, "error saving market")
	}
	return record, nil
}

func (r *Registry) GetMarketByAddress(ctx context.Context, address string) (*market.Market, error) {
	return r.getOrLoad(ctx, address, nil)
}

func (r *Registry) GetMarketByCreator(ctx context.Context, creator *common.Account) (*market.Market, error) {
	if creator == nil {
		return nil, ErrNotFound
	}

	if address, ok := r.creators.Retrieve(creator.String()); ok {
		return r.getOrLoad(ctx, address, nil)
	}

	record, err := r.data.GetMarketByCreator(ctx, creator.String())
	if err == market_data.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting market by creator")
	}

	r.rememberCreator(record.Creator, record.Address)
	return r.getOrLoad(ctx, record.Address, record)
}

func (r *Registry) GetMarketByIndex(ctx context.Context, index uint64) (*market.Market, error) {
	record, err := r.data.GetMarketByIndex(ctx, index)
	if err == market_data.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting market by index")
	}
	return r.getOrLoad(ctx, record.Address, record)
}

// Count returns the number of markets ever created
func (r *Registry) Count(ctx context.Context) (uint64, error) {
	return r.data.CountMarkets(ctx)
}

// ListMarkets returns up to limit markets created after the cursor, in
// creation order
func (r *Registry) ListMarkets(ctx context.Context, cursor query.Cursor, limit uint64) ([]*Summary, error) {
	opts := []query.Option{
		query.WithDirection(query.Ascending),
		query.WithLimit(limit),
	}
	if len(cursor) > 0 {
		opts = append(opts, query.WithCursor(cursor))
	}

	records, err := r.data.GetAllMarkets(ctx, opts...)
	if err == market_data.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting markets")
	}

	res := make([]*Summary, len(records))
	for i, record := range records {
		res[i] = toSummary(record)
	}
	return res, nil
}

// Markets lazily enumerates every market in creation order, fetching a page
// at a time. Each range over the returned sequence starts from the first
// market.
func (r *Registry) Markets(ctx context.Context) iter.Seq2[*Summary, error] {
	return func(yield func(*Summary, error) bool) {
		pageSize := r.conf.pageSize.Get(ctx)
		if pageSize == 0 {
			pageSize = defaultPageSize
		}

		var cursor query.Cursor
		for {
			page, err := r.ListMarkets(ctx, cursor, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, summary := range page {
				if !yield(summary, nil) {
					return
				}
			}

			if uint64(len(page)) < pageSize {
				return
			}
			cursor = page[len(page)-1].Cursor
		}
	}
}

// Load brings every persisted market into memory and returns how many
// markets the registry holds
func (r *Registry) Load(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDuration(ctx, loadDurationMetricName, time.Since(start))
	}()

	var count int
	for summary, err := range r.Markets(ctx) {
		if err != nil {
			return count, err
		}

		if _, err := r.getOrLoad(ctx, summary.Address, nil); err != nil {
			return count, err
		}
		count++
	}

	r.log.WithField("count", count).Info("markets loaded")
	return count, nil
}

// getOrLoad returns the single in-memory instance of a market. Loads for the
// same address are serialized so concurrent callers share one instance.
func (r *Registry) getOrLoad(ctx context.Context, address string, record *market_data.Record) (*market.Market, error) {
	if m, ok := r.cached(address); ok {
		return m, nil
	}

	lock := r.loadLocks.Get([]byte(address))
	lock.Lock()
	defer lock.Unlock()

	if m, ok := r.cached(address); ok {
		return m, nil
	}

	if record == nil {
		var err error
		record, err = r.data.GetMarketByAddress(ctx, address)
		if err == market_data.ErrNotFound {
			return nil, ErrNotFound
		} else if err != nil {
			return nil, errors.Wrap(err, "error getting market by address")
		}
	}

	m := market.New(r.data, r.transferer, r.authorizer, record)

	r.marketsMu.Lock()
	defer r.marketsMu.Unlock()

	// CreateMarket publishes without the load lock
	if existing, ok := r.markets[address]; ok {
		return existing, nil
	}
	r.markets[address] = m
	return m, nil
}

func (r *Registry) rememberCreator(creator, address string) {
	// A concurrent lookup may have inserted it first
	_ = r.creators.Insert(creator, address, 1)
}

func (r *Registry) cached(address string) (*market.Market, bool) {
	r.marketsMu.RLock()
	defer r.marketsMu.RUnlock()

	m, ok := r.markets[address]
	return m, ok
}

func toSummary(record *market_data.Record) *Summary {
	return &Summary{
		Cursor: query.ToCursor(record.Id),

		Index:   record.Index,
		Address: record.Address,
		Creator: record.Creator,

		Name:         record.Name,
		Symbol:       record.Symbol,
		ReserveRatio: record.ReserveRatio,

		ContinuousSupply: record.ContinuousSupply,
		ReserveBalance:   record.ReserveBalance,

		IsPaused:  record.IsPaused,
		CreatedAt: record.CreatedAt,
	}
}
