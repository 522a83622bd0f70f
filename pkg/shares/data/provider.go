package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/external"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/dibs-shares/shares-server/pkg/database/memory"
	pg "github.com/dibs-shares/shares-server/pkg/database/postgres"
	"github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/shares/data/balance"
	balance_memory_client "github.com/dibs-shares/shares-server/pkg/shares/data/balance/memory"
	balance_postgres_client "github.com/dibs-shares/shares-server/pkg/shares/data/balance/postgres"
	"github.com/dibs-shares/shares-server/pkg/shares/data/holder"
	holder_memory_client "github.com/dibs-shares/shares-server/pkg/shares/data/holder/memory"
	holder_postgres_client "github.com/dibs-shares/shares-server/pkg/shares/data/holder/postgres"
	"github.com/dibs-shares/shares-server/pkg/shares/data/market"
	market_memory_client "github.com/dibs-shares/shares-server/pkg/shares/data/market/memory"
	market_postgres_client "github.com/dibs-shares/shares-server/pkg/shares/data/market/postgres"
)

const (
	maxMarketReqSize = 1024
	maxHolderReqSize = 1024
)

type Provider interface {
	// Markets
	// --------------------------------------------------------------------------------
	SaveMarket(ctx context.Context, record *market.Record) error
	GetMarketByAddress(ctx context.Context, address string) (*market.Record, error)
	GetMarketByCreator(ctx context.Context, creator string) (*market.Record, error)
	GetMarketByIndex(ctx context.Context, index uint64) (*market.Record, error)
	GetAllMarkets(ctx context.Context, opts ...query.Option) ([]*market.Record, error)
	CountMarkets(ctx context.Context) (uint64, error)

	// Holders
	// --------------------------------------------------------------------------------
	SaveHolder(ctx context.Context, record *holder.Record) error
	GetHolder(ctx context.Context, market, owner string) (*holder.Record, error)
	GetAllHoldersByMarket(ctx context.Context, market string, opts ...query.Option) ([]*holder.Record, error)
	CountHoldersByMarket(ctx context.Context, market string) (uint64, error)

	// Reserve balances
	// --------------------------------------------------------------------------------
	SaveBalance(ctx context.Context, record *balance.Record) error
	GetBalance(ctx context.Context, mint, owner string) (*balance.Record, error)

	// ExecuteInTx executes fn with a single transaction that is scoped to the
	// call. Every store write made with the provided context commits or rolls
	// back together. When ctx already carries a transaction, fn joins it and
	// the outermost call decides the outcome.
	ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error
}

type DatabaseProvider struct {
	markets  market.Store
	holders  holder.Store
	balances balance.Store

	db *sqlx.DB
}

func NewDatabaseProvider(dbConfig *pg.Config) (Provider, error) {
	var db *sql.DB
	var err error
	if dbConfig.UseAwsIam {
		awsConfig, err := external.LoadDefaultAWSConfig()
		if err != nil {
			return nil, errors.Wrap(err, "error loading aws config")
		}

		db, err = pg.NewWithAwsIam(
			dbConfig.User,
			dbConfig.Host,
			fmt.Sprint(dbConfig.Port),
			dbConfig.DbName,
			awsConfig,
		)
		if err != nil {
			return nil, err
		}
	} else {
		db, err = pg.NewWithUsernameAndPassword(
			dbConfig.User,
			dbConfig.Password,
			dbConfig.Host,
			fmt.Sprint(dbConfig.Port),
			dbConfig.DbName,
		)
		if err != nil {
			return nil, err
		}
	}

	if dbConfig.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(dbConfig.MaxOpenConnections)
	}
	if dbConfig.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(dbConfig.MaxIdleConnections)
	}
	db.SetConnMaxIdleTime(time.Hour)
	db.SetConnMaxLifetime(time.Hour)

	return &DatabaseProvider{
		markets:  market_postgres_client.New(db),
		holders:  holder_postgres_client.New(db),
		balances: balance_postgres_client.New(db),

		db: sqlx.NewDb(db, "pgx"),
	}, nil
}

func NewTestDatabaseProvider() Provider {
	return &DatabaseProvider{
		markets:  market_memory_client.New(),
		holders:  holder_memory_client.New(),
		balances: balance_memory_client.New(),
	}
}

func (dp *DatabaseProvider) ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error {
	if dp.db == nil {
		if memory.InTx(ctx) {
			return fn(ctx)
		}
		return memory.ExecuteTxWithinCtx(ctx, fn)
	}

	if pg.InTx(ctx) {
		return fn(ctx)
	}
	return pg.ExecuteTxWithinCtx(ctx, dp.db, isolation, fn)
}

// Markets
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) SaveMarket(ctx context.Context, record *market.Record) error {
	return dp.markets.Save(ctx, record)
}
func (dp *DatabaseProvider) GetMarketByAddress(ctx context.Context, address string) (*market.Record, error) {
	return dp.markets.GetByAddress(ctx, address)
}
func (dp *DatabaseProvider) GetMarketByCreator(ctx context.Context, creator string) (*market.Record, error) {
	return dp.markets.GetByCreator(ctx, creator)
}
func (dp *DatabaseProvider) GetMarketByIndex(ctx context.Context, index uint64) (*market.Record, error) {
	return dp.markets.GetByIndex(ctx, index)
}
func (dp *DatabaseProvider) GetAllMarkets(ctx context.Context, opts ...query.Option) ([]*market.Record, error) {
	req, err := query.DefaultPaginationHandlerWithLimit(maxMarketReqSize, opts...)
	if err != nil {
		return nil, err
	}
	return dp.markets.GetAll(ctx, req.Cursor, req.Limit, req.SortBy)
}
func (dp *DatabaseProvider) CountMarkets(ctx context.Context) (uint64, error) {
	return dp.markets.Count(ctx)
}

// Holders
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) SaveHolder(ctx context.Context, record *holder.Record) error {
	return dp.holders.Save(ctx, record)
}
func (dp *DatabaseProvider) GetHolder(ctx context.Context, market, owner string) (*holder.Record, error) {
	return dp.holders.Get(ctx, market, owner)
}
func (dp *DatabaseProvider) GetAllHoldersByMarket(ctx context.Context, market string, opts ...query.Option) ([]*holder.Record, error) {
	req, err := query.DefaultPaginationHandlerWithLimit(maxHolderReqSize, opts...)
	if err != nil {
		return nil, err
	}
	return dp.holders.GetAllByMarket(ctx, market, req.Cursor, req.Limit, req.SortBy)
}
func (dp *DatabaseProvider) CountHoldersByMarket(ctx context.Context, market string) (uint64, error) {
	return dp.holders.CountByMarket(ctx, market)
}

// Reserve balances
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) SaveBalance(ctx context.Context, record *balance.Record) error {
	return dp.balances.Save(ctx, record)
}
func (dp *DatabaseProvider) GetBalance(ctx context.Context, mint, owner string) (*balance.Record, error) {
	return dp.balances.Get(ctx, mint, owner)
}
