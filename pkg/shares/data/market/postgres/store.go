package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/shares/data/market"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) market.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Save(ctx context.Context, record *market.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	err = obj.dbSave(ctx, s.db)
	if err != nil {
		return err
	}

	res := fromModel(obj)
	res.CopyTo(record)

	return nil
}

func (s *store) GetByAddress(ctx context.Context, address string) (*market.Record, error) {
	obj, err := dbGetBy(ctx, s.db, "address", address)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

func (s *store) GetByCreator(ctx context.Context, creator string) (*market.Record, error) {
	obj, err := dbGetBy(ctx, s.db, "creator", creator)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

func (s *store) GetByIndex(ctx context.Context, index uint64) (*market.Record, error) {
	obj, err := dbGetBy(ctx, s.db, "market_index", int64(index))
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

func (s *store) GetAll(ctx context.Context, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*market.Record, error) {
	models, err := dbGetAll(ctx, s.db, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	res := make([]*market.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res, nil
}

func (s *store) Count(ctx context.Context) (uint64, error) {
	return dbCount(ctx, s.db)
}
