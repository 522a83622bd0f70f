package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/shares/data/holder"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) holder.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Save(ctx context.Context, record *holder.Record) error {
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

func (s *store) Get(ctx context.Context, market, owner string) (*holder.Record, error) {
	obj, err := dbGet(ctx, s.db, market, owner)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

func (s *store) GetAllByMarket(ctx context.Context, market string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*holder.Record, error) {
	models, err := dbGetAllByMarket(ctx, s.db, market, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	res := make([]*holder.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res, nil
}

func (s *store) CountByMarket(ctx context.Context, market string) (uint64, error) {
	return dbCountByMarket(ctx, s.db, market)
}
