package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/dibs-shares/shares-server/pkg/shares/data/balance"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) balance.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Save(ctx context.Context, record *balance.Record) error {
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

func (s *store) Get(ctx context.Context, mint, owner string) (*balance.Record, error) {
	obj, err := dbGet(ctx, s.db, mint, owner)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}
