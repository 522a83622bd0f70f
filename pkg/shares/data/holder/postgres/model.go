package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/dibs-shares/shares-server/pkg/database/postgres"
	q "github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/shares/data/holder"
)

const (
	tableName = "shares__core_holder"
)

type model struct {
	Id        sql.NullInt64 `db:"id"`
	Market    string        `db:"market"`
	Owner     string        `db:"owner"`
	Balance   int64         `db:"balance"`
	Version   int64         `db:"version"`
	CreatedAt time.Time     `db:"created_at"`
}

func toModel(obj *holder.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:        sql.NullInt64{Int64: int64(obj.Id), Valid: true},
		Market:    obj.Market,
		Owner:     obj.Owner,
		Balance:   int64(obj.Balance),
		Version:   int64(obj.Version),
		CreatedAt: obj.CreatedAt,
	}, nil
}

func fromModel(m *model) *holder.Record {
	return &holder.Record{
		Id:        uint64(m.Id.Int64),
		Market:    m.Market,
		Owner:     m.Owner,
		Balance:   uint64(m.Balance),
		Version:   uint64(m.Version),
		CreatedAt: m.CreatedAt,
	}
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(market, owner, balance, version, created_at)
			VALUES ($1, $2, $3, $4 + 1, $5)

			ON CONFLICT (market, owner)
			DO UPDATE
				SET balance = $3, version = ` + tableName + `.version + 1
				WHERE ` + tableName + `.market = $1 AND ` + tableName + `.owner = $2 AND ` + tableName + `.version = $4

			RETURNING
				id, market, owner, balance, version, created_at`

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Market,
			m.Owner,
			m.Balance,
			m.Version,
			m.CreatedAt,
		).StructScan(m)
		if err != nil {
			return pgutil.CheckNoRows(err, holder.ErrStaleVersion)
		}
		return nil
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, market, owner string) (*model, error) {
	res := &model{}

	query := `SELECT id, market, owner, balance, version, created_at
		FROM ` + tableName + `
		WHERE market = $1 AND owner = $2
		LIMIT 1`

	err := db.GetContext(ctx, res, query, market, owner)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, holder.ErrNotFound)
	}
	return res, nil
}

func dbGetAllByMarket(ctx context.Context, db *sqlx.DB, market string, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT id, market, owner, balance, version, created_at
		FROM ` + tableName + `
		WHERE (market = $1)`

	opts := []interface{}{market}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, holder.ErrNotFound)
	}

	if len(res) == 0 {
		return nil, holder.ErrNotFound
	}
	return res, nil
}

func dbCountByMarket(ctx context.Context, db *sqlx.DB, market string) (uint64, error) {
	var res uint64

	query := `SELECT COUNT(*) FROM ` + tableName + ` WHERE market = $1`

	err := db.GetContext(ctx, &res, query, market)
	if err != nil {
		return 0, err
	}
	return res, nil
}
