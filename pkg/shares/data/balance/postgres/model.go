package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/dibs-shares/shares-server/pkg/database/postgres"
	"github.com/dibs-shares/shares-server/pkg/shares/data/balance"
)

const (
	tableName = "shares__core_reservebalance"

	allColumns = `id, mint, owner, quarks, version, created_at, last_updated_at`
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Mint   string `db:"mint"`
	Owner  string `db:"owner"`
	Quarks int64  `db:"quarks"`

	Version int64 `db:"version"`

	CreatedAt     time.Time `db:"created_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func toModel(obj *balance.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:            sql.NullInt64{Int64: int64(obj.Id), Valid: true},
		Mint:          obj.Mint,
		Owner:         obj.Owner,
		Quarks:        int64(obj.Quarks),
		Version:       int64(obj.Version),
		CreatedAt:     obj.CreatedAt,
		LastUpdatedAt: obj.LastUpdatedAt,
	}, nil
}

func fromModel(m *model) *balance.Record {
	return &balance.Record{
		Id:            uint64(m.Id.Int64),
		Mint:          m.Mint,
		Owner:         m.Owner,
		Quarks:        uint64(m.Quarks),
		Version:       uint64(m.Version),
		CreatedAt:     m.CreatedAt,
		LastUpdatedAt: m.LastUpdatedAt,
	}
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(mint, owner, quarks, version, created_at, last_updated_at)
			VALUES ($1, $2, $3, $4 + 1, $5, $6)

			ON CONFLICT (mint, owner)
			DO UPDATE
				SET quarks = $3, version = ` + tableName + `.version + 1, last_updated_at = $6
				WHERE ` + tableName + `.mint = $1 AND ` + tableName + `.owner = $2 AND ` + tableName + `.version = $4

			RETURNING
				` + allColumns

		m.LastUpdatedAt = time.Now().UTC()

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Mint,
			m.Owner,
			m.Quarks,
			m.Version,
			m.CreatedAt.UTC(),
			m.LastUpdatedAt,
		).StructScan(m)
		if err != nil {
			return pgutil.CheckNoRows(err, balance.ErrStaleVersion)
		}
		return nil
	})
}

// dbGet reads through the transaction carried by ctx, if any, and locks the
// row so concurrent transfers touching the same account serialize.
func dbGet(ctx context.Context, db *sqlx.DB, mint, owner string) (*model, error) {
	res := &model{}

	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `SELECT ` + allColumns + `
			FROM ` + tableName + `
			WHERE mint = $1 AND owner = $2
			LIMIT 1
			FOR UPDATE`

		err := tx.GetContext(ctx, res, query, mint, owner)
		return pgutil.CheckNoRows(err, balance.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
