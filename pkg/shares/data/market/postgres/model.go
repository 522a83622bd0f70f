package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/dibs-shares/shares-server/pkg/database/postgres"
	q "github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/shares/data/market"
)

const (
	tableName = "shares__core_market"

	allColumns = `id, address, market_index, creator, beneficiary, authority, name, symbol, reserve_mint, reserve_ratio, initial_supply, initial_price, max_supply, buy_fee_bps, sell_fee_bps, creator_fee_share_bps, continuous_supply, reserve_balance, creator_fees_accrued, beneficiary_fees_accrued, is_paused, version, created_at`
)

type model struct {
	Id                     sql.NullInt64 `db:"id"`
	Address                string        `db:"address"`
	Index                  int64         `db:"market_index"`
	Creator                string        `db:"creator"`
	Beneficiary            string        `db:"beneficiary"`
	Authority              string        `db:"authority"`
	Name                   string        `db:"name"`
	Symbol                 string        `db:"symbol"`
	ReserveMint            string        `db:"reserve_mint"`
	ReserveRatio           int64         `db:"reserve_ratio"`
	InitialSupply          int64         `db:"initial_supply"`
	InitialPrice           int64         `db:"initial_price"`
	MaxSupply              int64         `db:"max_supply"`
	BuyFeeBps              int32         `db:"buy_fee_bps"`
	SellFeeBps             int32         `db:"sell_fee_bps"`
	CreatorFeeShareBps     int32         `db:"creator_fee_share_bps"`
	ContinuousSupply       int64         `db:"continuous_supply"`
	ReserveBalance         int64         `db:"reserve_balance"`
	CreatorFeesAccrued     int64         `db:"creator_fees_accrued"`
	BeneficiaryFeesAccrued int64         `db:"beneficiary_fees_accrued"`
	IsPaused               bool          `db:"is_paused"`
	Version                int64         `db:"version"`
	CreatedAt              time.Time     `db:"created_at"`
}

func toModel(obj *market.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:                     sql.NullInt64{Int64: int64(obj.Id), Valid: true},
		Address:                obj.Address,
		Index:                  int64(obj.Index),
		Creator:                obj.Creator,
		Beneficiary:            obj.Beneficiary,
		Authority:              obj.Authority,
		Name:                   obj.Name,
		Symbol:                 obj.Symbol,
		ReserveMint:            obj.ReserveMint,
		ReserveRatio:           int64(obj.ReserveRatio),
		InitialSupply:          int64(obj.InitialSupply),
		InitialPrice:           int64(obj.InitialPrice),
		MaxSupply:              int64(obj.MaxSupply),
		BuyFeeBps:              int32(obj.BuyFeeBps),
		SellFeeBps:             int32(obj.SellFeeBps),
		CreatorFeeShareBps:     int32(obj.CreatorFeeShareBps),
		ContinuousSupply:       int64(obj.ContinuousSupply),
		ReserveBalance:         int64(obj.ReserveBalance),
		CreatorFeesAccrued:     int64(obj.CreatorFeesAccrued),
		BeneficiaryFeesAccrued: int64(obj.BeneficiaryFeesAccrued),
		IsPaused:               obj.IsPaused,
		Version:                int64(obj.Version),
		CreatedAt:              obj.CreatedAt,
	}, nil
}

func fromModel(m *model) *market.Record {
	return &market.Record{
		Id:                     uint64(m.Id.Int64),
		Address:                m.Address,
		Index:                  uint64(m.Index),
		Creator:                m.Creator,
		Beneficiary:            m.Beneficiary,
		Authority:              m.Authority,
		Name:                   m.Name,
		Symbol:                 m.Symbol,
		ReserveMint:            m.ReserveMint,
		ReserveRatio:           uint32(m.ReserveRatio),
		InitialSupply:          uint64(m.InitialSupply),
		InitialPrice:           uint64(m.InitialPrice),
		MaxSupply:              uint64(m.MaxSupply),
		BuyFeeBps:              uint16(m.BuyFeeBps),
		SellFeeBps:             uint16(m.SellFeeBps),
		CreatorFeeShareBps:     uint16(m.CreatorFeeShareBps),
		ContinuousSupply:       uint64(m.ContinuousSupply),
		ReserveBalance:         uint64(m.ReserveBalance),
		CreatorFeesAccrued:     uint64(m.CreatorFeesAccrued),
		BeneficiaryFeesAccrued: uint64(m.BeneficiaryFeesAccrued),
		IsPaused:               m.IsPaused,
		Version:                uint64(m.Version),
		CreatedAt:              m.CreatedAt,
	}
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, market_index, creator, beneficiary, authority, name, symbol, reserve_mint, reserve_ratio, initial_supply, initial_price, max_supply, buy_fee_bps, sell_fee_bps, creator_fee_share_bps, continuous_supply, reserve_balance, creator_fees_accrued, beneficiary_fees_accrued, is_paused, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21 + 1, $22)

			ON CONFLICT (address)
			DO UPDATE
				SET continuous_supply = $16, reserve_balance = $17, creator_fees_accrued = $18, beneficiary_fees_accrued = $19, is_paused = $20, version = ` + tableName + `.version + 1
				WHERE ` + tableName + `.address = $1 AND ` + tableName + `.version = $21

			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.Index,
			m.Creator,
			m.Beneficiary,
			m.Authority,
			m.Name,
			m.Symbol,
			m.ReserveMint,
			m.ReserveRatio,
			m.InitialSupply,
			m.InitialPrice,
			m.MaxSupply,
			m.BuyFeeBps,
			m.SellFeeBps,
			m.CreatorFeeShareBps,
			m.ContinuousSupply,
			m.ReserveBalance,
			m.CreatorFeesAccrued,
			m.BeneficiaryFeesAccrued,
			m.IsPaused,
			m.Version,
			m.CreatedAt,
		).StructScan(m)
		if err != nil {
			err = pgutil.CheckUniqueViolation(err, market.ErrExists)
			return pgutil.CheckNoRows(err, market.ErrStaleVersion)
		}
		return nil
	})
}

func dbGetBy(ctx context.Context, db *sqlx.DB, column string, value any) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE ` + column + ` = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, value)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, market.ErrNotFound)
	}
	return res, nil
}

func dbGetAll(ctx context.Context, db *sqlx.DB, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE (TRUE)`

	opts := []interface{}{}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, market.ErrNotFound)
	}

	if len(res) == 0 {
		return nil, market.ErrNotFound
	}
	return res, nil
}

func dbCount(ctx context.Context, db *sqlx.DB) (uint64, error) {
	var res uint64

	query := `SELECT COUNT(*) FROM ` + tableName

	err := db.GetContext(ctx, &res, query)
	if err != nil {
		return 0, err
	}
	return res, nil
}
