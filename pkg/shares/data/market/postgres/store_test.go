package postgres

import (
	"database/sql"
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/sirupsen/logrus"

	"github.com/dibs-shares/shares-server/pkg/shares/data/market"
	"github.com/dibs-shares/shares-server/pkg/shares/data/market/tests"

	postgrestest "github.com/dibs-shares/shares-server/pkg/database/postgres/test"

	_ "github.com/jackc/pgx/v4/stdlib"
)

const (
	// Used for testing ONLY, the table and migrations are external to this repository
	tableCreate = `
		CREATE TABLE shares__core_market (
			id SERIAL NOT NULL PRIMARY KEY,

			address TEXT NOT NULL UNIQUE,
			market_index BIGINT NOT NULL UNIQUE,
			creator TEXT NOT NULL UNIQUE,
			beneficiary TEXT NOT NULL,
			authority TEXT NOT NULL,

			name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			reserve_mint TEXT NOT NULL,

			reserve_ratio BIGINT NOT NULL CHECK (reserve_ratio > 0 AND reserve_ratio <= 1000000),
			initial_supply BIGINT NOT NULL,
			initial_price BIGINT NOT NULL,
			max_supply BIGINT NOT NULL,

			buy_fee_bps INTEGER NOT NULL,
			sell_fee_bps INTEGER NOT NULL,
			creator_fee_share_bps INTEGER NOT NULL,

			continuous_supply BIGINT NOT NULL CHECK (continuous_supply >= 0),
			reserve_balance BIGINT NOT NULL CHECK (reserve_balance >= 0),
			creator_fees_accrued BIGINT NOT NULL CHECK (creator_fees_accrued >= 0),
			beneficiary_fees_accrued BIGINT NOT NULL CHECK (beneficiary_fees_accrued >= 0),

			is_paused BOOL NOT NULL,

			version INTEGER NOT NULL,

			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
	`

	// Used for testing ONLY, the table and migrations are external to this repository
	tableDestroy = `
		DROP TABLE shares__core_market;
	`
)

var (
	testStore market.Store
	teardown  func()
)

func TestMain(m *testing.M) {
	log := logrus.StandardLogger()

	testPool, err := dockertest.NewPool("")
	if err != nil {
		log.WithError(err).Error("Error creating docker pool")
		os.Exit(1)
	}

	var cleanUpFunc func()
	db, cleanUpFunc, err := postgrestest.StartPostgresDB(testPool)
	if err != nil {
		log.WithError(err).Error("Error starting postgres image")
		os.Exit(1)
	}
	defer db.Close()

	if err := createTestTables(db); err != nil {
		logrus.StandardLogger().WithError(err).Error("Error creating test tables")
		cleanUpFunc()
		os.Exit(1)
	}

	testStore = New(db)
	teardown = func() {
		if pc := recover(); pc != nil {
			cleanUpFunc()
			panic(pc)
		}

		if err := resetTestTables(db); err != nil {
			logrus.StandardLogger().WithError(err).Error("Error resetting test tables")
			cleanUpFunc()
			os.Exit(1)
		}
	}

	code := m.Run()
	cleanUpFunc()
	os.Exit(code)
}

func TestMarketPostgresStore(t *testing.T) {
	tests.RunTests(t, testStore, teardown)
}

func createTestTables(db *sql.DB) error {
	_, err := db.Exec(tableCreate)
	if err != nil {
		logrus.StandardLogger().WithError(err).Error("could not create test tables")
		return err
	}
	return nil
}

func resetTestTables(db *sql.DB) error {
	_, err := db.Exec(tableDestroy)
	if err != nil {
		logrus.StandardLogger().WithError(err).Error("could not drop test tables")
		return err
	}

	return createTestTables(db)
}
