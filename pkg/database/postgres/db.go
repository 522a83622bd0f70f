package pg

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type txContextKey struct{}
type txIsolationContextKey struct{}

var (
	ErrAlreadyInTx = errors.New("already executing in existing db tx")
	ErrNotInTx     = errors.New("not executing in existing db tx")
)

// ExecuteTxWithinCtx runs fn inside a new transaction carried by the context
// passed to fn. The transaction commits when fn succeeds and rolls back
// otherwise. Nested calls fail with ErrAlreadyInTx.
func ExecuteTxWithinCtx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(context.Context) error) error {
	isolation = withDefaultIsolation(isolation)

	if ctx.Value(txContextKey{}) != nil {
		return ErrAlreadyInTx
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, txContextKey{}, tx)
	ctx = context.WithValue(ctx, txIsolationContextKey{}, isolation)

	if err := fn(ctx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Wrap(rollbackErr, "failed to rollback transaction")
		}
		return err
	}
	return tx.Commit()
}

// ExecuteInTx runs fn within the transaction started by ExecuteTxWithinCtx if
// ctx carries one, or within a new transaction owned by this call otherwise.
// Only the owner commits or rolls back.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	isolation = withDefaultIsolation(isolation)

	tx, err := getTxFromCtx(ctx, isolation)
	if err != nil && err != ErrNotInTx {
		return err
	}

	owned := err == ErrNotInTx
	if owned {
		tx, err = db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
		if err != nil {
			return err
		}
	}

	if err := fn(tx); err != nil {
		if owned {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				return errors.Wrap(rollbackErr, "failed to rollback transaction")
			}
		}
		return err
	}

	if owned {
		return tx.Commit()
	}
	return nil
}

// InTx reports whether ctx carries a transaction started by ExecuteTxWithinCtx
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txContextKey{}).(*sqlx.Tx)
	return ok
}

func withDefaultIsolation(isolation sql.IsolationLevel) sql.IsolationLevel {
	if isolation == sql.LevelDefault {
		return sql.LevelReadCommitted
	}
	return isolation
}

func getTxFromCtx(ctx context.Context, desired sql.IsolationLevel) (*sqlx.Tx, error) {
	raw := ctx.Value(txContextKey{})
	if raw == nil {
		return nil, ErrNotInTx
	}

	tx, ok := raw.(*sqlx.Tx)
	if !ok {
		return nil, errors.New("invalid type for tx")
	}

	current, ok := ctx.Value(txIsolationContextKey{}).(sql.IsolationLevel)
	if !ok {
		return nil, errors.New("tx isolation level missing from context")
	}

	if current < desired {
		return nil, errors.Errorf("tx isolation level %s is weaker than %s", current, desired)
	}

	return tx, nil
}
