package pg

import (
	"database/sql"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
)

// CheckNoRows maps sql.ErrNoRows to outErr
func CheckNoRows(inErr, outErr error) error {
	if errors.Is(inErr, sql.ErrNoRows) {
		return outErr
	}
	return inErr
}

// CheckUniqueViolation maps unique constraint violations to outErr
func CheckUniqueViolation(inErr, outErr error) error {
	var pgErr *pgconn.PgError
	if errors.As(inErr, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return outErr
	}
	return inErr
}
