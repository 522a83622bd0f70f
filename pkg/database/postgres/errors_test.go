package pg

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCheckNoRows(t *testing.T) {
	errNotFound := errors.New("not found")

	assert.Equal(t, errNotFound, CheckNoRows(sql.ErrNoRows, errNotFound))
	assert.Equal(t, errNotFound, CheckNoRows(errors.Wrap(sql.ErrNoRows, "query"), errNotFound))
	assert.Nil(t, CheckNoRows(nil, errNotFound))

	other := errors.New("connection reset")
	assert.Equal(t, other, CheckNoRows(other, errNotFound))
}

func TestCheckUniqueViolation(t *testing.T) {
	errExists := errors.New("exists")

	violation := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	assert.Equal(t, errExists, CheckUniqueViolation(violation, errExists))
	assert.Equal(t, errExists, CheckUniqueViolation(errors.Wrap(violation, "insert"), errExists))

	check := &pgconn.PgError{Code: pgerrcode.CheckViolation}
	assert.Equal(t, error(check), CheckUniqueViolation(check, errExists))
	assert.Nil(t, CheckUniqueViolation(nil, errExists))
}
