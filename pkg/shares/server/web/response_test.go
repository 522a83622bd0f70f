package web

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/dibs-shares/shares-server/pkg/curve"
	"github.com/dibs-shares/shares-server/pkg/shares/data/balance"
	"github.com/dibs-shares/shares-server/pkg/shares/data/holder"
	"github.com/dibs-shares/shares-server/pkg/shares/market"
	"github.com/dibs-shares/shares-server/pkg/shares/reserve"
)

func TestStatusForError(t *testing.T) {
	for _, tc := range []struct {
		err      error
		expected int
	}{
		{market.ErrSelfTrade, http.StatusBadRequest},
		{errors.Wrap(reserve.ErrInvalidTransfer, "self transfer"), http.StatusBadRequest},
		{errors.Wrap(curve.ErrArithmeticOverflow, "amount exceeds storage range"), http.StatusUnprocessableEntity},
		{reserve.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{holder.ErrStaleVersion, http.StatusConflict},
		{errors.Wrap(balance.ErrStaleVersion, "error saving balance"), http.StatusConflict},
		{errors.New("unexpected"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tc.expected, statusForError(tc.err), tc.err.Error())
	}
}
