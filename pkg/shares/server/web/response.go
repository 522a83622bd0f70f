package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/dibs-shares/shares-server/pkg/shares/data/balance"
	"github.com/dibs-shares/shares-server/pkg/shares/data/holder"
	market_data "github.com/dibs-shares/shares-server/pkg/shares/data/market"
	"github.com/dibs-shares/shares-server/pkg/shares/market"
	"github.com/dibs-shares/shares-server/pkg/shares/registry"
	"github.com/dibs-shares/shares-server/pkg/shares/reserve"
)

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, apiResponse{
		Code:    status,
		Message: message,
	})
}

// failWithError maps a domain error to its HTTP status. Unexpected errors are
// logged and reported without their details.
func (s *Server) failWithError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.FullPath()).Warn("unexpected failure handling request")
		fail(c, status, "internal error")
		return
	}
	fail(c, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateCreator),
		errors.Is(err, market_data.ErrStaleVersion),
		errors.Is(err, holder.ErrStaleVersion),
		errors.Is(err, balance.ErrStaleVersion):
		return http.StatusConflict
	case errors.Is(err, market.ErrInvalidConfig),
		errors.Is(err, market.ErrZeroAmount),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInvalidRatio),
		errors.Is(err, market.ErrSelfTrade),
		errors.Is(err, reserve.ErrInvalidTransfer):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrInsufficientBalance),
		errors.Is(err, market.ErrSlippageExceeded),
		errors.Is(err, market.ErrUndefined),
		errors.Is(err, market.ErrNoFeesAccrued),
		errors.Is(err, market.ErrArithmeticOverflow),
		errors.Is(err, market.ErrDivisionByZero),
		errors.Is(err, reserve.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, market.ErrPaused):
		return http.StatusLocked
	case errors.Is(err, market.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
