package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	seckillerrors "github.com/mirkobrombin/go-seckill/v1/errors"
	"github.com/mirkobrombin/go-seckill/v1/seckill"
)

// Result is the response envelope of every endpoint.
type Result struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func ok(data any) Result { return Result{Success: true, Data: data} }

func fail(msg string) Result { return Result{ErrorMsg: msg} }

func (s *server) seckillVoucher(c *gin.Context) {
	voucherID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || voucherID <= 0 {
		c.JSON(http.StatusBadRequest, fail("invalid voucher id"))
		return
	}
	userID := c.GetInt64(keyUserID)

	orderID, err := s.svc.Seckill(c.Request.Context(), userID, voucherID)
	if err != nil {
		status, msg := code(err)
		if status >= http.StatusInternalServerError {
			slog.Error("seckill failed", "user", userID, "voucher", voucherID, "error", err)
		}
		c.JSON(status, fail(msg))
		return
	}
	// Order ids exceed the integer range of JavaScript clients.
	c.JSON(http.StatusOK, ok(strconv.FormatInt(orderID, 10)))
}

func code(err error) (int, string) {
	switch {
	case errors.Is(err, seckill.ErrVoucherNotFound):
		return http.StatusNotFound, "voucher not found"
	case errors.Is(err, seckill.ErrNotStarted):
		return http.StatusConflict, "sale has not started"
	case errors.Is(err, seckill.ErrEnded):
		return http.StatusConflict, "sale has ended"
	case errors.Is(err, seckill.ErrOutOfStock):
		return http.StatusConflict, "out of stock"
	case errors.Is(err, seckill.ErrDuplicateRequest):
		return http.StatusConflict, "order already in progress"
	case errors.Is(err, seckill.ErrAlreadyOrdered):
		return http.StatusConflict, "one order per user"
	case errors.Is(err, seckillerrors.ErrStoreUnavailable),
		errors.Is(err, seckillerrors.ErrTimeout),
		errors.Is(err, seckillerrors.ErrConnectionClosed):
		return http.StatusServiceUnavailable, "service busy, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
