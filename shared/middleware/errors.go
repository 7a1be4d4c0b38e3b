package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	ErrorCode apperr.Code `json:"errorCode"`
	Message   string      `json:"message"`
}

var statusByCode = map[apperr.Code]int{
	apperr.CodeInvalidRequest:              http.StatusBadRequest,
	apperr.CodeUserNotFound:                http.StatusNotFound,
	apperr.CodeAccountNotFound:             http.StatusNotFound,
	apperr.CodeTransactionNotFound:         http.StatusNotFound,
	apperr.CodeUserAccountMismatch:         http.StatusForbidden,
	apperr.CodeTransactionAccountMismatch:  http.StatusForbidden,
	apperr.CodeAccountAlreadyClosed:        http.StatusUnprocessableEntity,
	apperr.CodeBalanceNotEmpty:             http.StatusUnprocessableEntity,
	apperr.CodeAmountExceedsBalance:        http.StatusUnprocessableEntity,
	apperr.CodeMaxAccountsPerUser:          http.StatusUnprocessableEntity,
	apperr.CodeCancelMustBeFull:            http.StatusUnprocessableEntity,
	apperr.CodeTransactionTooOldToCancel:   http.StatusUnprocessableEntity,
	apperr.CodeTransactionNotCancellable:   http.StatusUnprocessableEntity,
	apperr.CodeTransactionAlreadyCancelled: http.StatusUnprocessableEntity,
	apperr.CodeLockTimeout:                 http.StatusConflict,
	apperr.CodeLockAcquisition:             http.StatusServiceUnavailable,
}

// StatusFor maps a categorized failure to its HTTP status. Uncategorized
// errors are infrastructure faults and map to 500.
func StatusFor(err error) int {
	if status, ok := statusByCode[apperr.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondWithAppError writes the stable error body for err. The cause of an
// uncategorized error is logged, never sent to the client.
func RespondWithAppError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			slog.Error("request failed", "component", "http", "path", c.FullPath(), "code", appErr.Code, "err", err)
		}
		c.JSON(status, ErrorResponse{ErrorCode: appErr.Code, Message: appErr.Message})
		return
	}

	slog.Error("request failed", "component", "http", "path", c.FullPath(), "err", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		ErrorCode: "INTERNAL_SERVER_ERROR",
		Message:   "Internal server error",
	})
}
