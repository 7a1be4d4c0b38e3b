package handler

import (
	"context"
	"net/http"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/middleware"
	"github.com/eaglebank/ledger/shared/models"
	"github.com/eaglebank/ledger/shared/utils"
	"github.com/gin-gonic/gin"
)

// TransactionCommander defines the write-side operations used by TransactionHandler.
type TransactionCommander interface {
	UseBalance(context.Context, cqrs.UseBalanceCommand) (*models.TransactionOutcome, error)
	CancelBalance(context.Context, cqrs.CancelBalanceCommand) (*models.TransactionOutcome, error)
}

// TransactionQuerier defines the read-side operations used by TransactionHandler.
type TransactionQuerier interface {
	QueryTransaction(context.Context, cqrs.GetTransactionQuery) (*models.TransactionView, error)
}

type TransactionHandler struct {
	commands TransactionCommander
	queries  TransactionQuerier
}

type UseBalanceRequest struct {
	UserID        int64  `json:"userId" validate:"required,min=1"`
	AccountNumber string `json:"accountNumber" validate:"required,len=10,numeric"`
	Amount        int64  `json:"amount" validate:"required,min=10,max=1000000000"`
}

type CancelBalanceRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
	AccountNumber string `json:"accountNumber" validate:"required,len=10,numeric"`
	Amount        int64  `json:"amount" validate:"required,min=10,max=1000000000"`
}

func NewTransactionHandler(commands TransactionCommander, queries TransactionQuerier) *TransactionHandler {
	return &TransactionHandler{commands: commands, queries: queries}
}

func (h *TransactionHandler) UseBalance(c *gin.Context) {
	var req UseBalanceRequest
	if !middleware.BindAndValidate(c, &req) {
		return
	}

	outcome, err := h.commands.UseBalance(c.Request.Context(), cqrs.UseBalanceCommand{
		UserID:        req.UserID,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (h *TransactionHandler) CancelBalance(c *gin.Context) {
	var req CancelBalanceRequest
	if !middleware.BindAndValidate(c, &req) {
		return
	}

	outcome, err := h.commands.CancelBalance(c.Request.Context(), cqrs.CancelBalanceCommand{
		TransactionID: req.TransactionID,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (h *TransactionHandler) QueryTransaction(c *gin.Context) {
	transactionID := c.Param("transactionId")
	if !utils.ValidateTransactionID(transactionID) {
		middleware.RespondWithAppError(c, apperr.ErrTransactionNotFound)
		return
	}

	view, err := h.queries.QueryTransaction(c.Request.Context(), cqrs.GetTransactionQuery{
		TransactionID: transactionID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
