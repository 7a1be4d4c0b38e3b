package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/middleware"
	"github.com/eaglebank/ledger/shared/models"
	"github.com/eaglebank/ledger/shared/utils"
	"github.com/gin-gonic/gin"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	CreateAccount(context.Context, cqrs.CreateAccountCommand) (*models.AccountView, error)
	CloseAccount(context.Context, cqrs.CloseAccountCommand) (*models.AccountView, error)
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	GetAccount(context.Context, cqrs.GetAccountQuery) (*models.AccountView, error)
	ListAccounts(context.Context, cqrs.ListAccountsQuery) ([]models.AccountView, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

type CreateAccountRequest struct {
	UserID         int64 `json:"userId" validate:"required,min=1"`
	InitialBalance int64 `json:"initialBalance" validate:"min=0,max=1000000000"`
}

type CloseAccountRequest struct {
	UserID int64 `json:"userId" validate:"required,min=1"`
}

type ListAccountsResponse struct {
	Accounts []models.AccountView `json:"accounts"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if !middleware.BindAndValidate(c, &req) {
		return
	}

	view, err := h.commands.CreateAccount(c.Request.Context(), cqrs.CreateAccountCommand{
		UserID:         req.UserID,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
	if err != nil || userID < 1 {
		middleware.RespondWithAppError(c, apperr.New(apperr.CodeInvalidRequest, "userId must be a positive integer"))
		return
	}

	views, err := h.queries.ListAccounts(c.Request.Context(), cqrs.ListAccountsQuery{UserID: userID})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListAccountsResponse{Accounts: views})
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}

	view, err := h.queries.GetAccount(c.Request.Context(), cqrs.GetAccountQuery{AccountNumber: accountNumber})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) CloseAccount(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}

	var req CloseAccountRequest
	if !middleware.BindAndValidate(c, &req) {
		return
	}

	view, err := h.commands.CloseAccount(c.Request.Context(), cqrs.CloseAccountCommand{
		UserID:        req.UserID,
		AccountNumber: accountNumber,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func accountNumberParam(c *gin.Context) (string, bool) {
	accountNumber := c.Param("accountNumber")
	if !utils.ValidateAccountNumber(accountNumber) {
		middleware.RespondWithAppError(c, apperr.New(apperr.CodeInvalidRequest, "account number must be 10 digits"))
		return "", false
	}
	return accountNumber, true
}
