// Package apperr defines the categorized failures returned by the ledger
// services. Every kind carries a stable code so the request layer can map it
// to a distinguishable response without matching on message text.
package apperr

import "errors"

type Code string

const (
	CodeInvalidRequest              Code = "INVALID_REQUEST"
	CodeUserNotFound                Code = "USER_NOT_FOUND"
	CodeAccountNotFound             Code = "ACCOUNT_NOT_FOUND"
	CodeUserAccountMismatch         Code = "USER_ACCOUNT_UNMATCH"
	CodeAccountAlreadyClosed        Code = "ACCOUNT_ALREADY_UNREGISTERED"
	CodeBalanceNotEmpty             Code = "BALANCE_NOT_EMPTY"
	CodeAmountExceedsBalance        Code = "AMOUNT_EXCEED_BALANCE"
	CodeMaxAccountsPerUser          Code = "MAX_ACCOUNT_PER_USER_10"
	CodeTransactionNotFound         Code = "TRANSACTION_NOT_FOUND"
	CodeTransactionAccountMismatch  Code = "TRANSACTION_ACCOUNT_UNMATCH"
	CodeCancelMustBeFull            Code = "CANCEL_MUST_FULLY"
	CodeTransactionTooOldToCancel   Code = "TOO_OLD_ORDER_TO_CANCEL"
	CodeTransactionNotCancellable   Code = "TRANSACTION_NOT_CANCELLABLE"
	CodeTransactionAlreadyCancelled Code = "TRANSACTION_ALREADY_CANCELLED"
	CodeLockAcquisition             Code = "ACCOUNT_TRANSACTION_LOCK"
	CodeLockTimeout                 Code = "LOCK_TIMEOUT"
)

// Error is a categorized failure. Two errors match under errors.Is when
// their codes are equal, so wrapped infrastructure causes do not break
// comparisons against the sentinels below.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns a new error of the given kind carrying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when err
// is not a categorized failure.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var (
	ErrUserNotFound                = New(CodeUserNotFound, "user not found")
	ErrAccountNotFound             = New(CodeAccountNotFound, "account not found")
	ErrUserAccountMismatch         = New(CodeUserAccountMismatch, "account does not belong to user")
	ErrAccountAlreadyClosed        = New(CodeAccountAlreadyClosed, "account is already closed")
	ErrBalanceNotEmpty             = New(CodeBalanceNotEmpty, "account balance is not empty")
	ErrAmountExceedsBalance        = New(CodeAmountExceedsBalance, "amount exceeds balance")
	ErrMaxAccountsPerUser          = New(CodeMaxAccountsPerUser, "user already owns the maximum number of accounts")
	ErrTransactionNotFound         = New(CodeTransactionNotFound, "transaction not found")
	ErrTransactionAccountMismatch  = New(CodeTransactionAccountMismatch, "transaction does not belong to account")
	ErrCancelMustBeFull            = New(CodeCancelMustBeFull, "partial cancellation is not allowed")
	ErrTransactionTooOldToCancel   = New(CodeTransactionTooOldToCancel, "transaction is too old to cancel")
	ErrTransactionNotCancellable   = New(CodeTransactionNotCancellable, "only successful use transactions can be cancelled")
	ErrTransactionAlreadyCancelled = New(CodeTransactionAlreadyCancelled, "transaction is already cancelled")
	ErrLockAcquisition             = New(CodeLockAcquisition, "failed to acquire account lock")
	ErrLockTimeout                 = New(CodeLockTimeout, "timed out waiting for account lock")
)
