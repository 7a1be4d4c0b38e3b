package models

import "time"

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusClosed AccountStatus = "CLOSED"
)

type TransactionType string

const (
	TransactionTypeUse    TransactionType = "USE"
	TransactionTypeCancel TransactionType = "CANCEL"
)

// TransactionResult is serialised as the single-letter code clients of the
// ledger API already depend on.
type TransactionResult string

const (
	TransactionResultSuccess TransactionResult = "S"
	TransactionResultFailure TransactionResult = "F"
)

// MaxAccountsPerUser caps how many accounts one user may ever open.
const MaxAccountsPerUser = 10

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdTimestamp"`
	UpdatedAt time.Time `json:"updatedTimestamp"`
}

// Account balances are integer minor currency units and never negative.
// The balance is only written while the account-number lock is held.
type Account struct {
	ID             int64         `json:"-"`
	UserID         int64         `json:"userId"`
	AccountNumber  string        `json:"accountNumber"`
	Balance        int64         `json:"balance"`
	Status         AccountStatus `json:"accountStatus"`
	RegisteredAt   time.Time     `json:"registeredAt"`
	UnregisteredAt *time.Time    `json:"unregisteredAt,omitempty"`
	CreatedAt      time.Time     `json:"createdTimestamp"`
	UpdatedAt      time.Time     `json:"updatedTimestamp"`
}

func (a *Account) IsClosed() bool {
	return a.Status == AccountStatusClosed
}

// Transaction is an append-only ledger record. BalanceSnapshot is the
// account balance after the transaction applied, or the untouched balance
// for a FAILURE. OriginalTransactionID is set on CANCEL records only.
type Transaction struct {
	ID                    int64             `json:"-"`
	TransactionID         string            `json:"transactionId"`
	AccountID             int64             `json:"-"`
	AccountNumber         string            `json:"accountNumber"`
	Type                  TransactionType   `json:"transactionType"`
	Result                TransactionResult `json:"transactionResult"`
	Amount                int64             `json:"amount"`
	BalanceSnapshot       int64             `json:"balanceSnapshot"`
	OriginalTransactionID string            `json:"originalTransactionId,omitempty"`
	TransactedAt          time.Time         `json:"transactedAt"`
}
