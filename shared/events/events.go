package events

import "time"

// Event types
const (
	UserCreated = "user.created"

	AccountCreated = "account.created"
	AccountClosed  = "account.closed"

	TransactionUsed      = "transaction.used"
	TransactionCancelled = "transaction.cancelled"
	TransactionFailed    = "transaction.failed"
	BalanceUpdated       = "balance.updated"
)

// Stream names
const (
	UserEventsStream        = "user.events"
	AccountEventsStream     = "account.events"
	TransactionEventsStream = "transaction.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type UserCreatedEvent struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
}

type AccountCreatedEvent struct {
	AccountNumber  string `json:"accountNumber"`
	UserID         int64  `json:"userId"`
	InitialBalance int64  `json:"initialBalance"`
}

type AccountClosedEvent struct {
	AccountNumber string `json:"accountNumber"`
	UserID        int64  `json:"userId"`
}

// TransactionEvent is published for every recorded transaction, successful
// or not.
type TransactionEvent struct {
	TransactionID         string `json:"transactionId"`
	AccountNumber         string `json:"accountNumber"`
	Type                  string `json:"transactionType"`
	Result                string `json:"transactionResult"`
	Amount                int64  `json:"amount"`
	BalanceSnapshot       int64  `json:"balanceSnapshot"`
	OriginalTransactionID string `json:"originalTransactionId,omitempty"`
}

type BalanceUpdatedEvent struct {
	AccountNumber string `json:"accountNumber"`
	NewBalance    int64  `json:"newBalance"`
	Change        int64  `json:"change"`
	TransactionID string `json:"transactionId"`
}
