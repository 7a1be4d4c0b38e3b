package models

import "time"

// UserView is the read-optimised projection of a user.
type UserView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdTimestamp"`
}

// AccountView is the read-optimised projection of an account, cached in
// Redis by the account-service.
type AccountView struct {
	UserID         int64         `json:"userId"`
	AccountNumber  string        `json:"accountNumber"`
	Balance        int64         `json:"balance"`
	Status         AccountStatus `json:"accountStatus"`
	RegisteredAt   time.Time     `json:"registeredAt"`
	UnregisteredAt *time.Time    `json:"unregisteredAt,omitempty"`
}

// TransactionView is returned by the transaction query and cached in Redis.
type TransactionView struct {
	AccountNumber string            `json:"accountNumber"`
	Type          TransactionType   `json:"transactionType"`
	Result        TransactionResult `json:"transactionResult"`
	TransactionID string            `json:"transactionId"`
	Amount        int64             `json:"amount"`
	TransactedAt  time.Time         `json:"transactedAt"`
}

// TransactionOutcome is the response to a use or cancel request.
type TransactionOutcome struct {
	AccountNumber string            `json:"accountNumber"`
	Result        TransactionResult `json:"transactionResult"`
	TransactionID string            `json:"transactionId"`
	Amount        int64             `json:"amount"`
	TransactedAt  time.Time         `json:"transactedAt"`
}

func NewUserView(u *User) *UserView {
	return &UserView{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt}
}

func NewAccountView(a *Account) *AccountView {
	return &AccountView{
		UserID:         a.UserID,
		AccountNumber:  a.AccountNumber,
		Balance:        a.Balance,
		Status:         a.Status,
		RegisteredAt:   a.RegisteredAt,
		UnregisteredAt: a.UnregisteredAt,
	}
}

func NewTransactionView(t *Transaction) *TransactionView {
	return &TransactionView{
		AccountNumber: t.AccountNumber,
		Type:          t.Type,
		Result:        t.Result,
		TransactionID: t.TransactionID,
		Amount:        t.Amount,
		TransactedAt:  t.TransactedAt,
	}
}

func NewTransactionOutcome(t *Transaction) *TransactionOutcome {
	return &TransactionOutcome{
		AccountNumber: t.AccountNumber,
		Result:        t.Result,
		TransactionID: t.TransactionID,
		Amount:        t.Amount,
		TransactedAt:  t.TransactedAt,
	}
}
