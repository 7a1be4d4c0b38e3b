package cqrs

// ---------- User queries ----------

type GetUserQuery struct {
	UserID int64
}

// ---------- Account queries ----------

// GetAccountQuery fetches a single account by account number.
type GetAccountQuery struct {
	AccountNumber string
}

// ListAccountsQuery fetches all accounts belonging to a user.
type ListAccountsQuery struct {
	UserID int64
}

// ---------- Transaction queries ----------

// GetTransactionQuery fetches a single transaction by its public identifier.
type GetTransactionQuery struct {
	TransactionID string
}
