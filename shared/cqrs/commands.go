package cqrs

type CreateUserCommand struct {
	Name string
}

type CreateAccountCommand struct {
	UserID         int64
	InitialBalance int64
}

type CloseAccountCommand struct {
	UserID        int64
	AccountNumber string
}

type UseBalanceCommand struct {
	UserID        int64
	AccountNumber string
	Amount        int64
}

type CancelBalanceCommand struct {
	TransactionID string
	AccountNumber string
	Amount        int64
}

// LockKey functions select the account number each locking command is
// serialized on.

func CloseAccountLockKey(cmd CloseAccountCommand) string { return cmd.AccountNumber }

func UseBalanceLockKey(cmd UseBalanceCommand) string { return cmd.AccountNumber }

func CancelBalanceLockKey(cmd CancelBalanceCommand) string { return cmd.AccountNumber }
