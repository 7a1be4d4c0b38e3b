package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/models"
)

// AccountRepository reads accounts straight from PostgreSQL. Balances must
// never come from the read-model cache: they are read under the account
// lock and must reflect the last committed write.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	query := `
		SELECT id, user_id, account_number, balance, status, registered_at, unregistered_at, created_at, updated_at
		FROM accounts
		WHERE account_number = $1
	`
	var account models.Account
	var unregisteredAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, accountNumber).Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &account.Balance, &account.Status,
		&account.RegisteredAt, &unregisteredAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if unregisteredAt.Valid {
		account.UnregisteredAt = &unregisteredAt.Time
	}
	return &account, nil
}
