package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/models"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// ErrAccountNumberTaken is returned by Create when another writer claimed
// the same account number first.
var ErrAccountNumberTaken = errors.New("account number already taken")

const accountColumns = `
	id, user_id, account_number, balance, status, registered_at, unregistered_at, created_at, updated_at`

// AccountWriteRepository handles all state-mutating operations for accounts.
// It operates exclusively against the PostgreSQL write store (source of truth).
type AccountWriteRepository struct {
	db *sql.DB
}

func NewAccountWriteRepository(db *sql.DB) *AccountWriteRepository {
	return &AccountWriteRepository{db: db}
}

func (r *AccountWriteRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (user_id, account_number, balance, status, registered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		account.UserID, account.AccountNumber, account.Balance, account.Status,
		account.RegisteredAt, account.CreatedAt, account.UpdatedAt,
	).Scan(&account.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAccountNumberTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountWriteRepository) FindByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE account_number = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, accountNumber))
	if err == sql.ErrNoRows {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// FindMostRecentlyCreated returns nil when no account exists yet.
func (r *AccountWriteRepository) FindMostRecentlyCreated(ctx context.Context) (*models.Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts ORDER BY id DESC LIMIT 1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest account: %w", err)
	}
	return account, nil
}

// CountByUserID counts every account the user ever opened, closed ones
// included.
func (r *AccountWriteRepository) CountByUserID(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

// Close moves an ACTIVE account to CLOSED. Callers hold the account lock.
func (r *AccountWriteRepository) Close(ctx context.Context, accountNumber string, at time.Time) error {
	query := `
		UPDATE accounts
		SET status = $2, unregistered_at = $3, updated_at = $3
		WHERE account_number = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, accountNumber, models.AccountStatusClosed, at, models.AccountStatusActive)
	if err != nil {
		return fmt.Errorf("failed to close account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.ErrAccountAlreadyClosed
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var unregisteredAt sql.NullTime
	if err := row.Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &account.Balance, &account.Status,
		&account.RegisteredAt, &unregisteredAt, &account.CreatedAt, &account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if unregisteredAt.Valid {
		account.UnregisteredAt = &unregisteredAt.Time
	}
	return &account, nil
}
