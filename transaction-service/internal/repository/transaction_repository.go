package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/models"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const transactionColumns = `
	id, transaction_id, account_id, account_number, transaction_type,
	transaction_result, amount, balance_snapshot, original_transaction_id, transacted_at`

// TransactionWriteRepository handles all state-mutating operations for transactions.
// It operates exclusively against the PostgreSQL write store (source of truth).
type TransactionWriteRepository struct {
	db *sql.DB
}

func NewTransactionWriteRepository(db *sql.DB) *TransactionWriteRepository {
	return &TransactionWriteRepository{db: db}
}

// Create appends a transaction record without touching the account. It is
// used for FAILURE records, which leave the balance as it was.
func (r *TransactionWriteRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if err := insertTransaction(ctx, r.db, txn); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// CreateAndApplyBalance appends txn and sets the account balance in one SQL
// transaction, so a recorded success always matches the stored balance.
func (r *TransactionWriteRepository) CreateAndApplyBalance(ctx context.Context, txn *models.Transaction, newBalance int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertTransaction(ctx, tx, txn); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && txn.Type == models.TransactionTypeCancel {
			return apperr.ErrTransactionAlreadyCancelled
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		newBalance, txn.TransactedAt, txn.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.ErrAccountNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *TransactionWriteRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, transactionID))
	if err == sql.ErrNoRows {
		return nil, apperr.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// HasSuccessfulCancel reports whether the USE transaction originalID has
// already been cancelled.
func (r *TransactionWriteRepository) HasSuccessfulCancel(ctx context.Context, originalID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE original_transaction_id = $1 AND transaction_type = $2 AND transaction_result = $3
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, originalID, models.TransactionTypeCancel, models.TransactionResultSuccess).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check cancellation: %w", err)
	}
	return exists, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			transaction_id, account_id, account_number, transaction_type,
			transaction_result, amount, balance_snapshot, original_transaction_id, transacted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := db.ExecContext(ctx, query,
		txn.TransactionID, txn.AccountID, txn.AccountNumber, txn.Type,
		txn.Result, txn.Amount, txn.BalanceSnapshot,
		nullString(txn.OriginalTransactionID), txn.TransactedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var txn models.Transaction
	var original sql.NullString
	if err := row.Scan(
		&txn.ID, &txn.TransactionID, &txn.AccountID, &txn.AccountNumber, &txn.Type,
		&txn.Result, &txn.Amount, &txn.BalanceSnapshot, &original, &txn.TransactedAt,
	); err != nil {
		return nil, err
	}
	txn.OriginalTransactionID = original.String
	return &txn, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
