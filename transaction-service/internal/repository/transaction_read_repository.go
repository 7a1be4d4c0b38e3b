package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/models"
	sharedredis "github.com/eaglebank/ledger/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

const transactionViewKeyPrefix = "transaction:view:"

// TransactionReadRepository handles all read operations for transactions.
// It uses Redis as the primary read store, falling back to PostgreSQL on a miss.
type TransactionReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.TransactionView]
}

func NewTransactionReadRepository(db *sql.DB, redisClient goredis.Cmdable) *TransactionReadRepository {
	return &TransactionReadRepository{
		db:    db,
		cache: sharedredis.NewViewCache[models.TransactionView](redisClient, transactionViewKeyPrefix, 0),
	}
}

// GetByTransactionID returns a TransactionView by attempting Redis first, then PostgreSQL.
func (r *TransactionReadRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.TransactionView, error) {
	if view, ok := r.cache.Get(ctx, transactionID); ok {
		return view, nil
	}

	query := `SELECT` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`
	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, transactionID))
	if err == sql.ErrNoRows {
		return nil, apperr.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	view := models.NewTransactionView(txn)
	r.CacheTransactionView(ctx, view)
	return view, nil
}

// CacheTransactionView stores the read model for a transaction in Redis.
// Called by the command service right after every recorded attempt.
func (r *TransactionReadRepository) CacheTransactionView(ctx context.Context, view *models.TransactionView) {
	r.cache.Set(ctx, view.TransactionID, view)
}
