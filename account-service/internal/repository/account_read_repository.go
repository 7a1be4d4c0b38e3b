package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/models"
	sharedredis "github.com/eaglebank/ledger/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

const accountViewKeyPrefix = "account:view:"

// AccountReadRepository handles all read operations for accounts.
// It treats Redis as the primary read store (the CQRS read model) and falls
// back to PostgreSQL transparently, warming the cache on every cold read.
type AccountReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.AccountView]
}

func NewAccountReadRepository(db *sql.DB, redisClient goredis.Cmdable, ttl time.Duration) *AccountReadRepository {
	return &AccountReadRepository{
		db:    db,
		cache: sharedredis.NewViewCache[models.AccountView](redisClient, accountViewKeyPrefix, ttl),
	}
}

// GetByAccountNumber returns an AccountView, trying Redis first then PostgreSQL.
func (r *AccountReadRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.AccountView, error) {
	if view, ok := r.cache.Get(ctx, accountNumber); ok {
		return view, nil
	}

	query := `SELECT` + accountColumns + ` FROM accounts WHERE account_number = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, accountNumber))
	if err == sql.ErrNoRows {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	view := models.NewAccountView(account)
	r.CacheAccountView(ctx, view)
	return view, nil
}

// ListByUserID returns all AccountViews for the given user from PostgreSQL,
// oldest first.
func (r *AccountReadRepository) ListByUserID(ctx context.Context, userID int64) ([]models.AccountView, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	views := []models.AccountView{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		views = append(views, *models.NewAccountView(account))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return views, nil
}

// CacheAccountView stores or refreshes the Redis read model for an account.
// Called by the command service after every mutation to keep the read model current.
func (r *AccountReadRepository) CacheAccountView(ctx context.Context, view *models.AccountView) {
	r.cache.Set(ctx, view.AccountNumber, view)
}

func (r *AccountReadRepository) EvictAccountView(ctx context.Context, accountNumber string) {
	r.cache.Delete(ctx, accountNumber)
}
