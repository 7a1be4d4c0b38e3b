package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/models"
)

// UserRepository resolves account owners against the shared users table.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
