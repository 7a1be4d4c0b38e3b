package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/eaglebank/ledger/shared/models"
	sharedredis "github.com/eaglebank/ledger/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

const userViewKeyPrefix = "user:view:"

// UserReadRepository handles all read operations for users.
// It uses Redis as the primary read store, falling back to PostgreSQL on a miss.
type UserReadRepository struct {
	writes *UserWriteRepository
	cache  *sharedredis.ViewCache[models.UserView]
}

func NewUserReadRepository(db *sql.DB, redisClient goredis.Cmdable, ttl time.Duration) *UserReadRepository {
	return &UserReadRepository{
		writes: NewUserWriteRepository(db),
		cache:  sharedredis.NewViewCache[models.UserView](redisClient, userViewKeyPrefix, ttl),
	}
}

// GetByID returns a UserView from Redis first, then PostgreSQL.
func (r *UserReadRepository) GetByID(ctx context.Context, id int64) (*models.UserView, error) {
	if view, ok := r.cache.Get(ctx, strconv.FormatInt(id, 10)); ok {
		return view, nil
	}

	user, err := r.writes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := models.NewUserView(user)
	r.CacheUserView(ctx, view)
	return view, nil
}

// CacheUserView stores or refreshes the Redis read model for a user.
// Called by the command service after every mutation.
func (r *UserReadRepository) CacheUserView(ctx context.Context, view *models.UserView) {
	r.cache.Set(ctx, strconv.FormatInt(view.ID, 10), view)
}
