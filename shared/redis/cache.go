package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ViewCache is a JSON-backed Redis cache for read model projections of type
// T. A zero TTL stores keys without expiry.
type ViewCache[T any] struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewViewCache[T any](client goredis.Cmdable, prefix string, ttl time.Duration) *ViewCache[T] {
	return &ViewCache[T]{client: client, prefix: prefix, ttl: ttl}
}

// Get returns (nil, false) on a miss, on a Redis error and on a value that
// no longer decodes into T.
func (c *ViewCache[T]) Get(ctx context.Context, id string) (*T, bool) {
	data, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		if err != goredis.Nil {
			slog.Warn("read failed", "component", "cache", "key", c.prefix+id, "err", err)
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Warn("decode failed", "component", "cache", "key", c.prefix+id, "err", err)
		return nil, false
	}
	return &v, true
}

// Set errors are logged rather than returned: the database stays the source
// of truth and a missed cache write only costs a slower read.
func (c *ViewCache[T]) Set(ctx context.Context, id string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("encode failed", "component", "cache", "key", c.prefix+id, "err", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+id, data, c.ttl).Err(); err != nil {
		slog.Warn("write failed", "component", "cache", "key", c.prefix+id, "err", err)
	}
}

func (c *ViewCache[T]) Delete(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.prefix+id).Err(); err != nil {
		slog.Warn("delete failed", "component", "cache", "key", c.prefix+id, "err", err)
	}
}
