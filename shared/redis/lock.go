package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultLockKeyPrefix = "ACLK:"
	DefaultLockTTL       = time.Second

	lockMarker = "lock"
)

// AccountLock is the distributed lock client keyed by account number. Every
// service instance pointing at the same Redis sees the same markers, so at
// most one of them holds a given account at a time.
//
// Acquire never blocks: waiting and retrying is the caller's policy.
type AccountLock struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewAccountLock(client goredis.Cmdable, prefix string, ttl time.Duration) *AccountLock {
	if prefix == "" {
		prefix = DefaultLockKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &AccountLock{client: client, prefix: prefix, ttl: ttl}
}

func (l *AccountLock) Key(accountNumber string) string {
	return l.prefix + accountNumber
}

func (l *AccountLock) TTL() time.Duration {
	return l.ttl
}

// Acquire sets the marker only if none exists. It reports false when another
// holder owns the account; an error means the store was unreachable and
// nothing can be assumed about the lock.
func (l *AccountLock) Acquire(ctx context.Context, accountNumber string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.Key(accountNumber), lockMarker, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.Key(accountNumber), err)
	}
	return ok, nil
}

// Release removes the marker unconditionally and reports whether one was
// present.
func (l *AccountLock) Release(ctx context.Context, accountNumber string) (bool, error) {
	n, err := l.client.Del(ctx, l.Key(accountNumber)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", l.Key(accountNumber), err)
	}
	return n > 0, nil
}

// Extend pushes the marker's expiry another TTL into the future. It reports
// false when the marker has already expired.
func (l *AccountLock) Extend(ctx context.Context, accountNumber string) (bool, error) {
	ok, err := l.client.PExpire(ctx, l.Key(accountNumber), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to extend lock %s: %w", l.Key(accountNumber), err)
	}
	return ok, nil
}
