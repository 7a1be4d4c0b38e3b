// Package lock serializes account-mutating operations across every service
// instance. A Guard acquires the distributed lock for an account number,
// runs the operation, and releases the lock on every exit path.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eaglebank/ledger/shared/apperr"
)

const (
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultMaxWait       = 5 * time.Second
)

// Locker is a non-blocking mutual-exclusion store keyed by account number.
// Acquire reports false when the key is held elsewhere; an error means the
// store could not be reached.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) (bool, error)
}

// Extender is implemented by lockers whose markers expire and can be
// pushed forward while the holder is still working.
type Extender interface {
	Extend(ctx context.Context, key string) (bool, error)
}

type Options struct {
	// RetryInterval is the pause between acquire attempts on a busy key.
	RetryInterval time.Duration
	// MaxWait bounds the total time spent waiting for a busy key. Zero
	// waits until the caller's context is done.
	MaxWait time.Duration
	// RenewInterval enables lease renewal when positive and the locker
	// implements Extender. It must be shorter than the marker expiry.
	RenewInterval time.Duration
}

type Guard struct {
	locker Locker
	opts   Options
}

func NewGuard(locker Locker, opts Options) *Guard {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.MaxWait < 0 {
		opts.MaxWait = 0
	}
	return &Guard{locker: locker, opts: opts}
}

// Do runs fn while holding the lock for key. Errors returned by fn pass
// through untouched; the guard only adds ErrLockAcquisition and
// ErrLockTimeout, and only when fn never ran.
func (g *Guard) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := g.acquire(ctx, key); err != nil {
		return err
	}

	// Release must still reach the store when the request is cancelled
	// mid-operation, otherwise the account stays locked until expiry.
	holdCtx := context.WithoutCancel(ctx)
	stopRenewal := g.startRenewal(holdCtx, key)
	defer func() {
		stopRenewal()
		g.release(holdCtx, key)
	}()

	return fn(ctx)
}

// Wrap decorates op so every call runs under the lock of the account number
// that keyFn extracts from the request.
func Wrap[Req, Res any](g *Guard, keyFn func(Req) string, op func(context.Context, Req) (Res, error)) func(context.Context, Req) (Res, error) {
	return func(ctx context.Context, req Req) (Res, error) {
		var res Res
		err := g.Do(ctx, keyFn(req), func(ctx context.Context) error {
			var opErr error
			res, opErr = op(ctx, req)
			return opErr
		})
		return res, err
	}
}

func (g *Guard) acquire(ctx context.Context, key string) error {
	start := time.Now()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperr.Wrap(apperr.CodeLockTimeout, "gave up waiting for account "+key, err)
		}

		ok, err := g.locker.Acquire(ctx, key)
		if err != nil {
			return apperr.Wrap(apperr.CodeLockAcquisition, "failed to acquire lock for account "+key, err)
		}
		if ok {
			if attempt > 1 {
				slog.Info("lock acquired after waiting", "component", "lock", "account_number", key, "attempts", attempt, "waited", time.Since(start))
			}
			return nil
		}
		if attempt == 1 || attempt%10 == 0 {
			slog.Warn("account is in use", "component", "lock", "account_number", key, "attempt", attempt)
		}

		wait := g.opts.RetryInterval
		if g.opts.MaxWait > 0 {
			remaining := g.opts.MaxWait - time.Since(start)
			if remaining <= 0 {
				return &apperr.Error{
					Code:    apperr.CodeLockTimeout,
					Message: fmt.Sprintf("account %s still locked after %s", key, g.opts.MaxWait),
				}
			}
			if remaining < wait {
				wait = remaining
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperr.Wrap(apperr.CodeLockTimeout, "gave up waiting for account "+key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (g *Guard) release(ctx context.Context, key string) {
	released, err := g.locker.Release(ctx, key)
	if err != nil {
		slog.Error("release failed; lock will expire on its own", "component", "lock", "account_number", key, "err", err)
		return
	}
	if !released {
		slog.Warn("lock expired before release", "component", "lock", "account_number", key)
	}
}

// startRenewal returns a stop function that blocks until the renewal
// goroutine has exited, so no extension can land after release.
func (g *Guard) startRenewal(ctx context.Context, key string) func() {
	ext, ok := g.locker.(Extender)
	if !ok || g.opts.RenewInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(g.opts.RenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				extended, err := ext.Extend(ctx, key)
				if err != nil {
					slog.Warn("lease renewal failed", "component", "lock", "account_number", key, "err", err)
					continue
				}
				if !extended {
					slog.Error("lock expired while held", "component", "lock", "account_number", key)
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
