// Package lock defines the mutual-exclusion contract used to serialize
// mutations of a single record across goroutines and processes.
// Implementations live in infrastructure/lock.
package lock

import (
	"context"
	"sort"

	"orderflow/internal/core/apperror"
	"orderflow/pkg/logger"
)

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker obtains named locks. Obtain waits a bounded time and then fails
// with CONCURRENT_MODIFICATION; it never blocks indefinitely.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

// WithLock runs fn while holding key. The result is fn's result: by the
// time Release runs the work is already committed, so a release failure
// is logged and left to the lock TTL.
func WithLock(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) error {
	held, err := l.Obtain(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := held.Release(context.WithoutCancel(ctx)); rerr != nil {
			logger.Warn(ctx, "lock release failed", "key", key, "error", rerr)
		}
	}()
	return fn(ctx)
}

// WithLocks runs fn while holding every key. Keys are obtained in sorted
// order so two callers with overlapping sets cannot deadlock.
func WithLocks(ctx context.Context, l Locker, keys []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(sorted) {
			return fn(ctx)
		}
		if i > 0 && sorted[i] == sorted[i-1] {
			return run(ctx, i+1)
		}
		return WithLock(ctx, l, sorted[i], func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}

// NewBusyError is returned by lockers when the wait budget is exhausted.
func NewBusyError(key string) *apperror.AppError {
	return apperror.NewConcurrentModification("lock", key).
		WithDetail("reason", "lock is held by another operation")
}
