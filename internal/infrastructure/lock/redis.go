package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	corelock "orderflow/internal/core/lock"
)

// RedisLocker serializes work across server replicas.
type RedisLocker struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// RedisLockerConfig configures RedisLocker.
type RedisLockerConfig struct {
	// Prefix namespaces keys, e.g. "orderflow:lock:"
	Prefix string
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// Wait is the total time Obtain keeps retrying.
	Wait time.Duration
	// RetryInterval between attempts.
	RetryInterval time.Duration
}

// NewRedisLocker creates a RedisLocker on top of an existing client.
func NewRedisLocker(rdb redis.UniversalClient, cfg RedisLockerConfig) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		wait:   cfg.Wait,
		retry:  cfg.RetryInterval,
	}
}

type redisLock struct {
	lock *redislock.Lock
}

func (l *redisLock) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// TTL expired before release; the next holder already owns it.
		return nil
	}
	return err
}

// Obtain implements core/lock.Locker.
func (l *RedisLocker) Obtain(ctx context.Context, key string) (corelock.Lock, error) {
	attempts := int(l.wait / l.retry)
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.retry), attempts),
	}

	held, err := l.client.Obtain(ctx, l.prefix+key, l.ttl, opts)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, corelock.NewBusyError(key)
		}
		return nil, fmt.Errorf("obtain redis lock %s: %w", key, err)
	}
	return &redisLock{lock: held}, nil
}

var _ corelock.Locker = (*RedisLocker)(nil)
