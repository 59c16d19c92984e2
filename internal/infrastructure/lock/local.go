// Package lock provides Locker implementations: an in-process keyed mutex
// and a Redis-backed distributed lock.
package lock

import (
	"context"
	"sync"
	"time"

	corelock "orderflow/internal/core/lock"
)

// KeyedMutex is a set of mutexes created on demand per key.
// Entries are reference counted and dropped when unused.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Acquire blocks until key is free or ctx is done. The returned func releases it.
func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				k.drop(key, s)
			})
		}, nil
	case <-ctx.Done():
		k.drop(key, s)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) drop(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// LocalLocker serializes work inside one process.
type LocalLocker struct {
	keys *KeyedMutex
	wait time.Duration
}

// NewLocalLocker creates a LocalLocker that waits at most wait for a key.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{keys: NewKeyedMutex(), wait: wait}
}

type localLock struct {
	release func()
}

func (l *localLock) Release(context.Context) error {
	l.release()
	return nil
}

// Obtain implements core/lock.Locker.
func (l *LocalLocker) Obtain(ctx context.Context, key string) (corelock.Lock, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	release, err := l.keys.Acquire(waitCtx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, corelock.NewBusyError(key)
	}
	return &localLock{release: release}, nil
}

var _ corelock.Locker = (*LocalLocker)(nil)
