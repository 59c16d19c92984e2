package memory

import (
	"context"
	"sync"
	"time"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/id"
	corelock "orderflow/internal/core/lock"
	"orderflow/internal/infrastructure/lock"
)

// table is a keyed collection of records with row locks that last until
// the surrounding transaction ends. Stored values are cloned on the way in
// and out so callers never share memory with the store.
type table[T any] struct {
	entity string
	clone  func(T) T

	mu    sync.RWMutex
	rows  map[id.ID]T
	order []id.ID

	rowLocks *lock.KeyedMutex
	lockWait time.Duration
}

func newTable[T any](entity string, clone func(T) T) *table[T] {
	return &table[T]{
		entity:   entity,
		clone:    clone,
		rows:     make(map[id.ID]T),
		rowLocks: lock.NewKeyedMutex(),
		lockWait: 5 * time.Second,
	}
}

func (t *table[T]) get(key id.ID) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[key]
	if !ok {
		var zero T
		return zero, apperror.NewNotFound(t.entity, key.String())
	}
	return t.clone(row), nil
}

// lockRow holds the row lock of key until the transaction finishes.
func (t *table[T]) lockRow(ctx context.Context, key id.ID) error {
	name := t.entity + ":" + key.String()
	return holdUntilEnd(ctx, name, func(ctx context.Context) (func(), error) {
		waitCtx, cancel := context.WithTimeout(ctx, t.lockWait)
		defer cancel()
		release, err := t.rowLocks.Acquire(waitCtx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, corelock.NewBusyError(name)
		}
		return release, nil
	})
}

// getForUpdate locks the row and returns it.
func (t *table[T]) getForUpdate(ctx context.Context, key id.ID) (T, error) {
	if _, err := t.get(key); err != nil {
		return t.zero(), err
	}
	if err := t.lockRow(ctx, key); err != nil {
		return t.zero(), err
	}
	return t.get(key)
}

func (t *table[T]) zero() T {
	var zero T
	return zero
}

// insert adds a row; check runs under the write lock and may reject it.
func (t *table[T]) insert(ctx context.Context, key id.ID, row T, check func(existing []T) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[key]; ok {
		return apperror.NewConflict(t.entity+" already exists").WithDetail("id", key.String())
	}
	if check != nil {
		existing := make([]T, 0, len(t.rows))
		for _, k := range t.order {
			existing = append(existing, t.rows[k])
		}
		if err := check(existing); err != nil {
			return err
		}
	}
	t.rows[key] = t.clone(row)
	t.order = append(t.order, key)

	onRollback(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.removeLocked(key)
	})
	return nil
}

// put replaces an existing row.
func (t *table[T]) put(ctx context.Context, key id.ID, row T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.rows[key]
	if !ok {
		return apperror.NewNotFound(t.entity, key.String())
	}
	t.rows[key] = t.clone(row)

	onRollback(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.rows[key] = prev
	})
	return nil
}

// upsert inserts or replaces a row.
func (t *table[T]) upsert(ctx context.Context, key id.ID, row T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, existed := t.rows[key]
	t.rows[key] = t.clone(row)
	if !existed {
		t.order = append(t.order, key)
	}

	onRollback(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if existed {
			t.rows[key] = prev
		} else {
			t.removeLocked(key)
		}
	})
}

func (t *table[T]) remove(ctx context.Context, key id.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.rows[key]
	if !ok {
		return apperror.NewNotFound(t.entity, key.String())
	}
	pos := t.removeLocked(key)

	onRollback(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.rows[key] = prev
		if pos > len(t.order) {
			pos = len(t.order)
		}
		t.order = append(t.order[:pos], append([]id.ID{key}, t.order[pos:]...)...)
	})
	return nil
}

func (t *table[T]) removeLocked(key id.ID) int {
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return i
		}
	}
	return len(t.order)
}

// scan returns clones of the rows matching keep, in insertion order.
func (t *table[T]) scan(keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0)
	for _, k := range t.order {
		row := t.rows[k]
		if keep == nil || keep(row) {
			out = append(out, t.clone(row))
		}
	}
	return out
}
