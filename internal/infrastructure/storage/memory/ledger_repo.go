package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	corelock "orderflow/internal/core/lock"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/ledger"
	"orderflow/internal/infrastructure/lock"
)

// LedgerRepo keeps the ledger log and its balance index in memory.
type LedgerRepo struct {
	mu       sync.RWMutex
	entries  []entity.LedgerEntry
	balances map[entity.BalanceKey]*entity.LocationBalance
	seq      int64

	keys     *lock.KeyedMutex
	lockWait time.Duration
}

// NewLedgerRepo creates an empty ledger.
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{
		balances: make(map[entity.BalanceKey]*entity.LocationBalance),
		keys:     lock.NewKeyedMutex(),
		lockWait: 5 * time.Second,
	}
}

// LockBalances implements ledger.Repository.
func (r *LedgerRepo) LockBalances(ctx context.Context, keys []entity.BalanceKey) (map[entity.BalanceKey]types.Quantity, error) {
	for _, k := range keys {
		name := "balance:" + k.String()
		err := holdUntilEnd(ctx, name, func(ctx context.Context) (func(), error) {
			waitCtx, cancel := context.WithTimeout(ctx, r.lockWait)
			defer cancel()
			release, err := r.keys.Acquire(waitCtx, name)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, corelock.NewBusyError(name)
			}
			return release, nil
		})
		if err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[entity.BalanceKey]types.Quantity, len(keys))
	for _, k := range keys {
		if b, ok := r.balances[k]; ok {
			out[k] = b.Quantity
		} else {
			out[k] = 0
		}
	}
	return out, nil
}

// AppendEntries implements ledger.Repository.
func (r *LedgerRepo) AppendEntries(ctx context.Context, entries []entity.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	appended := make(map[id.ID]struct{}, len(entries))
	for i := range entries {
		r.seq++
		entries[i].Sequence = r.seq
		e := entries[i]
		r.entries = append(r.entries, e)
		appended[e.ID] = struct{}{}

		b, ok := r.balances[e.Key()]
		if !ok {
			b = &entity.LocationBalance{ProductID: e.ProductID, Location: e.Location}
			r.balances[e.Key()] = b
		}
		b.Quantity += e.Delta
		b.LastSequence = e.Sequence
		b.LastMovementAt = e.CreatedAt
	}

	undone := make([]entity.LedgerEntry, len(entries))
	copy(undone, entries)
	onRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		kept := r.entries[:0]
		for _, e := range r.entries {
			if _, ok := appended[e.ID]; !ok {
				kept = append(kept, e)
			}
		}
		r.entries = kept
		for _, e := range undone {
			if b, ok := r.balances[e.Key()]; ok {
				b.Quantity -= e.Delta
			}
		}
	})
	return nil
}

// GetBalance implements ledger.Repository.
func (r *LedgerRepo) GetBalance(ctx context.Context, key entity.BalanceKey) (types.Quantity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.balances[key]; ok {
		return b.Quantity, nil
	}
	return 0, nil
}

// GetBalancesByProduct implements ledger.Repository.
func (r *LedgerRepo) GetBalancesByProduct(ctx context.Context, productID id.ID) ([]entity.LocationBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.LocationBalance
	for _, loc := range entity.AllLocations {
		if b, ok := r.balances[entity.BalanceKey{ProductID: productID, Location: loc}]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

// GetAllBalances implements ledger.Repository.
func (r *LedgerRepo) GetAllBalances(ctx context.Context) ([]entity.LocationBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.LocationBalance, 0, len(r.balances))
	for _, b := range r.balances {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return entity.BalanceKey{ProductID: out[i].ProductID, Location: out[i].Location}.
			Less(entity.BalanceKey{ProductID: out[j].ProductID, Location: out[j].Location})
	})
	return out, nil
}

// ListEntries implements ledger.Repository.
func (r *LedgerRepo) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]entity.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []entity.LedgerEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if filter.ProductID != nil && e.ProductID != *filter.ProductID {
			continue
		}
		if filter.Location != nil && e.Location != *filter.Location {
			continue
		}
		if filter.RefID != nil && e.RefID != *filter.RefID {
			continue
		}
		if filter.Kind != nil && e.Kind != *filter.Kind {
			continue
		}
		if filter.FromDate != nil && e.CreatedAt.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && e.CreatedAt.After(*filter.ToDate) {
			continue
		}
		matched = append(matched, e)
	}

	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], nil
}

// ScanEntries implements ledger.Repository.
func (r *LedgerRepo) ScanEntries(ctx context.Context, fn func(entity.LedgerEntry) error) error {
	r.mu.RLock()
	snapshot := make([]entity.LedgerEntry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.RUnlock()

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceBalances implements ledger.Repository.
func (r *LedgerRepo) ReplaceBalances(ctx context.Context, balances []entity.LocationBalance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.balances
	next := make(map[entity.BalanceKey]*entity.LocationBalance, len(balances))
	for i := range balances {
		b := balances[i]
		next[entity.BalanceKey{ProductID: b.ProductID, Location: b.Location}] = &b
	}
	r.balances = next

	onRollback(ctx, func() {
		r.mu.Lock()
		r.balances = previous
		r.mu.Unlock()
	})
	return nil
}

// corrupt overwrites one indexed balance. Test helper for drift detection.
func (r *LedgerRepo) corrupt(key entity.BalanceKey, q types.Quantity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[key]
	if !ok {
		b = &entity.LocationBalance{ProductID: key.ProductID, Location: key.Location}
		r.balances[key] = b
	}
	b.Quantity = q
}

var _ ledger.Repository = (*LedgerRepo)(nil)
