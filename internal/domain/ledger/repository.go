// Package ledger provides the location ledger: an append-only log of signed
// stock movements per product and location, plus the running-balance index
// that answers on-hand queries.
package ledger

import (
	"context"
	"time"

	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

// Repository defines persistence for ledger entries and the balance index.
type Repository interface {
	// LockBalances locks the given keys until the surrounding transaction
	// ends and returns their current balances (zero for unseen keys).
	// Keys are locked in BalanceKey.Less order.
	LockBalances(ctx context.Context, keys []entity.BalanceKey) (map[entity.BalanceKey]types.Quantity, error)

	// AppendEntries stores entries, assigns their Sequence and applies
	// their deltas to the balance index in the same transaction.
	AppendEntries(ctx context.Context, entries []entity.LedgerEntry) error

	// GetBalance returns the indexed balance for one key.
	GetBalance(ctx context.Context, key entity.BalanceKey) (types.Quantity, error)

	// GetBalancesByProduct returns indexed balances across locations.
	GetBalancesByProduct(ctx context.Context, productID id.ID) ([]entity.LocationBalance, error)

	// GetAllBalances returns every indexed balance (reports, verification).
	GetAllBalances(ctx context.Context) ([]entity.LocationBalance, error)

	// ListEntries returns entries matching filter, newest first.
	ListEntries(ctx context.Context, filter EntryFilter) ([]entity.LedgerEntry, error)

	// ScanEntries streams every entry in Sequence order.
	ScanEntries(ctx context.Context, fn func(entity.LedgerEntry) error) error

	// ReplaceBalances swaps the whole balance index (rebuild).
	ReplaceBalances(ctx context.Context, balances []entity.LocationBalance) error
}

// EntryFilter for movement history queries.
type EntryFilter struct {
	ProductID *id.ID
	Location  *entity.Location
	RefID     *id.ID
	Kind      *entity.MovementKind
	FromDate  *time.Time
	ToDate    *time.Time
	Limit     int
	Offset    int
}
