// Package tx abstracts transactions so domain services run unchanged on the
// PostgreSQL and in-memory backends.
package tx

import (
	"context"
)

// Manager runs units of work atomically. A document transition, the ledger
// entries it posts, its audit record and its outbox event all commit or roll
// back together.
type Manager interface {
	// RunInTransaction commits when fn returns nil and rolls back otherwise.
	// A call made with a transaction already in ctx joins it.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
