package memory

import (
	"context"
	"sync"
	"time"

	"orderflow/internal/core/numerator"
)

// Numerator issues document numbers from in-process counters. Numbers are
// not returned on rollback, matching the cached strategy of the database
// implementation.
type Numerator struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewNumerator creates a Numerator with all counters at zero.
func NewNumerator() *Numerator {
	return &Numerator{counters: make(map[string]int64)}
}

// GetNextNumber implements numerator.Generator.
func (n *Numerator) GetNextNumber(ctx context.Context, cfg numerator.Config, opts *numerator.Options, period time.Time) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := cfg.Key(period)
	n.counters[key]++
	return cfg.Format(period, n.counters[key]), nil
}

// SetNextNumber implements numerator.Generator.
func (n *Numerator) SetNextNumber(ctx context.Context, cfg numerator.Config, period time.Time, value int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counters[cfg.Key(period)] = value
	return nil
}

var _ numerator.Generator = (*Numerator)(nil)
