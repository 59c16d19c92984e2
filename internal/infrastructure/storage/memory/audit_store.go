package memory

import (
	"context"
	"sync"

	"orderflow/internal/core/id"
	"orderflow/internal/domain/audit"
)

// AuditStore keeps audit records in memory.
type AuditStore struct {
	mu      sync.RWMutex
	records []audit.Record
}

// NewAuditStore creates an empty store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append implements audit.Store.
func (s *AuditStore) Append(ctx context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)

	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := len(s.records) - 1; i >= 0; i-- {
			if s.records[i].ID == rec.ID {
				s.records = append(s.records[:i], s.records[i+1:]...)
				return
			}
		}
	})
	return nil
}

// History implements audit.Store.
func (s *AuditStore) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.EntityType != entityType || r.EntityID != entityID {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

var _ audit.Store = (*AuditStore)(nil)
