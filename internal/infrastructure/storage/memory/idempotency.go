package memory

import (
	"context"
	"sync"
	"time"

	"orderflow/internal/core/apperror"
	"orderflow/internal/domain/idempotency"
)

type idempotencyEntry struct {
	req       idempotency.Request
	status    idempotency.Status
	replay    idempotency.Replay
	updatedAt time.Time
	expiresAt time.Time
}

// IdempotencyStore keeps idempotency keys in memory.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]*idempotencyEntry
	ttl  time.Duration
	now  func() time.Time
}

// NewIdempotencyStore creates an empty store.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		keys: make(map[string]*idempotencyEntry),
		ttl:  ttl,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Acquire implements idempotency.Store.
func (s *IdempotencyStore) Acquire(ctx context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.keys[req.Key]
	if !ok || now.After(e.expiresAt) {
		s.keys[req.Key] = &idempotencyEntry{
			req:       req,
			status:    idempotency.StatusPending,
			updatedAt: now,
			expiresAt: now.Add(s.ttl),
		}
		return nil, nil
	}

	if e.req != req {
		return nil, apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("storedOperation", e.req.Operation).
			WithDetail("requestOperation", req.Operation)
	}
	if e.status != idempotency.StatusPending {
		replay := e.replay
		replay.Body = append([]byte(nil), e.replay.Body...)
		return replay.Normalize(), nil
	}
	if now.Sub(e.updatedAt) <= idempotency.StaleAfter {
		return nil, apperror.NewIdempotencyConflict(req.Key)
	}
	e.updatedAt = now
	return nil, nil
}

// Complete implements idempotency.Store.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, status idempotency.Status, replay idempotency.Replay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.keys[key]; ok {
		e.status = status
		e.replay = replay
		e.updatedAt = s.now()
	}
	return nil
}

// CleanupExpired implements idempotency.Store.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for k, e := range s.keys {
		if now.After(e.expiresAt) {
			delete(s.keys, k)
			n++
		}
	}
	return n, nil
}

var _ idempotency.Store = (*IdempotencyStore)(nil)
