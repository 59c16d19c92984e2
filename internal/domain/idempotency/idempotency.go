// Package idempotency defines the store behind the Idempotency-Key header:
// a retried mutating request replays the first response instead of running
// twice.
package idempotency

import (
	"context"
	"time"
)

// Status of a key.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may sit before another request may
// reclaim it (the first one most likely crashed).
const StaleAfter = time.Minute

// Request identifies one attempt to use a key.
type Request struct {
	Key         string
	Actor       string
	Operation   string
	RequestHash string
}

// Replay is a stored response.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store persists idempotency keys.
type Store interface {
	// Acquire claims the key. It returns (nil, nil) when the caller should run
	// the operation, a Replay when the operation already finished, and an
	// IDEMPOTENCY_CONFLICT error when the key is in flight or was used for a
	// different request.
	Acquire(ctx context.Context, req Request) (*Replay, error)

	// Complete stores the response of a finished operation.
	Complete(ctx context.Context, key string, status Status, replay Replay) error

	// CleanupExpired deletes keys past their TTL.
	CleanupExpired(ctx context.Context) (int64, error)
}

// Normalize fills defaults on a replay read back from storage.
func (r *Replay) Normalize() *Replay {
	if r.StatusCode == 0 {
		r.StatusCode = 200
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return r
}
