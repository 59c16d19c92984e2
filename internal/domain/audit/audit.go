// Package audit records who changed reservation and shipment inputs, from
// what to what. Records are written in the same transaction as the change.
package audit

import (
	"context"
	"fmt"
	"time"

	appctx "orderflow/internal/core/context"
	"orderflow/internal/core/id"
)

// Action names an audited operation.
type Action string

const (
	ActionReservationSet      Action = "reservation_set"
	ActionReservationReleased Action = "reservation_released"
	ActionTrancheRecorded     Action = "tranche_recorded"
	ActionRecomputed          Action = "recomputed"
)

// Record is one audit log entry.
type Record struct {
	ID         id.ID          `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   id.ID          `json:"entityId"`
	Action     Action         `json:"action"`
	Actor      string         `json:"actor"`
	Changes    map[string]any `json:"changes"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Store persists audit records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Record, error)
}

// Recorder stamps records with id, actor and time before storing them.
// A nil Recorder records nothing.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Record stores a change of entityID. Changes usually come from Diff or Change.
func (r *Recorder) Record(ctx context.Context, entityType string, entityID id.ID, action Action, changes map[string]any) error {
	if r == nil || r.store == nil || len(changes) == 0 {
		return nil
	}
	rec := Record{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      appctx.GetActorID(ctx),
		Changes:    changes,
		CreatedAt:  r.now(),
	}
	if err := r.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// History returns the newest records of an entity first.
func (r *Recorder) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Record, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return r.store.History(ctx, entityType, entityID, limit)
}

// Change describes one field going from old to new.
func Change(oldVal, newVal any) map[string]any {
	return map[string]any{"old": oldVal, "new": newVal}
}

// Diff returns the fields whose values differ between two snapshots.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)
	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = Change(nil, newVal)
		} else if !equal(oldVal, newVal) {
			changes[key] = Change(oldVal, newVal)
		}
	}
	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = Change(oldVal, nil)
		}
	}
	return changes
}

func equal(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
