package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "orderflow/internal/core/context"
	"orderflow/internal/core/id"
)

type sliceStore struct {
	records []Record
}

func (s *sliceStore) Append(_ context.Context, rec Record) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *sliceStore) History(_ context.Context, entityType string, entityID id.ID, limit int) ([]Record, error) {
	var out []Record
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if s.records[i].EntityType == entityType && s.records[i].EntityID == entityID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		old  map[string]any
		new  map[string]any
		want map[string]any
	}{
		{
			name: "unchanged",
			old:  map[string]any{"reserved": "5.0"},
			new:  map[string]any{"reserved": "5.0"},
			want: map[string]any{},
		},
		{
			name: "changed",
			old:  map[string]any{"reserved": "5.0"},
			new:  map[string]any{"reserved": "7.5"},
			want: map[string]any{"reserved": Change("5.0", "7.5")},
		},
		{
			name: "added and removed",
			old:  map[string]any{"a": 1},
			new:  map[string]any{"b": 2},
			want: map[string]any{"a": Change(1, nil), "b": Change(nil, 2)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.old, tt.new))
		})
	}
}

func TestRecorder_StampsActor(t *testing.T) {
	store := &sliceStore{}
	rec := NewRecorder(store)
	ctx := appctx.WithActor(context.Background(), &appctx.Actor{ID: "u-42", Name: "Planner"})
	lineID := id.New()

	require.NoError(t, rec.Record(ctx, "job_order_line", lineID, ActionTrancheRecorded, map[string]any{
		"tranche1": Change("0.0", "3.0"),
	}))
	require.NoError(t, rec.Record(ctx, "job_order_line", lineID, ActionRecomputed, nil), "empty changes are skipped")

	history, err := rec.History(ctx, "job_order_line", lineID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "u-42", history[0].Actor)
	assert.Equal(t, ActionTrancheRecorded, history[0].Action)
	assert.False(t, history[0].CreatedAt.IsZero())
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NoError(t, rec.Record(context.Background(), "x", id.New(), ActionRecomputed, map[string]any{"a": 1}))
}
