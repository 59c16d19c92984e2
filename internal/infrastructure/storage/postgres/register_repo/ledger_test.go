package register_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/ledger"
)

func TestFoldBalances(t *testing.T) {
	product := id.New()
	t0 := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	entries := []entity.LedgerEntry{
		{ProductID: product, Location: entity.LocationNG, Delta: types.MustQuantity("-5"), Sequence: 10, CreatedAt: t0},
		{ProductID: product, Location: entity.LocationReserved, Delta: types.MustQuantity("5"), Sequence: 11, CreatedAt: t0},
		{ProductID: product, Location: entity.LocationNG, Delta: types.MustQuantity("2.5"), Sequence: 12, CreatedAt: t0.Add(time.Minute)},
	}

	got := foldBalances(entries)
	require.Len(t, got, 2)

	assert.Equal(t, entity.LocationNG, got[0].Location)
	assert.Equal(t, types.MustQuantity("-2.5"), got[0].Quantity)
	assert.Equal(t, int64(12), got[0].LastSequence)
	assert.Equal(t, t0.Add(time.Minute), got[0].LastMovementAt)

	assert.Equal(t, entity.LocationReserved, got[1].Location)
	assert.Equal(t, types.MustQuantity("5"), got[1].Quantity)
}

func TestEntriesQuery(t *testing.T) {
	repo := NewLedgerRepo(nil)
	product := id.New()
	loc := entity.LocationPH
	kind := entity.MovementSaleOut

	tests := []struct {
		name     string
		filter   ledger.EntryFilter
		contains []string
		args     int
	}{
		{
			name:     "no filter",
			filter:   ledger.EntryFilter{},
			contains: []string{"FROM reg_ledger_entries", "ORDER BY sequence DESC"},
		},
		{
			name:     "product and location",
			filter:   ledger.EntryFilter{ProductID: &product, Location: &loc},
			contains: []string{"product_id = $1", "location = $2"},
			args:     2,
		},
		{
			name:     "kind with paging",
			filter:   ledger.EntryFilter{Kind: &kind, Limit: 20, Offset: 40},
			contains: []string{"kind = $1", "LIMIT 20", "OFFSET 40"},
			args:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.entriesQuery(tt.filter).ToSql()
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, sql, s)
			}
			assert.Len(t, args, tt.args)
		})
	}
}
