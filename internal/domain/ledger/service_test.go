package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/ledger"
	"orderflow/internal/infrastructure/storage/memory"
)

type fixture struct {
	svc *ledger.Service
	agg *ledger.Aggregator
}

func newFixture() fixture {
	repo := memory.NewLedgerRepo()
	txm := memory.NewTxManager()
	return fixture{
		svc: ledger.NewService(repo, txm),
		agg: ledger.NewAggregator(repo, txm),
	}
}

func qty(s string) types.Quantity { return types.MustQuantity(s) }

func (f fixture) seed(t *testing.T, productID id.ID, loc entity.Location, q string) {
	t.Helper()
	_, err := f.svc.ReceiveProduction(context.Background(), ledger.ProductionReceipt{
		ProductID: productID,
		Location:  loc,
		Quantity:  qty(q),
	})
	require.NoError(t, err)
}

func TestAppend_RejectsNegativeCommitEntry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := id.New()
	f.seed(t, p, entity.LocationNG, "5")

	_, err := f.svc.Append(ctx, []entity.LedgerEntry{
		entity.NewLedgerEntry(p, entity.LocationNG, qty("-6"), entity.MovementSaleOut, entity.DocumentRef{Type: "test"}),
	}, ledger.AppendOptions{})

	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	onHand, err := f.agg.OnHand(ctx, p, entity.LocationNG)
	require.NoError(t, err)
	assert.Equal(t, qty("5"), onHand)
}

func TestAppend_AllowNegativeMarksEntryForced(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := id.New()

	entries, err := f.svc.Append(ctx, []entity.LedgerEntry{
		entity.NewLedgerEntry(p, entity.LocationAdmin, qty("-2"), entity.MovementSaleOut, entity.DocumentRef{Type: "test"}),
	}, ledger.AppendOptions{AllowNegative: true})

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Forced)
	assert.Positive(t, entries[0].Sequence)

	onHand, err := f.agg.OnHand(ctx, p, entity.LocationAdmin)
	require.NoError(t, err)
	assert.Equal(t, qty("-2"), onHand)

	_, err = f.agg.Verify(ctx)
	assert.NoError(t, err, "forced entries are not integrity violations")
}

func TestAppend_BatchIsAtomic(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := id.New()
	f.seed(t, p, entity.LocationNG, "3")

	_, err := f.svc.Append(ctx, []entity.LedgerEntry{
		entity.NewLedgerEntry(p, entity.LocationPH, qty("4"), entity.MovementTransfer, entity.DocumentRef{Type: "test"}),
		entity.NewLedgerEntry(p, entity.LocationNG, qty("-4"), entity.MovementTransfer, entity.DocumentRef{Type: "test"}),
	}, ledger.AppendOptions{})
	require.Error(t, err)

	balances, err := f.agg.Balances(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, qty("3"), balances[entity.LocationNG])
	assert.Equal(t, qty("0"), balances[entity.LocationPH])
}

func TestAppend_ValidatesEntries(t *testing.T) {
	f := newFixture()
	p := id.New()

	tests := []struct {
		name  string
		entry entity.LedgerEntry
	}{
		{"zero delta", entity.NewLedgerEntry(p, entity.LocationNG, 0, entity.MovementAdjustment, entity.DocumentRef{})},
		{"unknown location", entity.NewLedgerEntry(p, entity.Location("MARS"), qty("1"), entity.MovementAdjustment, entity.DocumentRef{})},
		{"unknown kind", entity.NewLedgerEntry(p, entity.LocationNG, qty("1"), entity.MovementKind("gift"), entity.DocumentRef{})},
		{"missing product", entity.NewLedgerEntry(id.Nil(), entity.LocationNG, qty("1"), entity.MovementAdjustment, entity.DocumentRef{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Append(context.Background(), []entity.LedgerEntry{tt.entry}, ledger.AppendOptions{})
			assert.True(t, apperror.IsValidation(err))
		})
	}
}

func TestTransfer_PairSharesGroup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := id.New()
	f.seed(t, p, entity.LocationNG, "10")

	entries, err := f.svc.Transfer(ctx, ledger.TransferRequest{
		ProductID: p,
		From:      entity.LocationNG,
		To:        entity.LocationPH,
		Quantity:  qty("4"),
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].GroupID, entries[1].GroupID)
	assert.Equal(t, entries[0].RefID, entries[1].RefID)
	assert.Equal(t, qty("-4"), entries[0].Delta)
	assert.Equal(t, qty("4"), entries[1].Delta)

	total, err := f.agg.TotalOnHand(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, qty("10"), total, "transfers never change the product total")

	_, err = f.svc.Transfer(ctx, ledger.TransferRequest{ProductID: p, From: entity.LocationPH, To: entity.LocationNG, Quantity: qty("5")})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.Transfer(ctx, ledger.TransferRequest{ProductID: p, From: entity.LocationPH, To: entity.LocationPH, Quantity: qty("1")})
	assert.True(t, apperror.IsValidation(err))
}

func TestAdjust(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := id.New()
	f.seed(t, p, entity.LocationNG, "2")

	_, err := f.svc.Adjust(ctx, ledger.AdjustRequest{ProductID: p, Location: entity.LocationNG, Delta: qty("-3"), Reason: "count"})
	assert.True(t, apperror.IsValidation(err))
	onHand, err := f.agg.OnHand(ctx, p, entity.LocationNG)
	require.NoError(t, err)
	assert.Equal(t, qty("2"), onHand, "rejected adjustment writes nothing")

	_, err = f.svc.Adjust(ctx, ledger.AdjustRequest{ProductID: p, Location: entity.LocationNG, Delta: qty("-3")})
	assert.True(t, apperror.IsValidation(err), "reason is required")

	e, err := f.svc.Adjust(ctx, ledger.AdjustRequest{ProductID: p, Location: entity.LocationNG, Delta: qty("-3"), Reason: "write-off", AllowNegative: true})
	require.NoError(t, err)
	assert.Equal(t, entity.MovementAdjustment, e.Kind)
	assert.Equal(t, "write-off", e.Note)

	onHand, err = f.agg.OnHand(ctx, p, entity.LocationNG)
	require.NoError(t, err)
	assert.Equal(t, qty("-1"), onHand)
}

func TestAppend_ConcurrentDebitsNeverGoNegative(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := id.New()
	f.seed(t, p, entity.LocationNG, "10")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Append(ctx, []entity.LedgerEntry{
				entity.NewLedgerEntry(p, entity.LocationNG, qty("-1"), entity.MovementSaleOut, entity.DocumentRef{Type: "test"}),
			}, ledger.AppendOptions{})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	onHand, err := f.agg.OnHand(ctx, p, entity.LocationNG)
	require.NoError(t, err)
	assert.Equal(t, qty("0"), onHand)
}

func TestAggregator_RebuildMatchesIndex(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := id.New()
	f.seed(t, p, entity.LocationNG, "8")
	_, err := f.svc.Transfer(ctx, ledger.TransferRequest{ProductID: p, From: entity.LocationNG, To: entity.LocationReserved, Quantity: qty("2.5")})
	require.NoError(t, err)

	before, err := f.agg.Balances(ctx, p)
	require.NoError(t, err)

	report, err := f.agg.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.EntriesReplayed)

	after, err := f.agg.Balances(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	verify, err := f.agg.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, verify.Drift)
}

func TestAggregator_History(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := id.New()
	f.seed(t, p, entity.LocationNG, "8")
	f.seed(t, p, entity.LocationPH, "1")

	loc := entity.LocationPH
	entries, err := f.agg.History(ctx, ledger.EntryFilter{ProductID: &p, Location: &loc})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entity.MovementProductionIn, entries[0].Kind)

	all, err := f.agg.History(ctx, ledger.EntryFilter{ProductID: &p})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Greater(t, all[0].Sequence, all[1].Sequence, "newest first")
}
