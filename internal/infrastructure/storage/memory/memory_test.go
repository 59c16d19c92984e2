package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/numerator"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/documents/sales_order"
	"orderflow/internal/domain/ledger"
)

type row struct {
	Name string
}

func newRows() *table[*row] {
	return newTable("row", func(r *row) *row { c := *r; return &c })
}

func TestTx_RollbackUndoesWritesInReverse(t *testing.T) {
	ctx := context.Background()
	tbl := newRows()
	kept, dropped := id.New(), id.New()
	require.NoError(t, tbl.insert(ctx, kept, &row{Name: "a"}, nil))

	boom := errors.New("boom")
	err := NewTxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		if err := tbl.put(ctx, kept, &row{Name: "b"}); err != nil {
			return err
		}
		if err := tbl.insert(ctx, dropped, &row{Name: "c"}, nil); err != nil {
			return err
		}
		if err := tbl.remove(ctx, kept); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := tbl.get(kept)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	_, err = tbl.get(dropped)
	assert.True(t, apperror.IsNotFound(err))
	assert.Len(t, tbl.scan(nil), 1)
}

func TestTx_NestedCallsJoin(t *testing.T) {
	ctx := context.Background()
	tbl := newRows()
	key := id.New()
	txm := NewTxManager()

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
			return tbl.insert(ctx, key, &row{Name: "inner"}, nil)
		}); err != nil {
			return err
		}
		return errors.New("outer fails")
	})
	require.Error(t, err)

	_, err = tbl.get(key)
	assert.True(t, apperror.IsNotFound(err), "inner write rolls back with the outer transaction")
}

func TestTable_RowLockHeldUntilCommit(t *testing.T) {
	ctx := context.Background()
	tbl := newRows()
	tbl.lockWait = 50 * time.Millisecond
	key := id.New()
	require.NoError(t, tbl.insert(ctx, key, &row{Name: "a"}, nil))
	txm := NewTxManager()

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = txm.RunInTransaction(ctx, func(ctx context.Context) error {
			if _, err := tbl.getForUpdate(ctx, key); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := tbl.getForUpdate(ctx, key)
		return err
	})
	assert.True(t, apperror.IsConcurrentModification(err))
	close(done)

	assert.Eventually(t, func() bool {
		return txm.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := tbl.getForUpdate(ctx, key)
			return err
		}) == nil
	}, time.Second, 10*time.Millisecond)

	_, err = tbl.getForUpdate(ctx, key)
	assert.Error(t, err, "row locks require a transaction")
}

func TestLedgerRepo_DriftIsDetectedAndRebuilt(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepo()
	txm := NewTxManager()
	svc := ledger.NewService(repo, txm)
	agg := ledger.NewAggregator(repo, txm)
	p := id.New()

	_, err := svc.ReceiveProduction(ctx, ledger.ProductionReceipt{ProductID: p, Location: entity.LocationNG, Quantity: types.MustQuantity("5")})
	require.NoError(t, err)

	repo.corrupt(entity.BalanceKey{ProductID: p, Location: entity.LocationNG}, types.MustQuantity("7"))
	repo.corrupt(entity.BalanceKey{ProductID: p, Location: entity.LocationPH}, types.MustQuantity("1"))

	report, err := agg.Verify(ctx)
	require.Error(t, err)
	assert.True(t, apperror.IsIntegrity(err))
	require.Len(t, report.Drift, 2)

	_, err = agg.Rebuild(ctx)
	require.NoError(t, err)
	report, err = agg.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Drift)

	onHand, err := agg.OnHand(ctx, p, entity.LocationNG)
	require.NoError(t, err)
	assert.Equal(t, types.MustQuantity("5"), onHand)
}

func TestLedgerRepo_RollbackRestoresBalances(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepo()
	p := id.New()
	key := entity.BalanceKey{ProductID: p, Location: entity.LocationNG}

	err := NewTxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := repo.LockBalances(ctx, []entity.BalanceKey{key}); err != nil {
			return err
		}
		e := entity.NewLedgerEntry(p, entity.LocationNG, types.MustQuantity("3"), entity.MovementProductionIn, entity.DocumentRef{})
		if err := repo.AppendEntries(ctx, []entity.LedgerEntry{e}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	q, err := repo.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, q.IsZero())
	entries, err := repo.ListEntries(ctx, ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSalesOrderRepo_SourceQuotationIsUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewSalesOrderRepo()
	qid := id.New()

	first := newOrder(qid)
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, newOrder(qid))
	assert.True(t, apperror.IsAlreadyConverted(err))

	found, err := repo.GetBySourceQuotation(ctx, qid)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func newOrder(quotationID id.ID) *sales_order.SalesOrder {
	o := sales_order.NewSalesOrder("C1", "Customer", "USD")
	o.SourceQuotationID = &quotationID
	return o
}

func TestNumerator(t *testing.T) {
	ctx := context.Background()
	n := NewNumerator()
	cfg := numerator.DefaultConfig("test_doc", "TD")
	period := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	first, err := n.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	second, err := n.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, n.SetNextNumber(ctx, cfg, period, 41))
	next, err := n.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, cfg.Format(period, 42), next)
}
