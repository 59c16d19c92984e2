package reconciliation_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/apperror"
	appctx "orderflow/internal/core/context"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/audit"
	"orderflow/internal/domain/documents/job_order"
	"orderflow/internal/domain/ledger"
	"orderflow/internal/domain/notification"
	"orderflow/internal/domain/reconciliation"
	"orderflow/internal/infrastructure/lock"
	"orderflow/internal/infrastructure/notifier"
	"orderflow/internal/infrastructure/storage/memory"
)

type fixture struct {
	engine  *reconciliation.Engine
	ledger  *ledger.Service
	agg     *ledger.Aggregator
	jobs    *memory.JobOrderRepo
	audit   *audit.Recorder
	events  *notifier.Recorder
	product id.ID
}

func qty(s string) types.Quantity { return types.MustQuantity(s) }

func newFixture(t *testing.T, stock map[entity.Location]string) fixture {
	t.Helper()
	txm := memory.NewTxManager()
	ledgerRepo := memory.NewLedgerRepo()
	f := fixture{
		ledger:  ledger.NewService(ledgerRepo, txm),
		agg:     ledger.NewAggregator(ledgerRepo, txm),
		jobs:    memory.NewJobOrderRepo(),
		audit:   audit.NewRecorder(memory.NewAuditStore()),
		events:  &notifier.Recorder{},
		product: id.New(),
	}
	engine, err := reconciliation.NewEngine(f.jobs, f.ledger, txm, lock.NewLocalLocker(5*time.Second),
		f.audit, notification.NewDispatcher(f.events), reconciliation.Config{})
	require.NoError(t, err)
	f.engine = engine

	for loc, q := range stock {
		_, err := f.ledger.ReceiveProduction(context.Background(), ledger.ProductionReceipt{
			ProductID: f.product,
			Location:  loc,
			Quantity:  qty(q),
		})
		require.NoError(t, err)
	}
	return f
}

// newLine stores an in-progress job order with one line of quantity q.
func (f fixture) newLine(t *testing.T, q string) id.ID {
	t.Helper()
	ctx := context.Background()
	doc := job_order.NewJobOrder(id.New())
	doc.Status = job_order.StatusInProgress
	line := doc.AddLine(id.New(), f.product, qty(q))
	require.NoError(t, f.jobs.Create(ctx, doc))
	require.NoError(t, f.jobs.InsertLines(ctx, doc.ID, doc.Lines))
	return line.LineID
}

func (f fixture) setStatus(t *testing.T, lineID id.ID, status job_order.Status) {
	t.Helper()
	ctx := context.Background()
	line, err := f.jobs.GetLine(ctx, lineID)
	require.NoError(t, err)
	doc, err := f.jobs.GetByID(ctx, line.JobOrderID)
	require.NoError(t, err)
	doc.Status = status
	require.NoError(t, f.jobs.Update(ctx, doc))
}

func (f fixture) balances(t *testing.T) map[entity.Location]types.Quantity {
	t.Helper()
	b, err := f.agg.Balances(context.Background(), f.product)
	require.NoError(t, err)
	return b
}

func (f fixture) entryCount(t *testing.T) int {
	t.Helper()
	entries, err := f.agg.History(context.Background(), ledger.EntryFilter{ProductID: &f.product, Limit: 10000})
	require.NoError(t, err)
	return len(entries)
}

func assertDerived(t *testing.T, line *job_order.Line, shipped, ready, orderBalance, toProduce string) {
	t.Helper()
	assert.Equal(t, qty(shipped), line.Shipped, "shipped")
	assert.Equal(t, qty(ready), line.Ready, "ready")
	assert.Equal(t, qty(orderBalance), line.OrderBalance, "orderBalance")
	assert.Equal(t, qty(toProduce), line.ToProduce, "toProduce")
}

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "20"})
	lineID := f.newLine(t, "10")

	_, err := f.engine.SetReservation(ctx, lineID, qty("6"))
	require.NoError(t, err)

	t.Run("A: first tranche", func(t *testing.T) {
		line, err := f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 1, Amount: qty("4")})
		require.NoError(t, err)
		assertDerived(t, line, "4", "2", "6", "4")

		b := f.balances(t)
		assert.Equal(t, qty("14"), b[entity.LocationNG])
		assert.Equal(t, qty("2"), b[entity.LocationReserved])
	})

	t.Run("B: raise reservation", func(t *testing.T) {
		line, err := f.engine.SetReservation(ctx, lineID, qty("8"))
		require.NoError(t, err)
		assertDerived(t, line, "4", "4", "6", "2")

		b := f.balances(t)
		assert.Equal(t, qty("12"), b[entity.LocationNG])
		assert.Equal(t, qty("4"), b[entity.LocationReserved], "+2 moved into RESERVED")

		loc := entity.LocationReserved
		latest, err := f.agg.History(ctx, ledger.EntryFilter{ProductID: &f.product, Location: &loc, Limit: 1})
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.Equal(t, qty("2"), latest[0].Delta)
		assert.Equal(t, entity.MovementTransfer, latest[0].Kind)
		assert.Equal(t, lineID, latest[0].RefLineID)
	})

	t.Run("C: over-shipment is rejected without side effects", func(t *testing.T) {
		before, err := f.jobs.GetLine(ctx, lineID)
		require.NoError(t, err)
		entries := f.entryCount(t)

		_, err = f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 2, Amount: qty("10")})
		require.Error(t, err)
		assert.True(t, apperror.IsOverShipment(err))

		after, err := f.jobs.GetLine(ctx, lineID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Equal(t, entries, f.entryCount(t))
	})
}

func TestScenarioD_ConcurrentReservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "20"})
	lineID := f.newLine(t, "10")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, r := range []string{"6", "9"} {
		wg.Add(1)
		go func(i int, r string) {
			defer wg.Done()
			_, errs[i] = f.engine.SetReservation(ctx, lineID, qty(r))
		}(i, r)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	line, err := f.jobs.GetLine(ctx, lineID)
	require.NoError(t, err)
	assert.Contains(t, []types.Quantity{qty("6"), qty("9")}, line.Reserved)
	assert.Equal(t, line.Reserved, line.SourcesTotal())

	b := f.balances(t)
	assert.Equal(t, line.Reserved, b[entity.LocationReserved], "ledger matches the surviving write")
	assert.Equal(t, qty("20")-line.Reserved, b[entity.LocationNG])

	history, err := f.audit.History(ctx, job_order.LineType, lineID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2, "both writes serialized, neither lost")
}

func TestSetReservation_MultiLocationAllocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "3", entity.LocationPH: "5"})
	lineID := f.newLine(t, "10")

	line, err := f.engine.SetReservation(ctx, lineID, qty("6"))
	require.NoError(t, err)
	assert.Equal(t, map[entity.Location]types.Quantity{
		entity.LocationNG: qty("3"),
		entity.LocationPH: qty("3"),
	}, line.Sources)

	b := f.balances(t)
	assert.Equal(t, qty("0"), b[entity.LocationNG])
	assert.Equal(t, qty("2"), b[entity.LocationPH])
	assert.Equal(t, qty("6"), b[entity.LocationReserved])

	line, err = f.engine.SetReservation(ctx, lineID, qty("2"))
	require.NoError(t, err)
	assert.Equal(t, map[entity.Location]types.Quantity{entity.LocationNG: qty("2")}, line.Sources,
		"releases return stock in reverse priority")

	b = f.balances(t)
	assert.Equal(t, qty("1"), b[entity.LocationNG])
	assert.Equal(t, qty("5"), b[entity.LocationPH])
	assert.Equal(t, qty("2"), b[entity.LocationReserved])
}

func TestSetReservation_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "1", entity.LocationPH: "1.5"})
	lineID := f.newLine(t, "10")
	entries := f.entryCount(t)

	_, err := f.engine.SetReservation(ctx, lineID, qty("3"))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	line, err := f.jobs.GetLine(ctx, lineID)
	require.NoError(t, err)
	assert.True(t, line.Reserved.IsZero())
	assert.Empty(t, line.Sources)
	assert.Equal(t, entries, f.entryCount(t))
}

func TestSetReservation_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "50"})
	lineID := f.newLine(t, "10")

	_, err := f.engine.SetReservation(ctx, lineID, qty("5"))
	require.NoError(t, err)
	_, err = f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 3, Amount: qty("4")})
	require.NoError(t, err)

	tests := []struct {
		name     string
		reserved string
	}{
		{"negative", "-1"},
		{"above quantity", "10.5"},
		{"below shipped", "3.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.SetReservation(ctx, lineID, qty(tt.reserved))
			assert.True(t, apperror.IsValidation(err))
		})
	}

	_, err = f.engine.SetReservation(ctx, id.New(), qty("1"))
	assert.True(t, apperror.IsNotFound(err))
}

func TestSetReservation_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "50"})
	lineID := f.newLine(t, "10")

	first, err := f.engine.SetReservation(ctx, lineID, qty("5"))
	require.NoError(t, err)
	entries := f.entryCount(t)

	second, err := f.engine.SetReservation(ctx, lineID, qty("5"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, entries, f.entryCount(t))
	assert.Len(t, f.events.OfType(notification.ReservationChanged), 1)
}

func TestRecordShipmentTranche_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "50"})
	lineID := f.newLine(t, "10")

	tests := []struct {
		name  string
		index int
		value string
	}{
		{"index zero", 0, "1"},
		{"index nine", 9, "1"},
		{"negative amount", 1, "-0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: tt.index, Amount: qty(tt.value)})
			assert.True(t, apperror.IsValidation(err))
		})
	}
}

func TestRecordShipmentTranche_OverwriteAndCorrection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "50"})
	lineID := f.newLine(t, "10")
	_, err := f.engine.SetReservation(ctx, lineID, qty("8"))
	require.NoError(t, err)

	_, err = f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 1, Amount: qty("4")})
	require.NoError(t, err)
	line, err := f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 1, Amount: qty("1.5")})
	require.NoError(t, err)
	assertDerived(t, line, "1.5", "6.5", "8.5", "2")

	b := f.balances(t)
	assert.Equal(t, qty("6.5"), b[entity.LocationReserved], "the correction credited 2.5 back")

	loc := entity.LocationReserved
	kind := entity.MovementSaleOut
	saleOuts, err := f.agg.History(ctx, ledger.EntryFilter{ProductID: &f.product, Location: &loc, Kind: &kind})
	require.NoError(t, err)
	require.Len(t, saleOuts, 2)
	assert.Equal(t, qty("2.5"), saleOuts[0].Delta)
	assert.Equal(t, qty("-4"), saleOuts[1].Delta)

	assert.Len(t, f.events.OfType(notification.ShipmentRecorded), 2)
}

func TestRecordShipmentTranche_Override(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "1", entity.LocationPH: "10"})
	lineID := f.newLine(t, "10")
	_, err := f.engine.SetReservation(ctx, lineID, qty("2"))
	require.NoError(t, err)

	line, err := f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 1, Amount: qty("5"), Override: true})
	require.NoError(t, err)
	assertDerived(t, line, "5", "-3", "5", "8")
	assert.Equal(t, qty("5"), line.SourcesTotal())

	b := f.balances(t)
	assert.Equal(t, qty("0"), b[entity.LocationReserved])
	assert.Equal(t, qty("0"), b[entity.LocationNG])
	assert.Equal(t, qty("6"), b[entity.LocationPH], "excess ships from main stock in priority order")

	_, err = f.agg.Verify(ctx)
	assert.NoError(t, err)
}

func TestLineMutations_RespectJobOrderStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "50"})

	tests := []struct {
		status job_order.Status
		check  func(error) bool
	}{
		{job_order.StatusOnHold, apperror.IsValidation},
		{job_order.StatusCompleted, apperror.IsImmutable},
		{job_order.StatusCancelled, apperror.IsImmutable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			lineID := f.newLine(t, "10")
			f.setStatus(t, lineID, tt.status)

			_, err := f.engine.SetReservation(ctx, lineID, qty("1"))
			assert.True(t, tt.check(err), "reservation: %v", err)
			_, err = f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 1, Amount: qty("1"), Override: true})
			assert.True(t, tt.check(err), "tranche: %v", err)
		})
	}
}

func TestRecomputeAll_RoundTripAndIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "100"})
	lineID := f.newLine(t, "40")
	_, err := f.engine.SetReservation(ctx, lineID, qty("30"))
	require.NoError(t, err)

	amounts := []string{"2", "3.5", "0", "4", "1.1", "6", "0.4", "5"}
	var final [job_order.MaxTranches]types.Quantity
	for i, a := range amounts {
		_, err := f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: i + 1, Amount: qty(a)})
		require.NoError(t, err)
		final[i] = qty(a)
	}

	line, changed, err := f.engine.RecomputeAll(ctx, lineID)
	require.NoError(t, err)
	assert.False(t, changed)

	direct := job_order.Line{Quantity: qty("40"), Reserved: qty("30"), Tranches: final}
	assert.Equal(t, direct.Derive(), line.Stored())

	again, changed, err := f.engine.RecomputeAll(ctx, lineID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, line, again)
}

func TestRecomputeAll_RepairsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "10"})
	lineID := f.newLine(t, "10")
	_, err := f.engine.SetReservation(ctx, lineID, qty("5"))
	require.NoError(t, err)

	stale, err := f.jobs.GetLine(ctx, lineID)
	require.NoError(t, err)
	stale.Shipped, stale.Ready = qty("3"), qty("9")
	require.NoError(t, f.jobs.UpdateLine(ctx, stale))
	entries := f.entryCount(t)

	report, err := f.engine.RecomputeEverything(ctx)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{lineID}, report.Repaired)

	line, err := f.jobs.GetLine(ctx, lineID)
	require.NoError(t, err)
	assertDerived(t, line, "0", "5", "10", "5")
	assert.Equal(t, entries, f.entryCount(t), "recompute never touches the ledger")

	report, err = f.engine.RecomputeEverything(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Repaired)
}

func TestReleaseHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "10"})
	lineID := f.newLine(t, "10")
	_, err := f.engine.SetReservation(ctx, lineID, qty("7"))
	require.NoError(t, err)
	_, err = f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 1, Amount: qty("2")})
	require.NoError(t, err)

	err = memory.NewTxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		line, err := f.jobs.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		return f.engine.ReleaseHeld(ctx, line)
	})
	require.NoError(t, err)

	line, err := f.jobs.GetLine(ctx, lineID)
	require.NoError(t, err)
	assert.Equal(t, qty("2"), line.Reserved)
	assertDerived(t, line, "2", "0", "8", "8")

	b := f.balances(t)
	assert.Equal(t, qty("8"), b[entity.LocationNG])
	assert.Equal(t, qty("0"), b[entity.LocationReserved])
}

func TestAuditTrail_RecordsActor(t *testing.T) {
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "10"})
	ctx := appctx.WithActor(context.Background(), &appctx.Actor{ID: "planner-7"})
	lineID := f.newLine(t, "10")

	_, err := f.engine.SetReservation(ctx, lineID, qty("4"))
	require.NoError(t, err)
	_, err = f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 2, Amount: qty("1")})
	require.NoError(t, err)

	history, err := f.audit.History(ctx, job_order.LineType, lineID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, audit.ActionTrancheRecorded, history[0].Action)
	assert.Equal(t, "planner-7", history[0].Actor)
	assert.Equal(t, audit.Change("0.0", "1.0"), history[0].Changes["tranche2"])
	assert.Equal(t, audit.Change("0.0", "4.0"), history[1].Changes["reserved"])
}

func TestRandomOperations_KeepLedgerNonNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[entity.Location]string{entity.LocationNG: "15", entity.LocationPH: "15"})
	lines := []id.ID{f.newLine(t, "10"), f.newLine(t, "12"), f.newLine(t, "8")}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 300; i++ {
		lineID := lines[rng.Intn(len(lines))]
		line, err := f.jobs.GetLine(ctx, lineID)
		require.NoError(t, err)

		amount := types.NewQuantityFromInt64Scaled(rng.Int63n(line.Quantity.Int64Scaled() + 1))
		if rng.Intn(2) == 0 {
			_, err = f.engine.SetReservation(ctx, lineID, amount)
		} else {
			_, err = f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{
				LineID: lineID,
				Index:  rng.Intn(job_order.MaxTranches) + 1,
				Amount: types.NewQuantityFromInt64Scaled(amount.Int64Scaled() / 4),
			})
		}
		if err != nil {
			require.True(t,
				apperror.IsValidation(err) || apperror.IsInsufficientStock(err) || apperror.IsOverShipment(err),
				"unexpected error: %v", err)
		}

		for _, loc := range []entity.Location{entity.LocationNG, entity.LocationPH, entity.LocationReserved} {
			onHand, err := f.agg.OnHand(ctx, f.product, loc)
			require.NoError(t, err)
			require.False(t, onHand.IsNegative(), "step %d: %s went negative", i, loc)
		}
	}

	var reserved types.Quantity
	for _, lineID := range lines {
		line, err := f.jobs.GetLine(ctx, lineID)
		require.NoError(t, err)
		assert.Equal(t, line.Derive(), line.Stored())
		assert.Equal(t, types.MaxQuantity(line.Reserved, line.Shipped), line.SourcesTotal())
		reserved += line.Held()
	}
	b := f.balances(t)
	assert.Equal(t, reserved, b[entity.LocationReserved])

	_, err := f.agg.Verify(ctx)
	assert.NoError(t, err)
}
