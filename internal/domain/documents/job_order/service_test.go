package job_order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/documents/job_order"
	"orderflow/internal/domain/documents/sales_order"
	"orderflow/internal/domain/ledger"
	"orderflow/internal/domain/notification"
	"orderflow/internal/domain/reconciliation"
	"orderflow/internal/infrastructure/lock"
	"orderflow/internal/infrastructure/notifier"
	"orderflow/internal/infrastructure/storage/memory"
)

type fixture struct {
	svc    *job_order.Service
	orders *sales_order.Service
	engine *reconciliation.Engine
	ledger *ledger.Service
	agg    *ledger.Aggregator
	events *notifier.Recorder
}

func qty(s string) types.Quantity { return types.MustQuantity(s) }

func newFixture(t *testing.T) fixture {
	t.Helper()
	txm := memory.NewTxManager()
	numerator := memory.NewNumerator()
	locker := lock.NewLocalLocker(time.Second)
	events := &notifier.Recorder{}
	dispatcher := notification.NewDispatcher(events)
	ledgerRepo := memory.NewLedgerRepo()
	jobs := memory.NewJobOrderRepo()

	orders := sales_order.NewService(memory.NewSalesOrderRepo(), numerator, txm, dispatcher)
	svc := job_order.NewService(jobs, orders, numerator, txm, locker, dispatcher)
	orders.SetProductionReader(svc)

	ledgerSvc := ledger.NewService(ledgerRepo, txm)
	engine, err := reconciliation.NewEngine(jobs, ledgerSvc, txm, locker, nil, dispatcher, reconciliation.Config{})
	require.NoError(t, err)
	svc.SetReleaser(engine)

	return fixture{
		svc:    svc,
		orders: orders,
		engine: engine,
		ledger: ledgerSvc,
		agg:    ledger.NewAggregator(ledgerRepo, txm),
		events: events,
	}
}

// confirmedOrder creates a confirmed sales order with one line per quantity.
func (f fixture) confirmedOrder(t *testing.T, quantities ...string) *sales_order.SalesOrder {
	t.Helper()
	ctx := context.Background()
	o := sales_order.NewSalesOrder("C-1", "Contoso", "USD")
	for _, q := range quantities {
		o.AddLine(id.New(), qty(q), types.MustMoney("1"))
	}
	require.NoError(t, f.orders.Create(ctx, o))
	_, err := f.orders.Confirm(ctx, o.ID)
	require.NoError(t, err)
	return o
}

func route(o *sales_order.SalesOrder, quantities ...string) *job_order.JobOrder {
	jo := job_order.NewJobOrder(o.ID)
	for i, q := range quantities {
		jo.AddLine(o.Lines[i].LineID, id.Nil(), qty(q))
	}
	return jo
}

func TestCreate_RoutesSalesOrderLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.confirmedOrder(t, "10", "4")

	jo := route(o, "6", "4")
	require.NoError(t, f.svc.Create(ctx, jo))
	assert.Equal(t, job_order.StatusPlanning, jo.Status)
	assert.Regexp(t, `^JO-`, jo.Number)

	stored, err := f.svc.GetByID(ctx, jo.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, o.Lines[0].ProductID, stored.Lines[0].ProductID, "product comes from the sales order line")
	assert.Equal(t, qty("6"), stored.Lines[0].ToProduce)
	assert.Equal(t, qty("6"), stored.Lines[0].OrderBalance)

	so, err := f.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, sales_order.StatusProcessing, so.Status)
	assert.Len(t, f.events.OfType(notification.JobOrderCreated), 1)
}

func TestCreate_RoutingLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.confirmedOrder(t, "10")

	first := route(o, "7")
	require.NoError(t, f.svc.Create(ctx, first))

	err := f.svc.Create(ctx, route(o, "3.1"))
	assert.True(t, apperror.IsValidation(err), "7 + 3.1 exceeds the ordered 10")

	require.NoError(t, f.svc.Create(ctx, route(o, "3")))

	_, err = f.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.NoError(t, f.svc.Create(ctx, route(o, "7")), "cancelled job orders free their quantity")
}

func TestCreate_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pending := sales_order.NewSalesOrder("C-1", "Contoso", "USD")
	pending.AddLine(id.New(), qty("5"), types.MustMoney("1"))
	require.NoError(t, f.orders.Create(ctx, pending))
	assert.True(t, apperror.IsValidation(f.svc.Create(ctx, route(pending, "1"))), "pending orders are not open for production")

	o := f.confirmedOrder(t, "5")

	foreign := job_order.NewJobOrder(o.ID)
	foreign.AddLine(id.New(), id.Nil(), qty("1"))
	assert.True(t, apperror.IsValidation(f.svc.Create(ctx, foreign)))

	wrongProduct := job_order.NewJobOrder(o.ID)
	wrongProduct.AddLine(o.Lines[0].LineID, id.New(), qty("1"))
	assert.True(t, apperror.IsValidation(f.svc.Create(ctx, wrongProduct)))

	empty := job_order.NewJobOrder(o.ID)
	assert.True(t, apperror.IsValidation(f.svc.Create(ctx, empty)))

	assert.True(t, apperror.IsNotFound(f.svc.Create(ctx, route(&sales_order.SalesOrder{Lines: o.Lines}, "1"))))
}

func TestStatusFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.confirmedOrder(t, "2")
	_, err := f.ledger.ReceiveProduction(ctx, ledger.ProductionReceipt{
		ProductID: o.Lines[0].ProductID,
		Location:  entity.LocationNG,
		Quantity:  qty("2"),
	})
	require.NoError(t, err)

	jo := route(o, "2")
	require.NoError(t, f.svc.Create(ctx, jo))
	lineID := jo.Lines[0].LineID

	_, err = f.svc.Start(ctx, jo.ID)
	require.NoError(t, err)
	_, err = f.svc.Hold(ctx, jo.ID)
	require.NoError(t, err)

	_, err = f.engine.SetReservation(ctx, lineID, qty("2"))
	assert.True(t, apperror.IsValidation(err), "on-hold orders reject line changes")

	_, err = f.svc.Resume(ctx, jo.ID)
	require.NoError(t, err)
	_, err = f.engine.SetReservation(ctx, lineID, qty("2"))
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, jo.ID)
	assert.True(t, apperror.IsValidation(err), "unshipped lines block completion")

	_, err = f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: lineID, Index: 1, Amount: qty("2")})
	require.NoError(t, err)
	done, err := f.svc.Complete(ctx, jo.ID)
	require.NoError(t, err)
	assert.Equal(t, job_order.StatusCompleted, done.Status)

	status, err := f.orders.Fulfillment(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, sales_order.FulfillmentFulfilled, status)

	_, err = f.engine.SetReservation(ctx, lineID, qty("2"))
	assert.True(t, apperror.IsImmutable(err))
	assert.Len(t, f.events.OfType(notification.JobOrderStatusChange), 4)
}

func TestCancel_ReleasesHeldReservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.confirmedOrder(t, "10", "5")
	for _, l := range o.Lines {
		_, err := f.ledger.ReceiveProduction(ctx, ledger.ProductionReceipt{ProductID: l.ProductID, Location: entity.LocationPH, Quantity: qty("10")})
		require.NoError(t, err)
	}

	jo := route(o, "10", "5")
	require.NoError(t, f.svc.Create(ctx, jo))
	_, err := f.svc.Start(ctx, jo.ID)
	require.NoError(t, err)

	first, second := jo.Lines[0], jo.Lines[1]
	_, err = f.engine.SetReservation(ctx, first.LineID, qty("6"))
	require.NoError(t, err)
	_, err = f.engine.RecordShipmentTranche(ctx, reconciliation.ShipmentRequest{LineID: first.LineID, Index: 1, Amount: qty("4")})
	require.NoError(t, err)
	_, err = f.engine.SetReservation(ctx, second.LineID, qty("5"))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, jo.ID)
	require.NoError(t, err)
	assert.Equal(t, job_order.StatusCancelled, cancelled.Status)
	assert.Equal(t, qty("4"), cancelled.Lines[0].Reserved, "shipped part stays reserved")
	assert.True(t, cancelled.Lines[1].Reserved.IsZero())

	b, err := f.agg.Balances(ctx, first.ProductID)
	require.NoError(t, err)
	assert.Equal(t, qty("6"), b[entity.LocationPH])
	assert.True(t, b[entity.LocationReserved].IsZero())

	b, err = f.agg.Balances(ctx, second.ProductID)
	require.NoError(t, err)
	assert.Equal(t, qty("10"), b[entity.LocationPH])

	_, err = f.svc.Cancel(ctx, jo.ID)
	assert.True(t, apperror.IsImmutable(err))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.confirmedOrder(t, "10")
	_, err := f.ledger.ReceiveProduction(ctx, ledger.ProductionReceipt{ProductID: o.Lines[0].ProductID, Location: entity.LocationNG, Quantity: qty("1")})
	require.NoError(t, err)

	jo := route(o, "5")
	require.NoError(t, f.svc.Create(ctx, jo))
	_, err = f.engine.SetReservation(ctx, jo.Lines[0].LineID, qty("1"))
	require.NoError(t, err)
	assert.True(t, apperror.IsValidation(f.svc.Delete(ctx, jo.ID)), "reserved lines keep the order")

	clean := route(o, "5")
	require.NoError(t, f.svc.Create(ctx, clean))
	require.NoError(t, f.svc.Delete(ctx, clean.ID))
	_, err = f.svc.GetByID(ctx, clean.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestUpdateHeaderAndSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.confirmedOrder(t, "10", "3")
	jo := route(o, "8", "3")
	require.NoError(t, f.svc.Create(ctx, jo))

	due := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	assignee := "line 3"
	updated, err := f.svc.UpdateHeader(ctx, jo.ID, job_order.HeaderUpdate{DueDate: &due, AssignedTo: &assignee})
	require.NoError(t, err)
	assert.Equal(t, "line 3", updated.AssignedTo)
	require.NotNil(t, updated.DueDate)
	assert.True(t, due.Equal(*updated.DueDate))

	summary, err := f.svc.Summary(ctx, jo.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalItems)
	assert.Equal(t, qty("11"), summary.TotalQuantity)
	assert.Equal(t, qty("11"), summary.TotalToProduce)

	filter := job_order.ListFilter{SalesOrderID: &o.ID}
	list, err := f.svc.List(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}
