package quotation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/documents/quotation"
	"orderflow/internal/domain/documents/sales_order"
	"orderflow/internal/domain/notification"
	"orderflow/internal/domain/pricing"
	"orderflow/internal/infrastructure/notifier"
	"orderflow/internal/infrastructure/storage/memory"
)

type fixture struct {
	svc       *quotation.Service
	converter *sales_order.Converter
	orders    *memory.SalesOrderRepo
	events    *notifier.Recorder
}

func newFixture() fixture {
	txm := memory.NewTxManager()
	numerator := memory.NewNumerator()
	orders := memory.NewSalesOrderRepo()
	events := &notifier.Recorder{}
	prices := pricing.ProviderFunc(func(ctx context.Context, customerRef string, productID id.ID) (types.Money, error) {
		return types.MustMoney("12.50"), nil
	})

	svc := quotation.NewService(memory.NewQuotationRepo(), numerator, txm, prices, notification.NewDispatcher(events))
	converter := sales_order.NewConverter(orders, numerator, txm)
	svc.SetConverter(converter)
	return fixture{svc: svc, converter: converter, orders: orders, events: events}
}

func draft(t *testing.T, f fixture) *quotation.Quotation {
	t.Helper()
	q := quotation.NewQuotation("CRM-42", "Acme Ltd", "USD")
	q.AddLine(id.New(), types.MustQuantity("4"), types.MustMoney("10"))
	q.AddLine(id.New(), types.MustQuantity("2.5"), types.Zero())
	require.NoError(t, f.svc.Create(context.Background(), q))
	return q
}

func TestCreate_NumbersAndPricesLines(t *testing.T) {
	f := newFixture()
	q := draft(t, f)

	assert.Equal(t, quotation.StatusDraft, q.Status)
	assert.Equal(t, 1, q.Revision)
	assert.NotEmpty(t, q.Number)
	assert.True(t, types.MustMoney("12.50").Equal(q.Lines[1].UnitPrice), "missing price comes from the provider")
	assert.True(t, types.MustMoney("71.25").Equal(q.TotalAmount))

	stored, err := f.svc.GetByID(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Lines, 2)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("send then reject", func(t *testing.T) {
		f := newFixture()
		q := draft(t, f)

		sent, err := f.svc.Send(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, quotation.StatusSent, sent.Status)
		assert.NotNil(t, sent.SentAt)

		rejected, err := f.svc.Reject(ctx, q.ID, "too expensive")
		require.NoError(t, err)
		assert.Equal(t, quotation.StatusRejected, rejected.Status)
		assert.Equal(t, "too expensive", rejected.RejectionReason)

		_, err = f.svc.Send(ctx, q.ID)
		assert.True(t, apperror.IsImmutable(err))
		assert.Len(t, f.events.OfType(notification.QuotationRejected), 1)
	})

	t.Run("approve draft is an invalid transition", func(t *testing.T) {
		f := newFixture()
		q := draft(t, f)

		_, _, err := f.svc.Approve(ctx, q.ID)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeInvalidTransition, appErr.Code)
	})

	t.Run("empty quotation cannot be sent", func(t *testing.T) {
		f := newFixture()
		q := quotation.NewQuotation("CRM-1", "Empty Co", "USD")
		require.NoError(t, f.svc.Create(ctx, q))

		_, err := f.svc.Send(ctx, q.ID)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("expired quotation cannot be approved", func(t *testing.T) {
		f := newFixture()
		q := quotation.NewQuotation("CRM-1", "Late Co", "USD")
		q.AddLine(id.New(), types.MustQuantity("1"), types.MustMoney("5"))
		yesterday := time.Now().Add(-24 * time.Hour)
		q.ValidUntil = &yesterday
		require.NoError(t, f.svc.Create(ctx, q))
		_, err := f.svc.Send(ctx, q.ID)
		require.NoError(t, err)

		_, _, err = f.svc.Approve(ctx, q.ID)
		assert.True(t, apperror.IsValidation(err))

		stored, err := f.svc.GetByID(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, quotation.StatusSent, stored.Status)
	})
}

func TestApprove_ConvertsToSalesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := draft(t, f)
	_, err := f.svc.Send(ctx, q.ID)
	require.NoError(t, err)

	approved, orderID, err := f.svc.Approve(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotation.StatusApproved, approved.Status)

	order, err := f.orders.GetBySourceQuotation(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, sales_order.StatusPending, order.Status)
	assert.Equal(t, "Acme Ltd", order.CustomerName)
	assert.True(t, q.TotalAmount.Equal(order.TotalAmount))

	lines, err := f.orders.GetLines(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, q.Lines[0].ProductID, lines[0].ProductID)
	assert.Equal(t, q.Lines[1].Quantity, lines[1].Quantity)

	_, err = f.svc.Convert(ctx, q.ID)
	assert.True(t, apperror.IsAlreadyConverted(err))

	_, err = f.svc.Update(ctx, q.ID, func(doc *quotation.Quotation) error { return nil })
	assert.True(t, apperror.IsImmutable(err))

	assert.Len(t, f.events.OfType(notification.QuotationApproved), 1)
}

func TestConvertQuotation_ConcurrentAttemptsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := quotation.NewQuotation("CRM-42", "Acme Ltd", "USD")
	q.AddLine(id.New(), types.MustQuantity("1"), types.MustMoney("1"))
	q.Status = quotation.StatusApproved

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       int
		converted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.converter.ConvertQuotation(ctx, q)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case apperror.IsAlreadyConverted(err):
				converted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, converted)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := draft(t, f)

	updated, err := f.svc.Update(ctx, q.ID, func(doc *quotation.Quotation) error {
		doc.Status = quotation.StatusApproved
		doc.Lines = doc.Lines[:1]
		doc.Recalculate()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, quotation.StatusDraft, updated.Status, "status only changes through transitions")
	assert.True(t, types.MustMoney("40").Equal(updated.TotalAmount))

	_, err = f.svc.Update(ctx, q.ID, func(doc *quotation.Quotation) error {
		doc.Lines[0].Quantity = 0
		return nil
	})
	assert.True(t, apperror.IsValidation(err))

	stored, err := f.svc.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Lines, 1)
	assert.Equal(t, types.MustQuantity("4"), stored.Lines[0].Quantity)
}

func TestRevise(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := draft(t, f)

	_, err := f.svc.Revise(ctx, q.ID)
	assert.True(t, apperror.IsValidation(err), "drafts are edited in place")

	_, err = f.svc.Send(ctx, q.ID)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, q.ID, "")
	require.NoError(t, err)

	next, err := f.svc.Revise(ctx, q.ID)
	require.NoError(t, err)
	assert.NotEqual(t, q.ID, next.ID)
	assert.Equal(t, q.Number, next.Number)
	assert.Equal(t, 2, next.Revision)
	assert.Equal(t, "R2", next.RevisionLabel())
	require.NotNil(t, next.RevisedFromID)
	assert.Equal(t, q.ID, *next.RevisedFromID)
	assert.Equal(t, quotation.StatusDraft, next.Status)
	assert.Len(t, next.Lines, 2)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	q := draft(t, f)
	require.NoError(t, f.svc.Delete(ctx, q.ID))
	_, err := f.svc.GetByID(ctx, q.ID)
	assert.True(t, apperror.IsNotFound(err))

	sent := draft(t, f)
	_, err = f.svc.Send(ctx, sent.ID)
	require.NoError(t, err)
	assert.True(t, apperror.IsValidation(f.svc.Delete(ctx, sent.ID)))
}

func TestList_FiltersByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	draft(t, f)
	sent := draft(t, f)
	_, err := f.svc.Send(ctx, sent.ID)
	require.NoError(t, err)

	filter := quotation.ListFilter{}
	filter.Status = string(quotation.StatusSent)
	result, err := f.svc.List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, sent.ID, result.Items[0].ID)
}
