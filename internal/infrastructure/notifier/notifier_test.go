package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/id"
	"orderflow/internal/domain/notification"
)

func TestRecorder_FiltersByType(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()

	require.NoError(t, r.Notify(ctx, notification.NewEvent(notification.QuotationSent, "quotation", id.New(), nil)))
	require.NoError(t, r.Notify(ctx, notification.NewEvent(notification.ShipmentRecorded, "job_order_line", id.New(), nil)))

	assert.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(notification.QuotationSent), 1)
	assert.Empty(t, r.OfType(notification.LowStock))
}

func TestDispatcher_SwallowsNotifierErrors(t *testing.T) {
	r := &Recorder{Err: errors.New("smtp down")}
	d := notification.NewDispatcher(r)

	assert.NotPanics(t, func() {
		d.Publish(context.Background(), notification.NewEvent(notification.SalesOrderConfirmed, "sales_order", id.New(), nil))
	})
	assert.Len(t, r.Events(), 1)
}

func TestRedisPublisher_Channel(t *testing.T) {
	p := NewRedisPublisher(nil, "orderflow.")
	assert.Equal(t, "orderflow.quotation.sent", p.Channel(notification.QuotationSent))
}
