// Package notification defines the outbound notification boundary. Events
// are emitted after a state change has committed; delivery problems are
// logged and never undo the change.
package notification

import (
	"context"
	"time"

	"orderflow/internal/core/id"
	"orderflow/pkg/logger"
)

// Event types.
const (
	QuotationSent        = "quotation.sent"
	QuotationApproved    = "quotation.approved"
	QuotationRejected    = "quotation.rejected"
	SalesOrderCreated    = "sales_order.created"
	SalesOrderConfirmed  = "sales_order.confirmed"
	SalesOrderCancelled  = "sales_order.cancelled"
	JobOrderCreated      = "job_order.created"
	JobOrderStatusChange = "job_order.status_changed"
	ReservationChanged   = "job_order_line.reservation_changed"
	ShipmentRecorded     = "job_order_line.shipment_recorded"
	LowStock             = "product.low_stock"
)

// Event is a notification about a committed change.
type Event struct {
	Type          string         `json:"type"`
	AggregateType string         `json:"aggregateType"`
	AggregateID   id.ID          `json:"aggregateId"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
}

// NewEvent creates an Event stamped now.
func NewEvent(eventType, aggregateType string, aggregateID id.ID, payload map[string]any) Event {
	return Event{
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// Notifier delivers events (outbox, log, message bus).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Dispatcher is what domain services hold. Publish never fails.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
}

// NewDispatcher wraps notifier. A nil notifier discards events.
func NewDispatcher(notifier Notifier) *Dispatcher {
	return &Dispatcher{notifier: notifier, timeout: 5 * time.Second}
}

// Publish hands the event to the notifier. It must be called after the
// transaction that produced the event has committed.
func (d *Dispatcher) Publish(ctx context.Context, event Event) {
	if d == nil || d.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(nctx, event); err != nil {
		logger.Warn(ctx, "notification delivery failed",
			"event_type", event.Type,
			"aggregate_id", event.AggregateID,
			"error", err,
		)
	}
}

// Multi fans an event out to several notifiers and reports the first error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
