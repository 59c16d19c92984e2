// Package reconciliation keeps job order lines and the location ledger in
// step. Every reservation or shipment write recomputes the line's derived
// quantities and appends the matching ledger entries in one transaction,
// under a per-line lock.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/lock"
	"orderflow/internal/core/tx"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/audit"
	"orderflow/internal/domain/documents/job_order"
	"orderflow/internal/domain/ledger"
	"orderflow/internal/domain/notification"
	"orderflow/pkg/logger"
)

// DefaultAllocationOrder is the priority in which main locations supply stock.
var DefaultAllocationOrder = []entity.Location{entity.LocationNG, entity.LocationPH}

// Config tunes the engine.
type Config struct {
	// AllocationOrder lists the main locations reservations draw from, in
	// priority order. Releases credit back in reverse order.
	AllocationOrder []entity.Location
}

// Engine implements the reservation and shipment operations on job order lines.
type Engine struct {
	jobs      job_order.Repository
	ledger    *ledger.Service
	txManager tx.Manager
	locker    lock.Locker
	audit     *audit.Recorder
	events    *notification.Dispatcher
	order     []entity.Location
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEngine creates an Engine. audit and events may be nil.
func NewEngine(
	jobs job_order.Repository,
	ledgerSvc *ledger.Service,
	txManager tx.Manager,
	locker lock.Locker,
	recorder *audit.Recorder,
	events *notification.Dispatcher,
	cfg Config,
) (*Engine, error) {
	order := cfg.AllocationOrder
	if len(order) == 0 {
		order = DefaultAllocationOrder
	}
	seen := make(map[entity.Location]bool, len(order))
	for _, loc := range order {
		if !loc.IsValid() || loc == entity.LocationReserved {
			return nil, fmt.Errorf("invalid allocation location %q", loc)
		}
		if seen[loc] {
			return nil, fmt.Errorf("duplicate allocation location %q", loc)
		}
		seen[loc] = true
	}

	return &Engine{
		jobs:      jobs,
		ledger:    ledgerSvc,
		txManager: txManager,
		locker:    locker,
		audit:     recorder,
		events:    events,
		order:     append([]entity.Location(nil), order...),
		tracer:    otel.Tracer("orderflow/reconciliation"),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// AllocationOrder returns the configured main-location priority.
func (e *Engine) AllocationOrder() []entity.Location {
	return append([]entity.Location(nil), e.order...)
}

// mutation is one line write prepared by an operation.
type mutation struct {
	line    *job_order.Line
	before  job_order.Line
	action  audit.Action
	entries []entity.LedgerEntry
}

// mutate serializes fn on lineID: per-line lock, then a transaction that
// re-reads the line under a row lock and checks the job order accepts
// changes. fn edits the inputs of the line in place and returns the audit
// action; the engine plans and appends ledger entries, recomputes derived
// fields and persists the line in the same transaction.
func (e *Engine) mutate(ctx context.Context, span trace.Span, lineID id.ID, fn func(ctx context.Context, line *job_order.Line) (audit.Action, error)) (*mutation, error) {
	var m *mutation
	err := lock.WithLock(ctx, e.locker, job_order.LineLockKey(lineID), func(ctx context.Context) error {
		return e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			line, err := e.jobs.GetLineForUpdate(ctx, lineID)
			if err != nil {
				return err
			}
			doc, err := e.jobs.GetByID(ctx, line.JobOrderID)
			if err != nil {
				return err
			}
			if err := doc.CanMutateLines(); err != nil {
				return err
			}

			before := line.Clone()
			action, err := fn(ctx, line)
			if err != nil {
				return err
			}

			entries, err := e.apply(ctx, &before, line)
			if err != nil {
				return err
			}
			inputsChanged := line.Reserved != before.Reserved || line.Tranches != before.Tranches
			if derivedChanged := line.Recompute(); !inputsChanged && !derivedChanged {
				m = &mutation{line: line, before: before}
				return nil
			}
			line.Version++
			line.UpdatedAt = e.now()
			if err := e.jobs.UpdateLine(ctx, line); err != nil {
				return fmt.Errorf("update line: %w", err)
			}

			if err := e.audit.Record(ctx, job_order.LineType, line.LineID, action, lineChanges(&before, line)); err != nil {
				return err
			}
			m = &mutation{line: line, before: before, action: action, entries: entries}
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("ledger.entries", len(m.entries)))
	return m, nil
}

// apply locks the product's allocation balances, plans entries for the move
// from before to line and appends them.
func (e *Engine) apply(ctx context.Context, before, line *job_order.Line) ([]entity.LedgerEntry, error) {
	from := state{Reserved: before.Reserved, Shipped: before.Derive().Shipped}
	to := state{Reserved: line.Reserved, Shipped: line.Derive().Shipped}
	if from == to {
		return nil, nil
	}

	locations := append(e.AllocationOrder(), entity.LocationReserved)
	balances, err := e.ledger.Lock(ctx, line.ProductID, locations...)
	if err != nil {
		return nil, err
	}

	ref := entity.DocumentRef{Type: job_order.LineType, ID: line.JobOrderID, LineID: line.LineID}
	p := newPlanner(line, e.order, balances, ref)
	if err := p.apply(from, to); err != nil {
		return nil, err
	}
	if len(p.entries) == 0 {
		return nil, nil
	}
	return e.ledger.Append(ctx, p.entries, ledger.AppendOptions{})
}

func (e *Engine) startSpan(ctx context.Context, name string, lineID id.ID) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "reconciliation."+name,
		trace.WithAttributes(attribute.String("job_order_line.id", lineID.String())))
}

// SetReservation sets how much of the line is reserved. Raising it draws
// main stock into RESERVED in allocation order (INSUFFICIENT_STOCK when the
// main locations are short); lowering it credits the difference back to the
// locations it was drawn from. The reservation can never drop below what
// has already shipped or exceed the line quantity.
func (e *Engine) SetReservation(ctx context.Context, lineID id.ID, reserved types.Quantity) (*job_order.Line, error) {
	ctx, span := e.startSpan(ctx, "SetReservation", lineID)
	defer span.End()

	if reserved.IsNegative() {
		return nil, apperror.NewValidation("reserved cannot be negative").
			WithDetail("field", "reserved").
			WithDetail("value", reserved.String())
	}

	m, err := e.mutate(ctx, span, lineID, func(ctx context.Context, line *job_order.Line) (audit.Action, error) {
		if reserved > line.Quantity {
			return "", apperror.NewValidation("reserved cannot exceed quantity").
				WithDetail("field", "reserved").
				WithDetail("quantity", line.Quantity.String()).
				WithDetail("value", reserved.String())
		}
		if shipped := line.Derive().Shipped; reserved < shipped {
			return "", apperror.NewValidation("reserved cannot be below shipped").
				WithDetail("field", "reserved").
				WithDetail("shipped", shipped.String()).
				WithDetail("value", reserved.String())
		}
		line.Reserved = reserved
		return audit.ActionReservationSet, nil
	})
	if err != nil {
		return nil, err
	}

	if m.line.Reserved != m.before.Reserved {
		logger.Info(ctx, "reservation changed",
			"line_id", lineID,
			"product_id", m.line.ProductID,
			"old_reserved", m.before.Reserved.String(),
			"new_reserved", m.line.Reserved.String(),
			"entries", len(m.entries))
		e.events.Publish(ctx, notification.NewEvent(notification.ReservationChanged, job_order.LineType, lineID, map[string]any{
			"jobOrderId":  m.line.JobOrderID.String(),
			"oldReserved": m.before.Reserved.String(),
			"newReserved": m.line.Reserved.String(),
			"ready":       m.line.Ready.String(),
			"toProduce":   m.line.ToProduce.String(),
		}))
	}
	return m.line, nil
}

// ShipmentRequest records one tranche.
type ShipmentRequest struct {
	LineID id.ID
	// Index is the 1-based tranche slot.
	Index int
	// Amount overwrites the slot; zero clears it.
	Amount types.Quantity
	// Override allows shipping beyond the reservation. The uncovered part
	// ships straight from the main locations.
	Override bool
}

// RecordShipmentTranche overwrites one tranche and books the difference to
// the previous value as sale_out entries (a decrease books an offsetting
// credit). Shipping beyond the reservation fails with OVER_SHIPMENT unless
// Override is set.
func (e *Engine) RecordShipmentTranche(ctx context.Context, req ShipmentRequest) (*job_order.Line, error) {
	ctx, span := e.startSpan(ctx, "RecordShipmentTranche", req.LineID)
	defer span.End()
	span.SetAttributes(
		attribute.Int("tranche.index", req.Index),
		attribute.Bool("tranche.override", req.Override))

	if err := job_order.ValidateTrancheIndex(req.Index); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, apperror.NewValidation("shipment amount cannot be negative").
			WithDetail("field", "amount").
			WithDetail("value", req.Amount.String())
	}

	m, err := e.mutate(ctx, span, req.LineID, func(ctx context.Context, line *job_order.Line) (audit.Action, error) {
		line.Tranches[req.Index-1] = req.Amount
		shipped := line.Derive().Shipped
		if shipped > line.Reserved && !req.Override {
			return "", apperror.NewOverShipment(line.LineID.String(), shipped.String(), line.Reserved.String()).
				WithDetail("index", req.Index)
		}
		return audit.ActionTrancheRecorded, nil
	})
	if err != nil {
		return nil, err
	}

	previous := m.before.Tranches[req.Index-1]
	if previous != req.Amount {
		logger.Info(ctx, "shipment tranche recorded",
			"line_id", req.LineID,
			"product_id", m.line.ProductID,
			"index", req.Index,
			"previous", previous.String(),
			"amount", req.Amount.String(),
			"shipped", m.line.Shipped.String(),
			"override", req.Override,
			"entries", len(m.entries))
		e.events.Publish(ctx, notification.NewEvent(notification.ShipmentRecorded, job_order.LineType, req.LineID, map[string]any{
			"jobOrderId":   m.line.JobOrderID.String(),
			"index":        req.Index,
			"previous":     previous.String(),
			"amount":       req.Amount.String(),
			"shipped":      m.line.Shipped.String(),
			"orderBalance": m.line.OrderBalance.String(),
			"override":     req.Override,
		}))
	}
	return m.line, nil
}

// RecomputeAll recomputes the derived fields of a line from its stored
// inputs and persists them only if the stored snapshot differed. It never
// touches the ledger. Repeated calls return identical lines.
func (e *Engine) RecomputeAll(ctx context.Context, lineID id.ID) (*job_order.Line, bool, error) {
	ctx, span := e.startSpan(ctx, "RecomputeAll", lineID)
	defer span.End()

	var (
		line    *job_order.Line
		changed bool
	)
	err := lock.WithLock(ctx, e.locker, job_order.LineLockKey(lineID), func(ctx context.Context) error {
		return e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			var err error
			line, err = e.jobs.GetLineForUpdate(ctx, lineID)
			if err != nil {
				return err
			}
			if err := line.Validate(); err != nil {
				return apperror.NewIntegrity("job order line inputs violate invariants").
					WithDetail("lineId", lineID.String()).
					WithCause(err)
			}
			before := line.Clone()
			if changed = line.Recompute(); !changed {
				return nil
			}
			line.Version++
			line.UpdatedAt = e.now()
			if err := e.jobs.UpdateLine(ctx, line); err != nil {
				return fmt.Errorf("update line: %w", err)
			}
			return e.audit.Record(ctx, job_order.LineType, line.LineID, audit.ActionRecomputed, lineChanges(&before, line))
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if apperror.IsIntegrity(err) {
			logger.Error(ctx, "line integrity check failed", "line_id", lineID, "error", err)
		}
		return nil, false, err
	}
	if changed {
		logger.Info(ctx, "line derived fields repaired", "line_id", lineID)
	}
	return line, changed, nil
}

// RecomputeReport summarizes a bulk recompute.
type RecomputeReport struct {
	Lines    int     `json:"lines"`
	Repaired []id.ID `json:"repaired,omitempty"`
}

// RecomputeEverything runs RecomputeAll over every stored line.
func (e *Engine) RecomputeEverything(ctx context.Context) (RecomputeReport, error) {
	ids, err := e.jobs.ListLineIDs(ctx)
	if err != nil {
		return RecomputeReport{}, fmt.Errorf("list lines: %w", err)
	}
	report := RecomputeReport{Lines: len(ids)}
	for _, lineID := range ids {
		_, changed, err := e.RecomputeAll(ctx, lineID)
		if err != nil {
			return report, err
		}
		if changed {
			report.Repaired = append(report.Repaired, lineID)
		}
	}
	return report, nil
}

// ReleaseHeld implements job_order.ReservationReleaser. The reservation is
// lowered to what has shipped and the held stock returns to the main
// locations. The caller holds the line lock and a transaction.
func (e *Engine) ReleaseHeld(ctx context.Context, line *job_order.Line) error {
	if !line.Held().IsPositive() {
		return nil
	}
	before := line.Clone()
	line.Reserved = line.Derive().Shipped

	entries, err := e.apply(ctx, &before, line)
	if err != nil {
		return err
	}
	line.Recompute()
	line.Version++
	line.UpdatedAt = e.now()
	if err := e.jobs.UpdateLine(ctx, line); err != nil {
		return fmt.Errorf("update line: %w", err)
	}
	if err := e.audit.Record(ctx, job_order.LineType, line.LineID, audit.ActionReservationReleased, lineChanges(&before, line)); err != nil {
		return err
	}
	logger.Info(ctx, "reservation released",
		"line_id", line.LineID,
		"released", before.Held().String(),
		"entries", len(entries))
	return nil
}

// lineChanges renders the audited difference between two line states.
func lineChanges(before, after *job_order.Line) map[string]any {
	snapshot := func(l *job_order.Line) map[string]any {
		out := map[string]any{
			"reserved":     l.Reserved.String(),
			"shipped":      l.Shipped.String(),
			"ready":        l.Ready.String(),
			"toProduce":    l.ToProduce.String(),
			"orderBalance": l.OrderBalance.String(),
		}
		for i, t := range l.Tranches {
			out[fmt.Sprintf("tranche%d", i+1)] = t.String()
		}
		return out
	}
	return audit.Diff(snapshot(before), snapshot(after))
}

var _ job_order.ReservationReleaser = (*Engine)(nil)
