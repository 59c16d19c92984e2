package job_order

import (
	"context"
	"fmt"
	"time"

	"orderflow/internal/core/apperror"
	appctx "orderflow/internal/core/context"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/lock"
	"orderflow/internal/core/numerator"
	"orderflow/internal/core/tx"
	"orderflow/internal/core/types"
	"orderflow/internal/domain"
	"orderflow/internal/domain/documents/sales_order"
	"orderflow/internal/domain/notification"
	"orderflow/pkg/logger"
)

// SalesOrders is the sales order side used for routing.
type SalesOrders interface {
	GetByID(ctx context.Context, docID id.ID) (*sales_order.SalesOrder, error)
	// MarkProcessing locks the order for the rest of the transaction and
	// moves it from confirmed to processing.
	MarkProcessing(ctx context.Context, docID id.ID) error
}

// ReservationReleaser returns a line's held reservation to the main
// locations. The caller holds the line lock and an open transaction.
type ReservationReleaser interface {
	ReleaseHeld(ctx context.Context, line *Line) error
}

// Service provides business operations for job orders.
type Service struct {
	repo        Repository
	salesOrders SalesOrders
	numerator   numerator.Generator
	txManager   tx.Manager
	locker      lock.Locker
	releaser    ReservationReleaser
	events      *notification.Dispatcher
}

// NewService creates a new job order service.
func NewService(
	repo Repository,
	salesOrders SalesOrders,
	numerator numerator.Generator,
	txManager tx.Manager,
	locker lock.Locker,
	events *notification.Dispatcher,
) *Service {
	return &Service{
		repo:        repo,
		salesOrders: salesOrders,
		numerator:   numerator,
		txManager:   txManager,
		locker:      locker,
		events:      events,
	}
}

// SetReleaser wires the reconciliation engine used on cancellation.
func (s *Service) SetReleaser(r ReservationReleaser) {
	s.releaser = r
}

// Create routes sales order lines to production. The sales order must be
// confirmed or processing; across its live job orders the routed quantity
// of each sales order line may not exceed the ordered quantity. The first
// routing moves a confirmed order to processing.
func (s *Service) Create(ctx context.Context, doc *JobOrder) error {
	doc.Status = StatusPlanning
	doc.renumber()

	so, err := s.salesOrders.GetByID(ctx, doc.SalesOrderID)
	if err != nil {
		return err
	}
	if !so.Status.AcceptsRouting() {
		return apperror.NewValidation("sales order is not open for production").
			WithDetail("salesOrderId", so.ID.String()).
			WithDetail("status", string(so.Status))
	}
	for i := range doc.Lines {
		l := &doc.Lines[i]
		soLine, ok := so.Line(l.SalesOrderLineID)
		if !ok {
			return apperror.NewValidation("line does not belong to the sales order").
				WithDetail("lineNo", l.LineNo).
				WithDetail("salesOrderLineId", l.SalesOrderLineID.String())
		}
		if id.IsNil(l.ProductID) {
			l.ProductID = soLine.ProductID
		}
		if l.ProductID != soLine.ProductID {
			return apperror.NewValidation("product differs from the sales order line").
				WithDetail("lineNo", l.LineNo)
		}
		if id.IsNil(l.LineID) {
			l.LineID = id.New()
		}
		l.Version = 1
		l.Sources = make(map[entity.Location]types.Quantity)
		l.Reserved = 0
		l.Tranches = [MaxTranches]types.Quantity{}
		l.Recompute()
	}
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	actor := appctx.GetActorID(ctx)
	doc.CreatedBy, doc.UpdatedBy = actor, actor

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.salesOrders.MarkProcessing(ctx, so.ID); err != nil {
			return fmt.Errorf("mark sales order processing: %w", err)
		}
		if err := s.checkRemaining(ctx, so, doc); err != nil {
			return err
		}

		number, err := s.numerator.GetNextNumber(ctx, NumeratorConfig, &numerator.Options{Strategy: NumeratorStrategy}, doc.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		doc.Number = number

		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := s.repo.InsertLines(ctx, doc.ID, doc.Lines); err != nil {
			return fmt.Errorf("insert lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "job order created",
		"id", doc.ID,
		"number", doc.Number,
		"sales_order_id", doc.SalesOrderID,
		"lines", len(doc.Lines))
	s.events.Publish(ctx, notification.NewEvent(notification.JobOrderCreated, DocumentType, doc.ID, map[string]any{
		"number":       doc.Number,
		"salesOrderId": doc.SalesOrderID.String(),
	}))
	return nil
}

// checkRemaining enforces the routing limit per sales order line.
func (s *Service) checkRemaining(ctx context.Context, so *sales_order.SalesOrder, doc *JobOrder) error {
	existing, err := s.repo.ListBySalesOrder(ctx, so.ID)
	if err != nil {
		return fmt.Errorf("list job orders: %w", err)
	}
	routed := make(map[id.ID]types.Quantity)
	for _, jo := range existing {
		if jo.Status == StatusCancelled || jo.ID == doc.ID {
			continue
		}
		lines, err := s.repo.GetLines(ctx, jo.ID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		for _, l := range lines {
			routed[l.SalesOrderLineID] += l.Quantity
		}
	}
	for _, l := range doc.Lines {
		routed[l.SalesOrderLineID] += l.Quantity
	}
	for _, soLine := range so.Lines {
		if total := routed[soLine.LineID]; total > soLine.Quantity {
			return apperror.NewValidation("routed quantity exceeds the sales order line").
				WithDetail("salesOrderLineId", soLine.LineID.String()).
				WithDetail("ordered", soLine.Quantity.String()).
				WithDetail("routed", total.String())
		}
	}
	return nil
}

// GetByID retrieves a job order with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*JobOrder, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	doc.Lines = lines
	return doc, nil
}

// GetLine retrieves one line.
func (s *Service) GetLine(ctx context.Context, lineID id.ID) (*Line, error) {
	return s.repo.GetLine(ctx, lineID)
}

// List retrieves job orders with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*JobOrder], error) {
	return s.repo.List(ctx, filter)
}

// Summary aggregates the lines of a job order.
func (s *Service) Summary(ctx context.Context, docID id.ID) (Summary, error) {
	doc, err := s.GetByID(ctx, docID)
	if err != nil {
		return Summary{}, err
	}
	return doc.Summarize(), nil
}

// HeaderUpdate carries editable header fields.
type HeaderUpdate struct {
	DueDate      *time.Time
	AssignedTo   *string
	Instructions *string
	Comment      *string
}

// UpdateHeader edits scheduling fields of a non-terminal order.
func (s *Service) UpdateHeader(ctx context.Context, docID id.ID, upd HeaderUpdate) (*JobOrder, error) {
	var doc *JobOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Status.IsTerminal() {
			return apperror.NewImmutableDocument("job order", doc.ID.String(), string(doc.Status))
		}
		if upd.DueDate != nil {
			doc.DueDate = upd.DueDate
		}
		if upd.AssignedTo != nil {
			doc.AssignedTo = *upd.AssignedTo
		}
		if upd.Instructions != nil {
			doc.Instructions = *upd.Instructions
		}
		if upd.Comment != nil {
			doc.Comment = *upd.Comment
		}
		doc.Stamp(appctx.GetActorID(ctx))
		return s.repo.Update(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, docID)
}

func (s *Service) transition(ctx context.Context, docID id.ID, target Status) (*JobOrder, error) {
	var (
		doc  *JobOrder
		from Status
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Lines, err = s.repo.GetLines(ctx, docID); err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		from = doc.Status
		if err := doc.TransitionTo(target); err != nil {
			return err
		}
		doc.UpdatedBy = appctx.GetActorID(ctx)
		return s.repo.Update(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	s.statusChanged(ctx, doc, from)
	return doc, nil
}

func (s *Service) statusChanged(ctx context.Context, doc *JobOrder, from Status) {
	logger.Info(ctx, "job order status changed",
		"id", doc.ID,
		"number", doc.Number,
		"from", from,
		"to", doc.Status)
	s.events.Publish(ctx, notification.NewEvent(notification.JobOrderStatusChange, DocumentType, doc.ID, map[string]any{
		"number": doc.Number,
		"from":   string(from),
		"to":     string(doc.Status),
	}))
}

// Start moves a planning order into production.
func (s *Service) Start(ctx context.Context, docID id.ID) (*JobOrder, error) {
	return s.transition(ctx, docID, StatusInProgress)
}

// Hold pauses the order. Line mutations are rejected while on hold.
func (s *Service) Hold(ctx context.Context, docID id.ID) (*JobOrder, error) {
	return s.transition(ctx, docID, StatusOnHold)
}

// Resume returns an on-hold order to production.
func (s *Service) Resume(ctx context.Context, docID id.ID) (*JobOrder, error) {
	return s.transition(ctx, docID, StatusInProgress)
}

// Complete closes the order once every line is fully shipped.
func (s *Service) Complete(ctx context.Context, docID id.ID) (*JobOrder, error) {
	return s.transition(ctx, docID, StatusCompleted)
}

// Cancel cancels the order and returns every line's held reservation to
// the main locations. All line locks are held for the whole operation.
func (s *Service) Cancel(ctx context.Context, docID id.ID) (*JobOrder, error) {
	lines, err := s.repo.GetLines(ctx, docID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(lines))
	for _, l := range lines {
		keys = append(keys, LineLockKey(l.LineID))
	}

	var (
		doc  *JobOrder
		from Status
	)
	err = lock.WithLocks(ctx, s.locker, keys, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			var err error
			doc, err = s.repo.GetForUpdate(ctx, docID)
			if err != nil {
				return err
			}
			from = doc.Status
			if err := doc.TransitionTo(StatusCancelled); err != nil {
				return err
			}
			for _, l := range lines {
				line, err := s.repo.GetLineForUpdate(ctx, l.LineID)
				if err != nil {
					return err
				}
				if !line.Held().IsPositive() {
					continue
				}
				if s.releaser == nil {
					return apperror.NewInternal(fmt.Errorf("reservation releaser is not configured"))
				}
				if err := s.releaser.ReleaseHeld(ctx, line); err != nil {
					return fmt.Errorf("release line %s: %w", line.LineID, err)
				}
			}
			doc.UpdatedBy = appctx.GetActorID(ctx)
			return s.repo.Update(ctx, doc)
		})
	})
	if err != nil {
		return nil, err
	}

	s.statusChanged(ctx, doc, from)
	return s.GetByID(ctx, docID)
}

// Delete removes a planning order that never touched the ledger.
func (s *Service) Delete(ctx context.Context, docID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Status != StatusPlanning {
			return apperror.NewValidation("only planning job orders can be deleted").
				WithDetail("status", string(doc.Status))
		}
		lines, err := s.repo.GetLines(ctx, docID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		for _, l := range lines {
			if !l.Reserved.IsZero() || !l.Derive().Shipped.IsZero() {
				return apperror.NewValidation("job order has reservations or shipments").
					WithDetail("lineId", l.LineID.String())
			}
		}
		return s.repo.Delete(ctx, docID)
	})
}

// ProductionSnapshots implements sales_order.ProductionReader.
func (s *Service) ProductionSnapshots(ctx context.Context, salesOrderID id.ID) ([]sales_order.ProductionSnapshot, error) {
	orders, err := s.repo.ListBySalesOrder(ctx, salesOrderID)
	if err != nil {
		return nil, err
	}
	out := make([]sales_order.ProductionSnapshot, 0, len(orders))
	for _, jo := range orders {
		lines, err := s.repo.GetLines(ctx, jo.ID)
		if err != nil {
			return nil, fmt.Errorf("get lines: %w", err)
		}
		snap := sales_order.ProductionSnapshot{
			JobOrderID:    jo.ID,
			Cancelled:     jo.Status == StatusCancelled,
			OrderBalances: make([]types.Quantity, 0, len(lines)),
		}
		for _, l := range lines {
			snap.OrderBalances = append(snap.OrderBalances, l.Derive().OrderBalance)
		}
		out = append(out, snap)
	}
	return out, nil
}

var _ sales_order.ProductionReader = (*Service)(nil)
