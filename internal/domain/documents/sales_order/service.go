package sales_order

import (
	"context"
	"fmt"

	"orderflow/internal/core/apperror"
	appctx "orderflow/internal/core/context"
	"orderflow/internal/core/id"
	"orderflow/internal/core/numerator"
	"orderflow/internal/core/tx"
	"orderflow/internal/domain"
	"orderflow/internal/domain/notification"
	"orderflow/pkg/logger"
)

// Service provides business operations for sales orders.
type Service struct {
	repo       Repository
	numerator  numerator.Generator
	txManager  tx.Manager
	events     *notification.Dispatcher
	production ProductionReader
	hooks      *domain.HookRegistry[*SalesOrder]
}

// NewService creates a new sales order service.
func NewService(
	repo Repository,
	numerator numerator.Generator,
	txManager tx.Manager,
	events *notification.Dispatcher,
) *Service {
	return &Service{
		repo:      repo,
		numerator: numerator,
		txManager: txManager,
		events:    events,
		hooks:     domain.NewHookRegistry[*SalesOrder](),
	}
}

// SetProductionReader wires the job order side used for the fulfillment
// projection and the cancellation guard.
func (s *Service) SetProductionReader(r ProductionReader) {
	s.production = r
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*SalesOrder] {
	return s.hooks
}

// Create stores a sales order entered directly (not converted).
func (s *Service) Create(ctx context.Context, doc *SalesOrder) error {
	if err := s.hooks.Run(ctx, domain.BeforeCreate, doc); err != nil {
		return err
	}

	doc.Status = StatusPending
	if doc.PaymentStatus == "" {
		doc.PaymentStatus = PaymentUnpaid
	}
	if doc.ShippingStatus == "" {
		doc.ShippingStatus = ShippingNotShipped
	}
	doc.Recalculate()
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	if doc.Number == "" {
		number, err := s.numerator.GetNextNumber(ctx, NumeratorConfig, &numerator.Options{Strategy: NumeratorStrategy}, doc.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		doc.Number = number
	}
	actor := appctx.GetActorID(ctx)
	doc.CreatedBy, doc.UpdatedBy = actor, actor

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "sales order created", "id", doc.ID, "number", doc.Number)
	s.events.Publish(ctx, notification.NewEvent(notification.SalesOrderCreated, DocumentType, doc.ID, map[string]any{
		"number":       doc.Number,
		"customerName": doc.CustomerName,
		"totalAmount":  doc.TotalAmount.String(),
	}))
	return nil
}

// GetByID retrieves a sales order with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*SalesOrder, error) {
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

// GetBySourceQuotation returns the order converted from quotationID.
func (s *Service) GetBySourceQuotation(ctx context.Context, quotationID id.ID) (*SalesOrder, error) {
	doc, err := s.repo.GetBySourceQuotation(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, doc.ID)
}

// List retrieves sales orders with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*SalesOrder], error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) loadForUpdate(ctx context.Context, docID id.ID) (*SalesOrder, error) {
	doc, err := s.repo.GetForUpdate(ctx, docID)
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

// Update edits a pending order. apply receives the locked current document.
func (s *Service) Update(ctx context.Context, docID id.ID, apply func(doc *SalesOrder) error) (*SalesOrder, error) {
	var doc *SalesOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.loadForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.CanModifyLines(); err != nil {
			return err
		}
		status, source := doc.Status, doc.SourceQuotationID
		if err := apply(doc); err != nil {
			return err
		}
		doc.Status, doc.SourceQuotationID = status, source
		doc.Recalculate()
		if err := s.hooks.Run(ctx, domain.BeforeUpdate, doc); err != nil {
			return err
		}
		if err := doc.Validate(ctx); err != nil {
			return err
		}
		doc.Stamp(appctx.GetActorID(ctx))
		if err := s.repo.Update(ctx, doc); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) mutate(ctx context.Context, docID id.ID, change func(ctx context.Context, doc *SalesOrder) error) (*SalesOrder, error) {
	var doc *SalesOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.loadForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := change(ctx, doc); err != nil {
			return err
		}
		doc.UpdatedBy = appctx.GetActorID(ctx)
		if err := s.repo.Update(ctx, doc); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Confirm moves a pending order to confirmed.
func (s *Service) Confirm(ctx context.Context, docID id.ID) (*SalesOrder, error) {
	doc, err := s.mutate(ctx, docID, func(ctx context.Context, doc *SalesOrder) error {
		return doc.TransitionTo(StatusConfirmed)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sales order confirmed", "id", doc.ID, "number", doc.Number)
	s.events.Publish(ctx, notification.NewEvent(notification.SalesOrderConfirmed, DocumentType, doc.ID, map[string]any{
		"number":       doc.Number,
		"customerName": doc.CustomerName,
	}))
	return doc, nil
}

// MarkProcessing moves a confirmed order to processing. Orders already in
// processing are left alone. Called when the first job order is routed.
func (s *Service) MarkProcessing(ctx context.Context, docID id.ID) error {
	_, err := s.mutate(ctx, docID, func(ctx context.Context, doc *SalesOrder) error {
		if doc.Status == StatusProcessing {
			return nil
		}
		return doc.TransitionTo(StatusProcessing)
	})
	return err
}

// Ship moves a processing order to shipped.
func (s *Service) Ship(ctx context.Context, docID id.ID) (*SalesOrder, error) {
	return s.mutate(ctx, docID, func(ctx context.Context, doc *SalesOrder) error {
		return doc.TransitionTo(StatusShipped)
	})
}

// Deliver moves a shipped order to delivered.
func (s *Service) Deliver(ctx context.Context, docID id.ID) (*SalesOrder, error) {
	return s.mutate(ctx, docID, func(ctx context.Context, doc *SalesOrder) error {
		return doc.TransitionTo(StatusDelivered)
	})
}

// Cancel cancels a non-terminal order. Orders with live job orders must have
// them cancelled first.
func (s *Service) Cancel(ctx context.Context, docID id.ID) (*SalesOrder, error) {
	doc, err := s.mutate(ctx, docID, func(ctx context.Context, doc *SalesOrder) error {
		if s.production != nil && !doc.Status.IsTerminal() {
			snapshots, err := s.production.ProductionSnapshots(ctx, doc.ID)
			if err != nil {
				return fmt.Errorf("load job orders: %w", err)
			}
			for _, jo := range snapshots {
				if !jo.Cancelled {
					return apperror.NewValidation("sales order has active job orders").
						WithDetail("jobOrderId", jo.JobOrderID.String())
				}
			}
		}
		return doc.TransitionTo(StatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sales order cancelled", "id", doc.ID, "number", doc.Number)
	s.events.Publish(ctx, notification.NewEvent(notification.SalesOrderCancelled, DocumentType, doc.ID, map[string]any{
		"number": doc.Number,
	}))
	return doc, nil
}

// SetPaymentStatus records collection progress.
func (s *Service) SetPaymentStatus(ctx context.Context, docID id.ID, status PaymentStatus) (*SalesOrder, error) {
	if !status.IsValid() {
		return nil, apperror.NewValidation("invalid payment status").
			WithDetail("value", string(status))
	}
	return s.mutate(ctx, docID, func(ctx context.Context, doc *SalesOrder) error {
		if doc.Status == StatusCancelled {
			return apperror.NewImmutableDocument("sales order", doc.ID.String(), string(doc.Status))
		}
		doc.PaymentStatus = status
		doc.Touch()
		return nil
	})
}

// SetShippingStatus records dispatch progress.
func (s *Service) SetShippingStatus(ctx context.Context, docID id.ID, status ShippingStatus) (*SalesOrder, error) {
	if !status.IsValid() {
		return nil, apperror.NewValidation("invalid shipping status").
			WithDetail("value", string(status))
	}
	return s.mutate(ctx, docID, func(ctx context.Context, doc *SalesOrder) error {
		if doc.Status.IsTerminal() {
			return apperror.NewImmutableDocument("sales order", doc.ID.String(), string(doc.Status))
		}
		doc.ShippingStatus = status
		doc.Touch()
		return nil
	})
}

// Fulfillment projects the order's production status from its job orders.
func (s *Service) Fulfillment(ctx context.Context, docID id.ID) (FulfillmentStatus, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return "", err
	}
	var snapshots []ProductionSnapshot
	if s.production != nil {
		snapshots, err = s.production.ProductionSnapshots(ctx, docID)
		if err != nil {
			return "", fmt.Errorf("load job orders: %w", err)
		}
	}
	return ProjectStatus(doc.Status, snapshots), nil
}
