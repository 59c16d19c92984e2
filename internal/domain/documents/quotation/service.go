package quotation

import (
	"context"
	"fmt"
	"time"

	"orderflow/internal/core/apperror"
	appctx "orderflow/internal/core/context"
	"orderflow/internal/core/id"
	"orderflow/internal/core/numerator"
	"orderflow/internal/core/tx"
	"orderflow/internal/domain"
	"orderflow/internal/domain/notification"
	"orderflow/internal/domain/pricing"
	"orderflow/pkg/logger"
)

// Converter turns an approved quotation into a sales order inside the
// caller's transaction and returns the new order id.
type Converter interface {
	ConvertQuotation(ctx context.Context, q *Quotation) (id.ID, error)
}

// Service provides business operations for quotation documents.
type Service struct {
	repo      Repository
	numerator numerator.Generator
	txManager tx.Manager
	pricing   pricing.Provider
	converter Converter
	events    *notification.Dispatcher
	hooks     *domain.HookRegistry[*Quotation]
	now       func() time.Time
}

// NewService creates a new quotation service. pricing may be nil, in which
// case every line must carry its own price.
func NewService(
	repo Repository,
	numerator numerator.Generator,
	txManager tx.Manager,
	pricing pricing.Provider,
	events *notification.Dispatcher,
) *Service {
	return &Service{
		repo:      repo,
		numerator: numerator,
		txManager: txManager,
		pricing:   pricing,
		events:    events,
		hooks:     domain.NewHookRegistry[*Quotation](),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetConverter wires the sales order converter. Approval fails without one.
func (s *Service) SetConverter(c Converter) {
	s.converter = c
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*Quotation] {
	return s.hooks
}

// priceLines fills zero unit prices from the pricing provider.
func (s *Service) priceLines(ctx context.Context, doc *Quotation) error {
	if s.pricing == nil {
		return nil
	}
	for i := range doc.Lines {
		l := &doc.Lines[i]
		if !l.UnitPrice.IsZero() {
			continue
		}
		price, err := s.pricing.UnitPrice(ctx, doc.CustomerRef, l.ProductID)
		if err != nil {
			return fmt.Errorf("price line %d: %w", i+1, err)
		}
		l.UnitPrice = price
	}
	doc.Recalculate()
	return nil
}

// Create stores a new draft quotation.
func (s *Service) Create(ctx context.Context, doc *Quotation) error {
	if err := s.hooks.Run(ctx, domain.BeforeCreate, doc); err != nil {
		return err
	}

	doc.Status = StatusDraft
	if doc.Revision == 0 {
		doc.Revision = 1
	}
	if err := s.priceLines(ctx, doc); err != nil {
		return err
	}
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

	logger.Info(ctx, "quotation created",
		"id", doc.ID,
		"number", doc.Number,
		"revision", doc.RevisionLabel())
	return nil
}

// GetByID retrieves a quotation with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*Quotation, error) {
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

// loadForUpdate locks the header and loads lines. Must run inside a transaction.
func (s *Service) loadForUpdate(ctx context.Context, docID id.ID) (*Quotation, error) {
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

// Update replaces header fields and lines of a draft or sent quotation.
// apply receives the locked current document and edits it in place.
func (s *Service) Update(ctx context.Context, docID id.ID, apply func(doc *Quotation) error) (*Quotation, error) {
	var doc *Quotation
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.loadForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.CanModify(); err != nil {
			return err
		}
		status := doc.Status
		if err := apply(doc); err != nil {
			return err
		}
		doc.Status = status
		if err := s.hooks.Run(ctx, domain.BeforeUpdate, doc); err != nil {
			return err
		}
		if err := s.priceLines(ctx, doc); err != nil {
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

// Delete removes a draft quotation.
func (s *Service) Delete(ctx context.Context, docID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Status != StatusDraft {
			if err := doc.CanModify(); err != nil {
				return err
			}
			return apperror.NewValidation("only draft quotations can be deleted").
				WithDetail("status", string(doc.Status))
		}
		return s.repo.Delete(ctx, docID)
	})
}

// transition runs a status change under a row lock and persists it.
func (s *Service) transition(ctx context.Context, docID id.ID, change func(ctx context.Context, doc *Quotation) error) (*Quotation, error) {
	var doc *Quotation
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

// Send moves a draft to sent and notifies the customer contact.
func (s *Service) Send(ctx context.Context, docID id.ID) (*Quotation, error) {
	doc, err := s.transition(ctx, docID, func(ctx context.Context, doc *Quotation) error {
		return doc.Send(s.now())
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "quotation sent", "id", doc.ID, "number", doc.Number)
	s.events.Publish(ctx, notification.NewEvent(notification.QuotationSent, DocumentType, doc.ID, map[string]any{
		"number":       doc.Number,
		"revision":     doc.RevisionLabel(),
		"customerName": doc.CustomerName,
		"totalAmount":  doc.TotalAmount.String(),
	}))
	return doc, nil
}

// Approve moves a sent quotation to approved and converts it into a sales
// order in the same transaction. It returns the new sales order id.
func (s *Service) Approve(ctx context.Context, docID id.ID) (*Quotation, id.ID, error) {
	if s.converter == nil {
		return nil, id.Nil(), apperror.NewInternal(fmt.Errorf("quotation converter is not configured"))
	}

	var orderID id.ID
	doc, err := s.transition(ctx, docID, func(ctx context.Context, doc *Quotation) error {
		if err := doc.Approve(s.now()); err != nil {
			return err
		}
		var err error
		orderID, err = s.converter.ConvertQuotation(ctx, doc)
		return err
	})
	if err != nil {
		return nil, id.Nil(), err
	}

	logger.Info(ctx, "quotation approved", "id", doc.ID, "number", doc.Number, "sales_order_id", orderID)
	s.events.Publish(ctx, notification.NewEvent(notification.QuotationApproved, DocumentType, doc.ID, map[string]any{
		"number":       doc.Number,
		"salesOrderId": orderID.String(),
	}))
	return doc, orderID, nil
}

// Reject moves a sent quotation to rejected.
func (s *Service) Reject(ctx context.Context, docID id.ID, reason string) (*Quotation, error) {
	doc, err := s.transition(ctx, docID, func(ctx context.Context, doc *Quotation) error {
		return doc.Reject(reason, s.now())
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "quotation rejected", "id", doc.ID, "number", doc.Number)
	s.events.Publish(ctx, notification.NewEvent(notification.QuotationRejected, DocumentType, doc.ID, map[string]any{
		"number": doc.Number,
		"reason": reason,
	}))
	return doc, nil
}

// Convert converts an approved quotation that has no sales order yet.
// A second conversion fails with ALREADY_CONVERTED.
func (s *Service) Convert(ctx context.Context, docID id.ID) (id.ID, error) {
	if s.converter == nil {
		return id.Nil(), apperror.NewInternal(fmt.Errorf("quotation converter is not configured"))
	}
	var orderID id.ID
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.loadForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Status != StatusApproved {
			return apperror.NewValidation("only approved quotations can be converted").
				WithDetail("status", string(doc.Status))
		}
		orderID, err = s.converter.ConvertQuotation(ctx, doc)
		return err
	})
	if err != nil {
		return id.Nil(), err
	}
	return orderID, nil
}

// Revise creates the next revision of a sent or decided quotation as a new draft.
func (s *Service) Revise(ctx context.Context, docID id.ID) (*Quotation, error) {
	source, err := s.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	next, err := source.Revise()
	if err != nil {
		return nil, err
	}
	if err := s.Create(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// List retrieves quotations with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Quotation], error) {
	return s.repo.List(ctx, filter)
}
