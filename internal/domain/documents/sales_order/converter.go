package sales_order

import (
	"context"
	"fmt"

	appctx "orderflow/internal/core/context"
	"orderflow/internal/core/id"
	"orderflow/internal/core/numerator"
	"orderflow/internal/core/tx"
	"orderflow/internal/domain/documents/quotation"
	"orderflow/pkg/logger"
)

// Converter creates sales orders from approved quotations.
// It implements quotation.Converter.
type Converter struct {
	repo      Repository
	numerator numerator.Generator
	txManager tx.Manager
}

// NewConverter creates a Converter.
func NewConverter(repo Repository, numerator numerator.Generator, txManager tx.Manager) *Converter {
	return &Converter{repo: repo, numerator: numerator, txManager: txManager}
}

// FromQuotation copies header and lines one to one. Lines keep product,
// quantity and unit price; amounts are recomputed from them.
func FromQuotation(q *quotation.Quotation) *SalesOrder {
	order := NewSalesOrder(q.CustomerRef, q.CustomerName, q.Currency)
	sourceID := q.ID
	order.SourceQuotationID = &sourceID
	order.Comment = q.Comment
	for _, l := range q.Lines {
		order.Lines = append(order.Lines, Line{
			LineID:      id.New(),
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	order.Recalculate()
	return order
}

// ConvertQuotation implements quotation.Converter. The unique source
// quotation constraint decides concurrent attempts: one wins, the others
// fail with ALREADY_CONVERTED.
func (c *Converter) ConvertQuotation(ctx context.Context, q *quotation.Quotation) (id.ID, error) {
	order := FromQuotation(q)
	actor := appctx.GetActorID(ctx)
	order.CreatedBy, order.UpdatedBy = actor, actor

	if err := order.Validate(ctx); err != nil {
		return id.Nil(), err
	}

	err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := c.numerator.GetNextNumber(ctx, NumeratorConfig, &numerator.Options{Strategy: NumeratorStrategy}, order.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		order.Number = number

		if err := c.repo.Create(ctx, order); err != nil {
			return err
		}
		if err := c.repo.SaveLines(ctx, order.ID, order.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return id.Nil(), err
	}

	logger.Info(ctx, "quotation converted",
		"quotation_id", q.ID,
		"sales_order_id", order.ID,
		"number", order.Number,
		"lines", len(order.Lines))
	return order.ID, nil
}

var _ quotation.Converter = (*Converter)(nil)
