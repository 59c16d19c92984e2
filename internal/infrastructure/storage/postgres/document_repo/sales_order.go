package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/id"
	"orderflow/internal/domain"
	"orderflow/internal/domain/documents/sales_order"
	"orderflow/internal/infrastructure/storage/postgres"
)

const (
	salesOrdersTable     = "doc_sales_orders"
	salesOrderLinesTable = "doc_sales_order_lines"
)

// SalesOrderRepo implements sales_order.Repository.
type SalesOrderRepo struct {
	*BaseDocumentRepo[*sales_order.SalesOrder]
	lines lineTable[sales_order.Line]
}

// NewSalesOrderRepo creates a new sales order repository.
func NewSalesOrderRepo(txm *postgres.TxManager) *SalesOrderRepo {
	return &SalesOrderRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			"sales order",
			salesOrdersTable,
			postgres.ExtractDBColumns[sales_order.SalesOrder](),
			func() *sales_order.SalesOrder { return new(sales_order.SalesOrder) },
		),
		lines: lineTable[sales_order.Line]{
			txm:   txm,
			table: salesOrderLinesTable,
			cols:  pricedLineColumns,
			row: func(_ id.ID, l sales_order.Line) []any {
				return []any{l.LineID, l.LineNo, l.ProductID, l.Description, l.Quantity, l.UnitPrice, l.Amount}
			},
		},
	}
}

// Create inserts the header. The partial unique index on
// source_quotation_id turns a second conversion into a no-op insert, which
// is reported as ALREADY_CONVERTED with the winning order's id.
func (r *SalesOrderRepo) Create(ctx context.Context, doc *sales_order.SalesOrder) error {
	sql, args, err := r.insertQuery(doc).
		Suffix("ON CONFLICT (source_quotation_id) WHERE source_quotation_id IS NOT NULL DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", salesOrdersTable, err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}
	if doc.SourceQuotationID == nil {
		return apperror.NewConflict("sales order already exists").WithDetail("id", doc.ID.String())
	}

	existing, err := r.GetBySourceQuotation(ctx, *doc.SourceQuotationID)
	if err != nil {
		return fmt.Errorf("load converted order: %w", err)
	}
	return apperror.NewAlreadyConverted(doc.SourceQuotationID.String(), existing.ID.String())
}

// GetBySourceQuotation returns the order converted from quotationID.
func (r *SalesOrderRepo) GetBySourceQuotation(ctx context.Context, quotationID id.ID) (*sales_order.SalesOrder, error) {
	doc, err := r.findOne(ctx, r.baseSelect().Where(squirrel.Eq{"source_quotation_id": quotationID}), quotationID.String())
	if apperror.IsNotFound(err) {
		return nil, apperror.NewNotFound("sales order", quotationID.String()).
			WithDetail("sourceQuotationId", quotationID.String())
	}
	return doc, err
}

// GetLines retrieves lines for a sales order.
func (r *SalesOrderRepo) GetLines(ctx context.Context, docID id.ID) ([]sales_order.Line, error) {
	return r.lines.get(ctx, docID)
}

// SaveLines replaces the lines of a sales order.
func (r *SalesOrderRepo) SaveLines(ctx context.Context, docID id.ID, lines []sales_order.Line) error {
	return r.lines.replace(ctx, docID, lines)
}

// List retrieves sales orders with filtering.
func (r *SalesOrderRepo) List(ctx context.Context, filter sales_order.ListFilter) (domain.ListResult[*sales_order.SalesOrder], error) {
	q := r.filterQuery(filter.ListFilter, filter.DateFrom, filter.DateTo)
	if filter.CustomerRef != "" {
		q = q.Where(squirrel.Eq{"customer_ref": filter.CustomerRef})
	}
	return r.list(ctx, q, filter.ListFilter)
}

var _ sales_order.Repository = (*SalesOrderRepo)(nil)
