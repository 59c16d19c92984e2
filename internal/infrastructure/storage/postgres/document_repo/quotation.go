package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"orderflow/internal/core/id"
	"orderflow/internal/domain"
	"orderflow/internal/domain/documents/quotation"
	"orderflow/internal/infrastructure/storage/postgres"
)

const (
	quotationsTable     = "doc_quotations"
	quotationLinesTable = "doc_quotation_lines"
)

// QuotationRepo implements quotation.Repository.
type QuotationRepo struct {
	*BaseDocumentRepo[*quotation.Quotation]
	lines lineTable[quotation.Line]
}

// NewQuotationRepo creates a new quotation repository.
func NewQuotationRepo(txm *postgres.TxManager) *QuotationRepo {
	return &QuotationRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			"quotation",
			quotationsTable,
			postgres.ExtractDBColumns[quotation.Quotation](),
			func() *quotation.Quotation { return new(quotation.Quotation) },
		),
		lines: lineTable[quotation.Line]{
			txm:   txm,
			table: quotationLinesTable,
			cols:  pricedLineColumns,
			row: func(_ id.ID, l quotation.Line) []any {
				return []any{l.LineID, l.LineNo, l.ProductID, l.Description, l.Quantity, l.UnitPrice, l.Amount}
			},
		},
	}
}

// GetLines retrieves lines for a quotation.
func (r *QuotationRepo) GetLines(ctx context.Context, docID id.ID) ([]quotation.Line, error) {
	return r.lines.get(ctx, docID)
}

// SaveLines replaces the lines of a quotation.
func (r *QuotationRepo) SaveLines(ctx context.Context, docID id.ID, lines []quotation.Line) error {
	return r.lines.replace(ctx, docID, lines)
}

// List retrieves quotations with filtering.
func (r *QuotationRepo) List(ctx context.Context, filter quotation.ListFilter) (domain.ListResult[*quotation.Quotation], error) {
	q := r.filterQuery(filter.ListFilter, filter.DateFrom, filter.DateTo)
	if filter.CustomerRef != "" {
		q = q.Where(squirrel.Eq{"customer_ref": filter.CustomerRef})
	}
	return r.list(ctx, q, filter.ListFilter)
}

var _ quotation.Repository = (*QuotationRepo)(nil)
