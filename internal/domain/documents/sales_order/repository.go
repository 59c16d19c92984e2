package sales_order

import (
	"context"
	"time"

	"orderflow/internal/core/id"
	"orderflow/internal/domain"
)

// Repository defines operations for sales order documents.
type Repository interface {
	// Create inserts the header. An order whose SourceQuotationID is already
	// taken fails with ALREADY_CONVERTED carrying the existing order id.
	Create(ctx context.Context, doc *SalesOrder) error
	GetByID(ctx context.Context, docID id.ID) (*SalesOrder, error)
	GetBySourceQuotation(ctx context.Context, quotationID id.ID) (*SalesOrder, error)
	Update(ctx context.Context, doc *SalesOrder) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*SalesOrder], error)

	// GetForUpdate loads the header with a row lock.
	GetForUpdate(ctx context.Context, docID id.ID) (*SalesOrder, error)
}

// ListFilter for filtering sales orders.
type ListFilter struct {
	domain.ListFilter

	CustomerRef string
	DateFrom    *time.Time
	DateTo      *time.Time
}
