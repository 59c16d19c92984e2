package job_order

import (
	"context"
	"time"

	"orderflow/internal/core/id"
	"orderflow/internal/domain"
)

// Repository defines operations for job orders and their lines.
type Repository interface {
	Create(ctx context.Context, doc *JobOrder) error
	GetByID(ctx context.Context, docID id.ID) (*JobOrder, error)
	Update(ctx context.Context, doc *JobOrder) error
	// Delete removes the order together with its lines.
	Delete(ctx context.Context, docID id.ID) error

	// GetForUpdate loads the header with a row lock.
	GetForUpdate(ctx context.Context, docID id.ID) (*JobOrder, error)

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*JobOrder], error)
	ListBySalesOrder(ctx context.Context, salesOrderID id.ID) ([]*JobOrder, error)

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	// InsertLines stores the lines of a new order.
	InsertLines(ctx context.Context, docID id.ID, lines []Line) error

	GetLine(ctx context.Context, lineID id.ID) (*Line, error)
	// GetLineForUpdate loads a line with a row lock.
	GetLineForUpdate(ctx context.Context, lineID id.ID) (*Line, error)
	// UpdateLine persists inputs and derived fields of one line.
	UpdateLine(ctx context.Context, line *Line) error

	// ListLineIDs returns every line id, for bulk recompute.
	ListLineIDs(ctx context.Context) ([]id.ID, error)
}

// ListFilter for filtering job orders.
type ListFilter struct {
	domain.ListFilter

	SalesOrderID *id.ID
	DueBefore    *time.Time
}
