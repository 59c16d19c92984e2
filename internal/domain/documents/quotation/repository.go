package quotation

import (
	"context"
	"time"

	"orderflow/internal/core/id"
	"orderflow/internal/domain"
)

// Repository defines operations for quotation documents.
type Repository interface {
	Create(ctx context.Context, doc *Quotation) error
	GetByID(ctx context.Context, docID id.ID) (*Quotation, error)
	Update(ctx context.Context, doc *Quotation) error
	Delete(ctx context.Context, docID id.ID) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Quotation], error)

	// GetForUpdate loads the header with a row lock.
	GetForUpdate(ctx context.Context, docID id.ID) (*Quotation, error)
}

// ListFilter for filtering quotations.
type ListFilter struct {
	domain.ListFilter

	CustomerRef string
	DateFrom    *time.Time
	DateTo      *time.Time
}
