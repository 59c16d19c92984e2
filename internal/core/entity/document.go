package entity

import (
	"context"
	"time"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/id"
)

// Document is the base type for commercial and production documents
// (quotations, sales orders, job orders).
type Document struct {
	BaseDocument

	// Number is the document number (auto-generated, YYYY.MM.NNN)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Comment is an optional user comment
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new Document with generated ID dated now.
func NewDocument() Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}

// GetID returns the document ID.
func (d *Document) GetID() id.ID {
	return d.ID
}

// GetNumber returns the document number.
func (d *Document) GetNumber() string {
	return d.Number
}

// SetNumber assigns the generated document number.
func (d *Document) SetNumber(n string) {
	d.Number = n
}

// GetDate returns the business date used for numbering periods.
func (d *Document) GetDate() time.Time {
	return d.Date
}
