// Package quotation provides the Quotation document: a priced commercial
// offer that moves draft -> sent -> approved | rejected. Approval converts
// it into a sales order.
package quotation

import (
	"context"
	"fmt"
	"time"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

// Status is the quotation lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition or edit is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo checks if the status can transition to the target status.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusDraft:
		return target == StatusSent
	case StatusSent:
		return target == StatusApproved || target == StatusRejected
	default:
		return false
	}
}

// Quotation is a priced offer to a customer.
type Quotation struct {
	entity.Document
	entity.CurrencyAware

	// CustomerRef identifies the customer in the CRM; CustomerName is printed.
	CustomerRef  string `db:"customer_ref" json:"customerRef"`
	CustomerName string `db:"customer_name" json:"customerName"`

	Status Status `db:"status" json:"status"`

	// Revision starts at 1; Revise creates the next one as a new draft.
	Revision int `db:"revision" json:"revision"`
	// RevisedFromID points at the quotation this revision was copied from.
	RevisedFromID *id.ID `db:"revised_from_id" json:"revisedFromId,omitempty"`

	ValidFrom  *time.Time `db:"valid_from" json:"validFrom,omitempty"`
	ValidUntil *time.Time `db:"valid_until" json:"validUntil,omitempty"`

	SentAt          *time.Time `db:"sent_at" json:"sentAt,omitempty"`
	DecidedAt       *time.Time `db:"decided_at" json:"decidedAt,omitempty"`
	RejectionReason string     `db:"rejection_reason" json:"rejectionReason,omitempty"`

	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one priced product on the quotation.
type Line struct {
	LineID      id.ID          `db:"line_id" json:"lineId"`
	LineNo      int            `db:"line_no" json:"lineNo"`
	ProductID   id.ID          `db:"product_id" json:"productId"`
	Description string         `db:"description" json:"description,omitempty"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	Amount      types.Money    `db:"amount" json:"amount"`
}

// NewQuotation creates a draft quotation.
func NewQuotation(customerRef, customerName, currency string) *Quotation {
	return &Quotation{
		Document:      entity.NewDocument(),
		CurrencyAware: entity.CurrencyAware{Currency: currency},
		CustomerRef:   customerRef,
		CustomerName:  customerName,
		Status:        StatusDraft,
		Revision:      1,
		TotalAmount:   types.Zero(),
		Lines:         make([]Line, 0),
	}
}

// AddLine appends a line and recalculates totals.
func (q *Quotation) AddLine(productID id.ID, quantity types.Quantity, unitPrice types.Money) {
	q.Lines = append(q.Lines, Line{
		LineID:    id.New(),
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	q.Recalculate()
}

// Recalculate renumbers lines and refreshes amounts.
func (q *Quotation) Recalculate() {
	total := types.Zero()
	for i := range q.Lines {
		l := &q.Lines[i]
		l.LineNo = i + 1
		if id.IsNil(l.LineID) {
			l.LineID = id.New()
		}
		l.Amount = l.UnitPrice.Mul(l.Quantity.Decimal())
		total = total.Add(l.Amount)
	}
	q.TotalAmount = total
}

// RevisionLabel renders the revision as printed on documents ("R1").
func (q *Quotation) RevisionLabel() string {
	return fmt.Sprintf("R%d", q.Revision)
}

// Validate implements entity.Validatable.
func (q *Quotation) Validate(ctx context.Context) error {
	if err := q.Document.Validate(ctx); err != nil {
		return err
	}
	if err := q.ValidateCurrency(ctx); err != nil {
		return err
	}
	if q.CustomerName == "" {
		return apperror.NewValidation("customer is required").
			WithDetail("field", "customerName")
	}
	if !q.Status.IsValid() {
		return apperror.NewValidation("invalid status").
			WithDetail("field", "status").
			WithDetail("value", string(q.Status))
	}
	if q.ValidFrom != nil && q.ValidUntil != nil && q.ValidUntil.Before(*q.ValidFrom) {
		return apperror.NewValidation("validity window ends before it starts").
			WithDetail("field", "validUntil")
	}
	for _, line := range q.Lines {
		if id.IsNil(line.ProductID) {
			return apperror.NewValidation("product is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit price cannot be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
	}
	return nil
}

// CanModify rejects edits once a decision was made.
func (q *Quotation) CanModify() error {
	if q.Status.IsTerminal() {
		return apperror.NewImmutableDocument("quotation", q.ID.String(), string(q.Status))
	}
	return nil
}

func (q *Quotation) transition(target Status, now time.Time) error {
	if q.Status.IsTerminal() {
		return apperror.NewImmutableDocument("quotation", q.ID.String(), string(q.Status))
	}
	if !q.Status.CanTransitionTo(target) {
		return apperror.NewInvalidTransition("quotation", string(q.Status), string(target))
	}
	q.Status = target
	q.Touch()
	return nil
}

// Send moves a draft to sent. A quotation without lines cannot be sent.
func (q *Quotation) Send(now time.Time) error {
	if len(q.Lines) == 0 && q.Status == StatusDraft {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	if err := q.transition(StatusSent, now); err != nil {
		return err
	}
	q.SentAt = &now
	return nil
}

// Approve moves a sent quotation to approved. Approval after ValidUntil fails.
func (q *Quotation) Approve(now time.Time) error {
	if q.Status == StatusSent && q.ValidUntil != nil && now.After(*q.ValidUntil) {
		return apperror.NewValidation("quotation validity has expired").
			WithDetail("validUntil", q.ValidUntil.Format(time.RFC3339))
	}
	if err := q.transition(StatusApproved, now); err != nil {
		return err
	}
	q.DecidedAt = &now
	return nil
}

// Reject moves a sent quotation to rejected.
func (q *Quotation) Reject(reason string, now time.Time) error {
	if err := q.transition(StatusRejected, now); err != nil {
		return err
	}
	q.DecidedAt = &now
	q.RejectionReason = reason
	return nil
}

// Revise copies the quotation into a new draft with the next revision number.
// Drafts are edited in place and cannot be revised.
func (q *Quotation) Revise() (*Quotation, error) {
	if q.Status == StatusDraft {
		return nil, apperror.NewValidation("draft quotations are edited directly").
			WithDetail("status", string(q.Status))
	}
	next := NewQuotation(q.CustomerRef, q.CustomerName, q.Currency)
	next.Number = q.Number
	next.Comment = q.Comment
	next.Revision = q.Revision + 1
	sourceID := q.ID
	next.RevisedFromID = &sourceID
	next.ValidFrom = q.ValidFrom
	next.ValidUntil = q.ValidUntil
	for _, l := range q.Lines {
		next.Lines = append(next.Lines, Line{
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	next.Recalculate()
	return next, nil
}
