// Package sales_order provides the SalesOrder document: a confirmed customer
// commitment, created directly or converted from an approved quotation, that
// is routed to production through job orders.
package sales_order

import (
	"context"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

// Status is the sales order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the order can no longer change state.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo checks if the status can transition to the target status.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusConfirmed || target == StatusCancelled
	case StatusConfirmed:
		return target == StatusProcessing || target == StatusCancelled
	case StatusProcessing:
		return target == StatusShipped || target == StatusCancelled
	case StatusShipped:
		return target == StatusDelivered
	default:
		return false
	}
}

// AcceptsRouting reports whether job orders may be created for the order.
func (s Status) AcceptsRouting() bool {
	return s == StatusConfirmed || s == StatusProcessing
}

// PaymentStatus tracks collection independently of the lifecycle.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// IsValid reports whether p is a known payment status.
func (p PaymentStatus) IsValid() bool {
	return p == PaymentUnpaid || p == PaymentPartial || p == PaymentPaid
}

// ShippingStatus tracks dispatch independently of the lifecycle.
type ShippingStatus string

const (
	ShippingNotShipped ShippingStatus = "not_shipped"
	ShippingPartial    ShippingStatus = "partial"
	ShippingShipped    ShippingStatus = "shipped"
)

// IsValid reports whether s is a known shipping status.
func (s ShippingStatus) IsValid() bool {
	return s == ShippingNotShipped || s == ShippingPartial || s == ShippingShipped
}

// SalesOrder is a customer order.
type SalesOrder struct {
	entity.Document
	entity.CurrencyAware

	CustomerRef  string `db:"customer_ref" json:"customerRef"`
	CustomerName string `db:"customer_name" json:"customerName"`

	// SourceQuotationID is set when the order was converted from a quotation.
	// At most one order exists per quotation.
	SourceQuotationID *id.ID `db:"source_quotation_id" json:"sourceQuotationId,omitempty"`

	Status         Status         `db:"status" json:"status"`
	PaymentStatus  PaymentStatus  `db:"payment_status" json:"paymentStatus"`
	ShippingStatus ShippingStatus `db:"shipping_status" json:"shippingStatus"`

	ShippingAddress string `db:"shipping_address" json:"shippingAddress,omitempty"`

	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one ordered product.
type Line struct {
	LineID      id.ID          `db:"line_id" json:"lineId"`
	LineNo      int            `db:"line_no" json:"lineNo"`
	ProductID   id.ID          `db:"product_id" json:"productId"`
	Description string         `db:"description" json:"description,omitempty"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	Amount      types.Money    `db:"amount" json:"amount"`
}

// NewSalesOrder creates a pending order.
func NewSalesOrder(customerRef, customerName, currency string) *SalesOrder {
	return &SalesOrder{
		Document:       entity.NewDocument(),
		CurrencyAware:  entity.CurrencyAware{Currency: currency},
		CustomerRef:    customerRef,
		CustomerName:   customerName,
		Status:         StatusPending,
		PaymentStatus:  PaymentUnpaid,
		ShippingStatus: ShippingNotShipped,
		TotalAmount:    types.Zero(),
		Lines:          make([]Line, 0),
	}
}

// AddLine appends a line and recalculates totals.
func (o *SalesOrder) AddLine(productID id.ID, quantity types.Quantity, unitPrice types.Money) {
	o.Lines = append(o.Lines, Line{
		LineID:    id.New(),
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	o.Recalculate()
}

// Recalculate renumbers lines and refreshes amounts.
func (o *SalesOrder) Recalculate() {
	total := types.Zero()
	for i := range o.Lines {
		l := &o.Lines[i]
		l.LineNo = i + 1
		if id.IsNil(l.LineID) {
			l.LineID = id.New()
		}
		l.Amount = l.UnitPrice.Mul(l.Quantity.Decimal())
		total = total.Add(l.Amount)
	}
	o.TotalAmount = total
}

// Line returns the line with lineID.
func (o *SalesOrder) Line(lineID id.ID) (Line, bool) {
	for _, l := range o.Lines {
		if l.LineID == lineID {
			return l, true
		}
	}
	return Line{}, false
}

// Validate implements entity.Validatable.
func (o *SalesOrder) Validate(ctx context.Context) error {
	if err := o.Document.Validate(ctx); err != nil {
		return err
	}
	if err := o.ValidateCurrency(ctx); err != nil {
		return err
	}
	if o.CustomerName == "" {
		return apperror.NewValidation("customer is required").
			WithDetail("field", "customerName")
	}
	if !o.Status.IsValid() {
		return apperror.NewValidation("invalid status").
			WithDetail("field", "status").
			WithDetail("value", string(o.Status))
	}
	if !o.PaymentStatus.IsValid() {
		return apperror.NewValidation("invalid payment status").
			WithDetail("field", "paymentStatus").
			WithDetail("value", string(o.PaymentStatus))
	}
	if !o.ShippingStatus.IsValid() {
		return apperror.NewValidation("invalid shipping status").
			WithDetail("field", "shippingStatus").
			WithDetail("value", string(o.ShippingStatus))
	}
	if len(o.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for _, line := range o.Lines {
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

// CanModifyLines allows line edits only before confirmation.
func (o *SalesOrder) CanModifyLines() error {
	if o.Status.IsTerminal() {
		return apperror.NewImmutableDocument("sales order", o.ID.String(), string(o.Status))
	}
	if o.Status != StatusPending {
		return apperror.NewValidation("lines can only be changed while the order is pending").
			WithDetail("status", string(o.Status))
	}
	return nil
}

// TransitionTo moves the order to target.
func (o *SalesOrder) TransitionTo(target Status) error {
	if o.Status.IsTerminal() {
		return apperror.NewImmutableDocument("sales order", o.ID.String(), string(o.Status))
	}
	if !o.Status.CanTransitionTo(target) {
		return apperror.NewInvalidTransition("sales order", string(o.Status), string(target))
	}
	o.Status = target
	if target == StatusShipped {
		o.ShippingStatus = ShippingShipped
	}
	o.Touch()
	return nil
}
