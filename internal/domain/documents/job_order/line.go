package job_order

import (
	"time"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

// Line is one product routed to production. Quantity, Reserved, Tranches and
// Sources are inputs; Shipped, OrderBalance, Ready and ToProduce are derived
// and only ever written by Recompute.
type Line struct {
	LineID           id.ID          `db:"line_id" json:"lineId"`
	JobOrderID       id.ID          `db:"job_order_id" json:"jobOrderId"`
	LineNo           int            `db:"line_no" json:"lineNo"`
	SalesOrderLineID id.ID          `db:"sales_order_line_id" json:"salesOrderLineId"`
	ProductID        id.ID          `db:"product_id" json:"productId"`
	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	Reserved         types.Quantity `db:"reserved" json:"reserved"`

	Tranches [MaxTranches]types.Quantity `db:"-" json:"tranches"`

	// Sources records how much main-location stock the line currently holds,
	// per location it was drawn from.
	Sources map[entity.Location]types.Quantity `db:"-" json:"sources,omitempty"`

	Shipped      types.Quantity `db:"shipped" json:"shipped"`
	OrderBalance types.Quantity `db:"order_balance" json:"orderBalance"`
	Ready        types.Quantity `db:"ready" json:"ready"`
	ToProduce    types.Quantity `db:"to_produce" json:"toProduce"`

	Version   int       `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewLine creates a line with nothing reserved or shipped.
func NewLine(jobOrderID, salesOrderLineID, productID id.ID, quantity types.Quantity) Line {
	l := Line{
		LineID:           id.New(),
		JobOrderID:       jobOrderID,
		SalesOrderLineID: salesOrderLineID,
		ProductID:        productID,
		Quantity:         quantity,
		Sources:          make(map[entity.Location]types.Quantity),
		Version:          1,
		UpdatedAt:        time.Now().UTC(),
	}
	l.Recompute()
	return l
}

// Derived holds the computed quantities of a line.
type Derived struct {
	Shipped      types.Quantity `json:"shipped"`
	OrderBalance types.Quantity `json:"orderBalance"`
	Ready        types.Quantity `json:"ready"`
	ToProduce    types.Quantity `json:"toProduce"`
}

// Derive computes the derived quantities from the inputs. It is pure.
func (l *Line) Derive() Derived {
	var shipped types.Quantity
	for _, t := range l.Tranches {
		shipped += t
	}
	return Derived{
		Shipped:      shipped,
		OrderBalance: l.Quantity - shipped,
		Ready:        l.Reserved - shipped,
		ToProduce:    l.Quantity - l.Reserved,
	}
}

// Stored returns the derived quantities as currently persisted.
func (l *Line) Stored() Derived {
	return Derived{
		Shipped:      l.Shipped,
		OrderBalance: l.OrderBalance,
		Ready:        l.Ready,
		ToProduce:    l.ToProduce,
	}
}

// Recompute refreshes the stored derived fields and reports whether any of
// them changed.
func (l *Line) Recompute() bool {
	d := l.Derive()
	if d == l.Stored() {
		return false
	}
	l.Shipped, l.OrderBalance, l.Ready, l.ToProduce = d.Shipped, d.OrderBalance, d.Ready, d.ToProduce
	return true
}

// Held is the reservation still physically in the reserved pool.
func (l *Line) Held() types.Quantity {
	return types.MaxQuantity(l.Reserved-l.Derive().Shipped, 0)
}

// Excess is the part of shipped not covered by the reservation.
func (l *Line) Excess() types.Quantity {
	return types.MaxQuantity(l.Derive().Shipped-l.Reserved, 0)
}

// Tranche returns the value of slot index (1-based).
func (l *Line) Tranche(index int) (types.Quantity, error) {
	if err := ValidateTrancheIndex(index); err != nil {
		return 0, err
	}
	return l.Tranches[index-1], nil
}

// ValidateTrancheIndex checks index is in 1..MaxTranches.
func ValidateTrancheIndex(index int) error {
	if index < 1 || index > MaxTranches {
		return apperror.NewValidation("tranche index out of range").
			WithDetail("field", "index").
			WithDetail("value", index).
			WithDetail("max", MaxTranches)
	}
	return nil
}

// SourcesTotal sums Sources.
func (l *Line) SourcesTotal() types.Quantity {
	var total types.Quantity
	for _, q := range l.Sources {
		total += q
	}
	return total
}

// Validate checks the stored invariants of the line.
func (l *Line) Validate() error {
	detail := func(e *apperror.AppError) error {
		return e.WithDetail("lineNo", l.LineNo).WithDetail("lineId", l.LineID.String())
	}
	if id.IsNil(l.ProductID) {
		return detail(apperror.NewValidation("product is required"))
	}
	if id.IsNil(l.SalesOrderLineID) {
		return detail(apperror.NewValidation("sales order line is required"))
	}
	if !l.Quantity.IsPositive() {
		return detail(apperror.NewValidation("quantity must be positive"))
	}
	if l.Reserved.IsNegative() || l.Reserved > l.Quantity {
		return detail(apperror.NewValidation("reserved must be between zero and quantity").
			WithDetail("reserved", l.Reserved.String()))
	}
	for i, t := range l.Tranches {
		if t.IsNegative() {
			return detail(apperror.NewValidation("tranche cannot be negative").WithDetail("index", i+1))
		}
	}
	return nil
}

// Clone returns a deep copy.
func (l Line) Clone() Line {
	out := l
	out.Sources = make(map[entity.Location]types.Quantity, len(l.Sources))
	for loc, q := range l.Sources {
		out.Sources[loc] = q
	}
	return out
}
