package sales_order

import (
	"context"

	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

// FulfillmentStatus is the production-side view of an order, derived from
// its job orders rather than stored.
type FulfillmentStatus string

const (
	FulfillmentPending      FulfillmentStatus = "pending"
	FulfillmentInProduction FulfillmentStatus = "in_production"
	FulfillmentFulfilled    FulfillmentStatus = "fulfilled"
	FulfillmentCancelled    FulfillmentStatus = "cancelled"
)

// ProductionSnapshot is what the projection needs from one job order.
type ProductionSnapshot struct {
	JobOrderID id.ID
	Cancelled  bool
	// OrderBalances holds quantity - shipped for every line.
	OrderBalances []types.Quantity
}

// ProductionReader lists the job orders routed from a sales order.
type ProductionReader interface {
	ProductionSnapshots(ctx context.Context, salesOrderID id.ID) ([]ProductionSnapshot, error)
}

// ProjectStatus derives the fulfillment status. A cancelled order is
// cancelled regardless of production; otherwise the order is pending until a
// live job order with lines exists, in production while any line still has
// a positive balance, and fulfilled once every line is fully shipped.
// Over-shipped lines (negative balance) count as shipped; balances are
// judged per line and never netted across lines.
func ProjectStatus(status Status, production []ProductionSnapshot) FulfillmentStatus {
	if status == StatusCancelled {
		return FulfillmentCancelled
	}

	lines := 0
	open := false
	for _, jo := range production {
		if jo.Cancelled {
			continue
		}
		for _, balance := range jo.OrderBalances {
			lines++
			if balance.IsPositive() {
				open = true
			}
		}
	}

	switch {
	case lines == 0:
		return FulfillmentPending
	case open:
		return FulfillmentInProduction
	default:
		return FulfillmentFulfilled
	}
}
