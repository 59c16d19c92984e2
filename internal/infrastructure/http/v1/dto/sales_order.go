package dto

import (
	"time"

	"orderflow/internal/core/id"
	"orderflow/internal/domain/documents/sales_order"
)

// SalesOrderRequest creates or replaces a pending sales order.
type SalesOrderRequest struct {
	Date            *time.Time          `json:"date,omitempty"`
	CustomerRef     string              `json:"customerRef" binding:"required"`
	CustomerName    string              `json:"customerName" binding:"required"`
	Currency        string              `json:"currency" binding:"required,len=3"`
	ShippingAddress string              `json:"shippingAddress,omitempty"`
	Comment         string              `json:"comment,omitempty"`
	Lines           []PricedLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToEntity builds a pending sales order.
func (r SalesOrderRequest) ToEntity() (*sales_order.SalesOrder, error) {
	o := sales_order.NewSalesOrder(r.CustomerRef, r.CustomerName, r.Currency)
	if err := r.ApplyTo(o); err != nil {
		return nil, err
	}
	return o, nil
}

// ApplyTo overwrites header fields and lines.
func (r SalesOrderRequest) ApplyTo(o *sales_order.SalesOrder) error {
	if r.Date != nil {
		o.Date = *r.Date
	}
	o.CustomerRef = r.CustomerRef
	o.CustomerName = r.CustomerName
	o.Currency = r.Currency
	o.ShippingAddress = r.ShippingAddress
	o.Comment = r.Comment

	lines := make([]sales_order.Line, 0, len(r.Lines))
	for _, l := range r.Lines {
		productID, err := ParseID("productId", l.ProductID)
		if err != nil {
			return err
		}
		lines = append(lines, sales_order.Line{
			LineID:      id.New(),
			ProductID:   productID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	o.Lines = lines
	o.Recalculate()
	return nil
}

// PaymentStatusRequest sets the payment status.
type PaymentStatusRequest struct {
	Status sales_order.PaymentStatus `json:"status" binding:"required"`
}

// ShippingStatusRequest sets the shipping status.
type ShippingStatusRequest struct {
	Status sales_order.ShippingStatus `json:"status" binding:"required"`
}

// FulfillmentResponse is the production-derived status of an order.
type FulfillmentResponse struct {
	SalesOrderID string                        `json:"salesOrderId"`
	Status       sales_order.FulfillmentStatus `json:"status"`
}

// SalesOrderListQuery filters the sales order list.
type SalesOrderListQuery struct {
	ListQuery
	CustomerRef string `form:"customerRef"`
}

// Filter converts the query to a sales order filter.
func (q SalesOrderListQuery) Filter() sales_order.ListFilter {
	return sales_order.ListFilter{
		ListFilter:  q.ListQuery.Filter("-date"),
		CustomerRef: q.CustomerRef,
		DateFrom:    q.DateFrom,
		DateTo:      q.DateTo,
	}
}
