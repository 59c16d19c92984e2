package dto

import (
	"time"

	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/documents/quotation"
)

// PricedLineRequest is a product line of a quotation or sales order.
type PricedLineRequest struct {
	ProductID   string         `json:"productId" binding:"required"`
	Description string         `json:"description,omitempty"`
	Quantity    types.Quantity `json:"quantity"`
	// UnitPrice zero takes the price from the catalog (quotations only).
	UnitPrice types.Money `json:"unitPrice"`
}

// QuotationRequest creates or replaces a quotation.
type QuotationRequest struct {
	Date         *time.Time          `json:"date,omitempty"`
	CustomerRef  string              `json:"customerRef" binding:"required"`
	CustomerName string              `json:"customerName" binding:"required"`
	Currency     string              `json:"currency" binding:"required,len=3"`
	ValidFrom    *time.Time          `json:"validFrom,omitempty"`
	ValidUntil   *time.Time          `json:"validUntil,omitempty"`
	Comment      string              `json:"comment,omitempty"`
	Lines        []PricedLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToEntity builds a draft quotation.
func (r QuotationRequest) ToEntity() (*quotation.Quotation, error) {
	q := quotation.NewQuotation(r.CustomerRef, r.CustomerName, r.Currency)
	if err := r.ApplyTo(q); err != nil {
		return nil, err
	}
	return q, nil
}

// ApplyTo overwrites header fields and lines. Existing line IDs are not
// kept; lines are replaced wholesale.
func (r QuotationRequest) ApplyTo(q *quotation.Quotation) error {
	if r.Date != nil {
		q.Date = *r.Date
	}
	q.CustomerRef = r.CustomerRef
	q.CustomerName = r.CustomerName
	q.Currency = r.Currency
	q.ValidFrom = r.ValidFrom
	q.ValidUntil = r.ValidUntil
	q.Comment = r.Comment

	lines := make([]quotation.Line, 0, len(r.Lines))
	for _, l := range r.Lines {
		productID, err := ParseID("productId", l.ProductID)
		if err != nil {
			return err
		}
		lines = append(lines, quotation.Line{
			LineID:      id.New(),
			ProductID:   productID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	q.Lines = lines
	q.Recalculate()
	return nil
}

// RejectQuotationRequest carries the rejection reason.
type RejectQuotationRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ApproveQuotationResponse is returned by approve and convert.
type ApproveQuotationResponse struct {
	Quotation    *quotation.Quotation `json:"quotation,omitempty"`
	SalesOrderID string               `json:"salesOrderId"`
}

// QuotationListQuery filters the quotation list.
type QuotationListQuery struct {
	ListQuery
	CustomerRef string `form:"customerRef"`
}

// Filter converts the query to a quotation filter.
func (q QuotationListQuery) Filter() quotation.ListFilter {
	return quotation.ListFilter{
		ListFilter:  q.ListQuery.Filter("-date"),
		CustomerRef: q.CustomerRef,
		DateFrom:    q.DateFrom,
		DateTo:      q.DateTo,
	}
}
