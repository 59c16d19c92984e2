package dto

import (
	"time"

	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/documents/job_order"
)

// JobOrderLineRequest routes part of a sales order line to production.
type JobOrderLineRequest struct {
	SalesOrderLineID string         `json:"salesOrderLineId" binding:"required"`
	Quantity         types.Quantity `json:"quantity"`
}

// CreateJobOrderRequest creates a job order in planning.
type CreateJobOrderRequest struct {
	SalesOrderID string                `json:"salesOrderId" binding:"required"`
	DueDate      *time.Time            `json:"dueDate,omitempty"`
	AssignedTo   string                `json:"assignedTo,omitempty"`
	Instructions string                `json:"instructions,omitempty"`
	Comment      string                `json:"comment,omitempty"`
	Lines        []JobOrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToEntity builds the job order. Products are taken from the sales order
// lines by the service.
func (r CreateJobOrderRequest) ToEntity() (*job_order.JobOrder, error) {
	salesOrderID, err := ParseID("salesOrderId", r.SalesOrderID)
	if err != nil {
		return nil, err
	}
	doc := job_order.NewJobOrder(salesOrderID)
	doc.DueDate = r.DueDate
	doc.AssignedTo = r.AssignedTo
	doc.Instructions = r.Instructions
	doc.Comment = r.Comment
	for _, l := range r.Lines {
		soLineID, err := ParseID("salesOrderLineId", l.SalesOrderLineID)
		if err != nil {
			return nil, err
		}
		doc.AddLine(soLineID, id.Nil(), l.Quantity)
	}
	return doc, nil
}

// UpdateJobOrderHeaderRequest edits scheduling fields. Absent fields are
// left unchanged.
type UpdateJobOrderHeaderRequest struct {
	DueDate      *time.Time `json:"dueDate,omitempty"`
	AssignedTo   *string    `json:"assignedTo,omitempty"`
	Instructions *string    `json:"instructions,omitempty"`
	Comment      *string    `json:"comment,omitempty"`
}

// ToDomain converts the request.
func (r UpdateJobOrderHeaderRequest) ToDomain() job_order.HeaderUpdate {
	return job_order.HeaderUpdate{
		DueDate:      r.DueDate,
		AssignedTo:   r.AssignedTo,
		Instructions: r.Instructions,
		Comment:      r.Comment,
	}
}

// JobOrderListQuery filters the job order list.
type JobOrderListQuery struct {
	ListQuery
	SalesOrderID string     `form:"salesOrderId"`
	DueBefore    *time.Time `form:"dueBefore" time_format:"2006-01-02"`
}

// Filter converts the query to a job order filter.
func (q JobOrderListQuery) Filter() (job_order.ListFilter, error) {
	salesOrderID, err := ParseOptionalID("salesOrderId", q.SalesOrderID)
	if err != nil {
		return job_order.ListFilter{}, err
	}
	return job_order.ListFilter{
		ListFilter:   q.ListQuery.Filter("-date"),
		SalesOrderID: salesOrderID,
		DueBefore:    q.DueBefore,
	}, nil
}

// ReservationRequest sets the reserved quantity of a line.
type ReservationRequest struct {
	Reserved types.Quantity `json:"reserved"`
}

// TrancheRequest overwrites one shipment tranche.
type TrancheRequest struct {
	Amount   types.Quantity `json:"amount"`
	Override bool           `json:"override,omitempty"`
}

// RecomputeResponse reports whether stored derived fields were repaired.
type RecomputeResponse struct {
	Line    *job_order.Line `json:"line"`
	Changed bool            `json:"changed"`
}
