// Package job_order provides the JobOrder document: sales order lines routed
// to production. Each line carries its reservation, up to eight shipment
// tranches and the quantities derived from them.
package job_order

import (
	"context"
	"time"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

// MaxTranches is the number of shipment slots per line.
const MaxTranches = 8

// Status is the job order lifecycle state.
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOnHold     Status = "on_hold"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPlanning, StatusInProgress, StatusCompleted, StatusOnHold, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the order can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo checks if the status can transition to the target status.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPlanning:
		return target == StatusInProgress || target == StatusOnHold || target == StatusCancelled
	case StatusInProgress:
		return target == StatusCompleted || target == StatusOnHold || target == StatusCancelled
	case StatusOnHold:
		return target == StatusPlanning || target == StatusInProgress || target == StatusCancelled
	default:
		return false
	}
}

// JobOrder is a production order for some lines of one sales order.
type JobOrder struct {
	entity.Document

	SalesOrderID id.ID      `db:"sales_order_id" json:"salesOrderId"`
	DueDate      *time.Time `db:"due_date" json:"dueDate,omitempty"`
	AssignedTo   string     `db:"assigned_to" json:"assignedTo,omitempty"`
	Instructions string     `db:"instructions" json:"instructions,omitempty"`

	Status Status `db:"status" json:"status"`

	Lines []Line `db:"-" json:"lines"`
}

// NewJobOrder creates a job order in planning.
func NewJobOrder(salesOrderID id.ID) *JobOrder {
	return &JobOrder{
		Document:     entity.NewDocument(),
		SalesOrderID: salesOrderID,
		Status:       StatusPlanning,
		Lines:        make([]Line, 0),
	}
}

// AddLine appends a line routed from a sales order line.
func (j *JobOrder) AddLine(salesOrderLineID, productID id.ID, quantity types.Quantity) *Line {
	j.Lines = append(j.Lines, NewLine(j.ID, salesOrderLineID, productID, quantity))
	j.renumber()
	return &j.Lines[len(j.Lines)-1]
}

func (j *JobOrder) renumber() {
	for i := range j.Lines {
		j.Lines[i].LineNo = i + 1
		j.Lines[i].JobOrderID = j.ID
	}
}

// Validate implements entity.Validatable.
func (j *JobOrder) Validate(ctx context.Context) error {
	if err := j.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(j.SalesOrderID) {
		return apperror.NewValidation("sales order is required").
			WithDetail("field", "salesOrderId")
	}
	if !j.Status.IsValid() {
		return apperror.NewValidation("invalid status").
			WithDetail("field", "status").
			WithDetail("value", string(j.Status))
	}
	if len(j.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for i := range j.Lines {
		if err := j.Lines[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CanMutateLines reports whether reservations and tranches may change.
// On-hold orders are paused; completed and cancelled ones are frozen.
func (j *JobOrder) CanMutateLines() error {
	switch {
	case j.Status.IsTerminal():
		return apperror.NewImmutableDocument("job order", j.ID.String(), string(j.Status))
	case j.Status == StatusOnHold:
		return apperror.NewValidation("job order is on hold").
			WithDetail("status", string(j.Status))
	}
	return nil
}

// TransitionTo moves the order to target. Completion requires every line to
// be fully shipped.
func (j *JobOrder) TransitionTo(target Status) error {
	if j.Status.IsTerminal() {
		return apperror.NewImmutableDocument("job order", j.ID.String(), string(j.Status))
	}
	if !j.Status.CanTransitionTo(target) {
		return apperror.NewInvalidTransition("job order", string(j.Status), string(target))
	}
	if target == StatusCompleted {
		for _, l := range j.Lines {
			if l.OrderBalance.IsPositive() {
				return apperror.NewValidation("job order has unshipped lines").
					WithDetail("lineId", l.LineID.String()).
					WithDetail("orderBalance", l.OrderBalance.String())
			}
		}
	}
	j.Status = target
	j.Touch()
	return nil
}

// Summary aggregates the lines of one job order.
type Summary struct {
	TotalItems        int            `json:"totalItems"`
	TotalQuantity     types.Quantity `json:"totalQuantity"`
	TotalReserved     types.Quantity `json:"totalReserved"`
	TotalShipped      types.Quantity `json:"totalShipped"`
	TotalReady        types.Quantity `json:"totalReady"`
	TotalToProduce    types.Quantity `json:"totalToProduce"`
	TotalOrderBalance types.Quantity `json:"totalOrderBalance"`
}

// Summarize computes the summary from the derived line fields.
func (j *JobOrder) Summarize() Summary {
	var s Summary
	for _, l := range j.Lines {
		d := l.Derive()
		s.TotalItems++
		s.TotalQuantity += l.Quantity
		s.TotalReserved += l.Reserved
		s.TotalShipped += d.Shipped
		s.TotalReady += d.Ready
		s.TotalToProduce += d.ToProduce
		s.TotalOrderBalance += d.OrderBalance
	}
	return s
}
