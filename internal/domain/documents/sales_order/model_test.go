package sales_order

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusProcessing, false},
		{StatusConfirmed, StatusProcessing, true},
		{StatusConfirmed, StatusShipped, false},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTransitionTo(t *testing.T) {
	o := NewSalesOrder("C1", "Customer", "EUR")

	err := o.TransitionTo(StatusShipped)
	appErr, ok := apperror.AsAppError(err)
	if assert.True(t, ok) {
		assert.Equal(t, apperror.CodeInvalidTransition, appErr.Code)
	}

	for _, s := range []Status{StatusConfirmed, StatusProcessing, StatusShipped} {
		assert.NoError(t, o.TransitionTo(s))
	}
	assert.Equal(t, ShippingShipped, o.ShippingStatus)

	assert.NoError(t, o.TransitionTo(StatusDelivered))
	assert.True(t, apperror.IsImmutable(o.TransitionTo(StatusCancelled)))
}

func TestCanModifyLines(t *testing.T) {
	tests := []struct {
		status Status
		check  func(error) bool
	}{
		{StatusPending, func(err error) bool { return err == nil }},
		{StatusConfirmed, apperror.IsValidation},
		{StatusProcessing, apperror.IsValidation},
		{StatusDelivered, apperror.IsImmutable},
		{StatusCancelled, apperror.IsImmutable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			o := NewSalesOrder("C1", "Customer", "EUR")
			o.Status = tt.status
			assert.True(t, tt.check(o.CanModifyLines()))
		})
	}
}

func TestRecalculate(t *testing.T) {
	o := NewSalesOrder("C1", "Customer", "EUR")
	o.AddLine(id.New(), types.MustQuantity("3"), types.MustMoney("2.10"))
	o.AddLine(id.New(), types.MustQuantity("0.5"), types.MustMoney("100"))

	assert.Equal(t, 2, o.Lines[1].LineNo)
	assert.True(t, types.MustMoney("6.30").Equal(o.Lines[0].Amount))
	assert.True(t, types.MustMoney("56.30").Equal(o.TotalAmount))

	line, ok := o.Line(o.Lines[1].LineID)
	assert.True(t, ok)
	assert.Equal(t, types.MustQuantity("0.5"), line.Quantity)
	_, ok = o.Line(id.New())
	assert.False(t, ok)
}

func TestProjectStatus(t *testing.T) {
	q := types.MustQuantity
	tests := []struct {
		name       string
		status     Status
		production []ProductionSnapshot
		want       FulfillmentStatus
	}{
		{"no job orders", StatusConfirmed, nil, FulfillmentPending},
		{"only cancelled job orders", StatusProcessing, []ProductionSnapshot{
			{Cancelled: true, OrderBalances: []types.Quantity{q("5")}},
		}, FulfillmentPending},
		{"job order without lines", StatusProcessing, []ProductionSnapshot{{}}, FulfillmentPending},
		{"open balance", StatusProcessing, []ProductionSnapshot{
			{OrderBalances: []types.Quantity{q("0"), q("2")}},
		}, FulfillmentInProduction},
		{"open balance in second order", StatusProcessing, []ProductionSnapshot{
			{OrderBalances: []types.Quantity{q("0")}},
			{OrderBalances: []types.Quantity{q("0.1")}},
		}, FulfillmentInProduction},
		{"everything shipped", StatusProcessing, []ProductionSnapshot{
			{OrderBalances: []types.Quantity{q("0"), q("0")}},
			{Cancelled: true, OrderBalances: []types.Quantity{q("4")}},
		}, FulfillmentFulfilled},
		{"over-shipped counts as fulfilled", StatusShipped, []ProductionSnapshot{
			{OrderBalances: []types.Quantity{q("-1")}},
		}, FulfillmentFulfilled},
		{"over-shipped next to exact line", StatusProcessing, []ProductionSnapshot{
			{OrderBalances: []types.Quantity{q("-2.5"), q("0")}},
		}, FulfillmentFulfilled},
		{"over-shipped line does not offset open line", StatusProcessing, []ProductionSnapshot{
			{OrderBalances: []types.Quantity{q("-3")}},
			{OrderBalances: []types.Quantity{q("2")}},
		}, FulfillmentInProduction},
		{"cancelled order", StatusCancelled, []ProductionSnapshot{
			{OrderBalances: []types.Quantity{q("3")}},
		}, FulfillmentCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectStatus(tt.status, tt.production))
		})
	}
}
