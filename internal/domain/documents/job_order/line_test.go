package job_order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

func q(s string) types.Quantity { return types.MustQuantity(s) }

func TestDerive(t *testing.T) {
	tests := []struct {
		name     string
		quantity string
		reserved string
		tranches map[int]string
		want     Derived
	}{
		{
			name:     "nothing reserved",
			quantity: "10", reserved: "0",
			want: Derived{Shipped: 0, OrderBalance: q("10"), Ready: 0, ToProduce: q("10")},
		},
		{
			name:     "partly shipped",
			quantity: "10", reserved: "6",
			tranches: map[int]string{1: "4"},
			want:     Derived{Shipped: q("4"), OrderBalance: q("6"), Ready: q("2"), ToProduce: q("4")},
		},
		{
			name:     "tranches sum across slots",
			quantity: "10", reserved: "8",
			tranches: map[int]string{1: "1.5", 5: "2", 8: "0.5"},
			want:     Derived{Shipped: q("4"), OrderBalance: q("6"), Ready: q("4"), ToProduce: q("2")},
		},
		{
			name:     "shipped beyond reservation",
			quantity: "10", reserved: "2",
			tranches: map[int]string{2: "5"},
			want:     Derived{Shipped: q("5"), OrderBalance: q("5"), Ready: q("-3"), ToProduce: q("8")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLine(id.New(), id.New(), id.New(), q(tt.quantity))
			l.Reserved = q(tt.reserved)
			for i, v := range tt.tranches {
				l.Tranches[i-1] = q(v)
			}
			assert.Equal(t, tt.want, l.Derive())

			l.Recompute()
			assert.Equal(t, tt.want, l.Stored())
			assert.False(t, l.Recompute(), "second recompute is a no-op")
		})
	}
}

func TestHeldAndExcess(t *testing.T) {
	l := NewLine(id.New(), id.New(), id.New(), q("10"))
	l.Reserved = q("6")
	l.Tranches[0] = q("4")
	assert.Equal(t, q("2"), l.Held())
	assert.True(t, l.Excess().IsZero())

	l.Tranches[1] = q("5")
	assert.True(t, l.Held().IsZero())
	assert.Equal(t, q("3"), l.Excess())
}

func TestTrancheIndex(t *testing.T) {
	l := NewLine(id.New(), id.New(), id.New(), q("10"))
	l.Tranches[MaxTranches-1] = q("1")

	v, err := l.Tranche(MaxTranches)
	require.NoError(t, err)
	assert.Equal(t, q("1"), v)

	for _, index := range []int{0, -1, MaxTranches + 1} {
		_, err := l.Tranche(index)
		assert.True(t, apperror.IsValidation(err), "index %d", index)
	}
}

func TestLineValidate(t *testing.T) {
	valid := func() Line { return NewLine(id.New(), id.New(), id.New(), q("10")) }
	tests := []struct {
		name   string
		mutate func(l *Line)
	}{
		{"missing product", func(l *Line) { l.ProductID = id.Nil() }},
		{"missing sales order line", func(l *Line) { l.SalesOrderLineID = id.Nil() }},
		{"zero quantity", func(l *Line) { l.Quantity = 0 }},
		{"negative reserved", func(l *Line) { l.Reserved = q("-1") }},
		{"reserved above quantity", func(l *Line) { l.Reserved = q("10.1") }},
		{"negative tranche", func(l *Line) { l.Tranches[3] = q("-0.1") }},
	}
	l := valid()
	require.NoError(t, l.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := valid()
			tt.mutate(&l)
			assert.True(t, apperror.IsValidation(l.Validate()))
		})
	}
}

func TestClone_CopiesSources(t *testing.T) {
	l := NewLine(id.New(), id.New(), id.New(), q("10"))
	l.Sources[entity.LocationNG] = q("2")

	c := l.Clone()
	c.Sources[entity.LocationNG] = q("5")
	c.Tranches[0] = q("1")

	assert.Equal(t, q("2"), l.Sources[entity.LocationNG])
	assert.True(t, l.Tranches[0].IsZero())
}

func TestJobOrder_TransitionTo(t *testing.T) {
	jo := NewJobOrder(id.New())
	line := jo.AddLine(id.New(), id.New(), q("3"))

	err := jo.TransitionTo(StatusCompleted)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidTransition, appErr.Code)

	require.NoError(t, jo.TransitionTo(StatusInProgress))
	assert.True(t, apperror.IsValidation(jo.TransitionTo(StatusCompleted)), "unshipped line blocks completion")

	line.Reserved = q("3")
	line.Tranches[0] = q("3")
	line.Recompute()
	require.NoError(t, jo.TransitionTo(StatusCompleted))

	assert.True(t, apperror.IsImmutable(jo.TransitionTo(StatusCancelled)))
	assert.True(t, apperror.IsImmutable(jo.CanMutateLines()))
}

func TestJobOrder_CanMutateLines(t *testing.T) {
	tests := []struct {
		status Status
		check  func(error) bool
	}{
		{StatusPlanning, func(err error) bool { return err == nil }},
		{StatusInProgress, func(err error) bool { return err == nil }},
		{StatusOnHold, apperror.IsValidation},
		{StatusCompleted, apperror.IsImmutable},
		{StatusCancelled, apperror.IsImmutable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			jo := NewJobOrder(id.New())
			jo.Status = tt.status
			assert.True(t, tt.check(jo.CanMutateLines()))
		})
	}
}

func TestSummarize(t *testing.T) {
	jo := NewJobOrder(id.New())
	a := jo.AddLine(id.New(), id.New(), q("10"))
	a.Reserved = q("6")
	a.Tranches[0] = q("4")
	b := jo.AddLine(id.New(), id.New(), q("5"))
	b.Reserved = q("5")

	assert.Equal(t, 2, jo.Lines[1].LineNo)
	assert.Equal(t, Summary{
		TotalItems:        2,
		TotalQuantity:     q("15"),
		TotalReserved:     q("11"),
		TotalShipped:      q("4"),
		TotalReady:        q("7"),
		TotalToProduce:    q("4"),
		TotalOrderBalance: q("11"),
	}, jo.Summarize())
}
