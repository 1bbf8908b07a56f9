package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusHasDeliver, OrderStatusDone, true},
		{OrderStatusWaitPay, OrderStatusAlreadyPay, true},
		{OrderStatusAlreadyPay, OrderStatusDone, false},
		{OrderStatusDone, OrderStatusDone, false},
		{OrderStatusDone, OrderStatusHasDeliver, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanTransitionTo(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestOrderTotals(t *testing.T) {
	items := []*OrderItem{
		{Price: decimal.NewFromInt(100), PointRate: decimal.Zero},
		{Price: decimal.RequireFromString("50.5"), PointRate: decimal.RequireFromString("0.2")},
	}

	price, points := OrderTotals(items, decimal.RequireFromString("0.1"))

	assert.True(t, price.Equal(decimal.RequireFromString("150.5")))
	// 100*0.1 + 50.5*0.2 = 20.1 -> 20
	assert.Equal(t, int64(20), points)
}

func TestOrderTotals_RoundsHalfUp(t *testing.T) {
	items := []*OrderItem{{Price: decimal.NewFromInt(5), PointRate: decimal.RequireFromString("0.1")}}

	_, points := OrderTotals(items, decimal.Zero)

	assert.Equal(t, int64(1), points)
}

func TestRole(t *testing.T) {
	assert.True(t, RoleAgent.AtLeast(RoleDirector))
	assert.False(t, RoleVIP.AtLeast(RoleManager))
	assert.Equal(t, "MANAGER", RoleManager.String())
	assert.False(t, Role(9).Valid())

	r, err := ParseRole("director")
	require.NoError(t, err)
	assert.Equal(t, RoleDirector, r)

	_, err = ParseRole("boss")
	assert.Error(t, err)
}

func TestBalanceDelta_Apply(t *testing.T) {
	u := User{ComPoint: 10, Gold: decimal.NewFromInt(1), Version: 2}
	d := BalanceDelta{ComPoint: -3, Gold: decimal.NewFromInt(3)}

	got := d.Apply(u)

	assert.Equal(t, int64(7), got.ComPoint)
	assert.True(t, got.Gold.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, int64(10), u.ComPoint)
	assert.True(t, BalanceDelta{}.IsZero())
}

func TestFulfillmentRecord_Settled(t *testing.T) {
	r := &FulfillmentRecord{
		PointsStep:     StepStatusDone,
		SpendStep:      StepStatusSkipped,
		CommissionStep: StepStatusFailed,
	}
	assert.False(t, r.Settled())

	r.SetStepStatus(StepCommission, StepStatusDone)
	assert.True(t, r.Settled())
	assert.Equal(t, "commission_step", StepCommission.Column())
}

func TestFulfillmentRecord_Abandoned(t *testing.T) {
	r := &FulfillmentRecord{
		PointsStep:     StepStatusFailed,
		SpendStep:      StepStatusDone,
		CommissionStep: StepStatusDone,
		Attempts:       2,
	}
	assert.False(t, r.Abandoned(3))

	r.Attempts = 3
	assert.True(t, r.Abandoned(3))

	r.SetStepStatus(StepPoints, StepStatusDone)
	assert.False(t, r.Abandoned(3))
}
