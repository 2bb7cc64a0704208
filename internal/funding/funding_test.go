package funding

import (
	"testing"
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate_ScenarioSevenDays(t *testing.T) {
	fee := Calculate(models.SideLong, d("1256100"), d("0.0001"), d("7"))

	assert.True(t, fee.Amount.Equal(d("879.27")), "got %s", fee.Amount)
	assert.Equal(t, DirectionPay, fee.Direction)
}

func TestCalculate_MirrorSymmetry(t *testing.T) {
	cases := []struct {
		name  string
		value string
		rate  string
		days  string
	}{
		{"positive rate", "1000", "0.0003", "2.5"},
		{"negative rate", "50000", "-0.0012", "10"},
		{"fraction of a day", "1256100", "0.0001", "0.125"},
		{"zero days", "1000", "0.01", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			long := Calculate(models.SideLong, d(tc.value), d(tc.rate), d(tc.days))
			short := Calculate(models.SideShort, d(tc.value), d(tc.rate), d(tc.days))

			assert.True(t, long.Signed().Equal(short.Signed().Neg()),
				"long %s short %s", long.Signed(), short.Signed())
			assert.True(t, long.Amount.Equal(short.Amount))
		})
	}
}

func TestCalculate_Directions(t *testing.T) {
	assert.Equal(t, DirectionPay, Calculate(models.SideLong, d("100"), d("0.01"), d("1")).Direction)
	assert.Equal(t, DirectionReceive, Calculate(models.SideShort, d("100"), d("0.01"), d("1")).Direction)
	assert.Equal(t, DirectionReceive, Calculate(models.SideLong, d("100"), d("-0.01"), d("1")).Direction)
	assert.Equal(t, DirectionPay, Calculate(models.SideShort, d("100"), d("-0.01"), d("1")).Direction)
}

func TestCalculate_ZeroRate(t *testing.T) {
	for _, side := range []models.Side{models.SideLong, models.SideShort} {
		fee := Calculate(side, d("1000"), decimal.Zero, d("30"))
		assert.True(t, fee.Amount.IsZero())
		assert.Equal(t, DirectionReceive, fee.Direction)
		assert.True(t, fee.Signed().IsZero())
	}
}

func TestCalculate_NegativeDaysClamped(t *testing.T) {
	fee := Calculate(models.SideLong, d("1000"), d("0.01"), d("-3"))
	assert.True(t, fee.Amount.IsZero())
}

func TestDaysBetween(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, DaysBetween(start, start.Add(7*24*time.Hour)).Equal(d("7")))
	assert.True(t, DaysBetween(start, start.Add(6*time.Hour)).Equal(d("0.25")))
	assert.True(t, DaysBetween(start, start.Add(-time.Hour)).IsZero())
}

func TestProject_Linear(t *testing.T) {
	projections := Project(models.SideShort, d("20000"), d("0.0005"), DefaultHorizons)
	require.Len(t, projections, 4)

	daily := projections[0].Amount
	assert.True(t, daily.Equal(d("10")))
	for _, p := range projections {
		assert.Equal(t, DirectionReceive, p.Direction)
		assert.True(t, p.Amount.Equal(daily.Mul(decimal.NewFromInt(int64(p.Days)))),
			"horizon %d", p.Days)
	}
}
