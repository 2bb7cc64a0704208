// Package funding computes funding fees between long and short holders.
package funding

import (
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/shopspring/decimal"
)

// Direction tells whether the position holder pays or receives the fee
type Direction string

const (
	DirectionPay     Direction = "pay"
	DirectionReceive Direction = "receive"
)

// DefaultHorizons are the projection horizons in days
var DefaultHorizons = []int{1, 7, 30, 90}

var secondsPerDay = decimal.NewFromInt(86400)

// Fee is an unsigned funding amount with its direction
type Fee struct {
	Amount    decimal.Decimal `json:"amount"`
	Direction Direction       `json:"direction"`
}

// Signed returns the fee from the holder's point of view:
// positive when paying, negative when receiving.
func (f Fee) Signed() decimal.Decimal {
	if f.Direction == DirectionPay {
		return f.Amount
	}
	return f.Amount.Neg()
}

// Calculate returns the funding fee for a position of positionValue held for
// daysElapsed at fundingRate per day. A positive rate means longs pay shorts.
// A zero rate yields a zero fee in the receive direction.
func Calculate(side models.Side, positionValue, fundingRate, daysElapsed decimal.Decimal) Fee {
	if fundingRate.IsZero() {
		return Fee{Amount: decimal.Zero, Direction: DirectionReceive}
	}
	if daysElapsed.IsNegative() {
		daysElapsed = decimal.Zero
	}

	raw := positionValue.Mul(fundingRate).Mul(daysElapsed)

	longPays := fundingRate.IsPositive()
	pays := longPays
	if side == models.SideShort {
		pays = !longPays
	}

	dir := DirectionReceive
	if pays {
		dir = DirectionPay
	}
	return Fee{Amount: raw.Abs(), Direction: dir}
}

// DaysBetween returns the fractional number of days from from to to,
// never negative.
func DaysBetween(from, to time.Time) decimal.Decimal {
	if !to.After(from) {
		return decimal.Zero
	}
	seconds := decimal.NewFromFloat(to.Sub(from).Seconds())
	return seconds.Div(secondsPerDay)
}

// Projection is the fee expected over a horizon at the current rate
type Projection struct {
	Days int `json:"days"`
	Fee
}

// Project extrapolates the current rate linearly over each horizon
func Project(side models.Side, positionValue, fundingRate decimal.Decimal, horizons []int) []Projection {
	out := make([]Projection, 0, len(horizons))
	for _, days := range horizons {
		out = append(out, Projection{
			Days: days,
			Fee:  Calculate(side, positionValue, fundingRate, decimal.NewFromInt(int64(days))),
		})
	}
	return out
}
