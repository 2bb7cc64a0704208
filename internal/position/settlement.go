package position

import (
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/funding"
	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/shopspring/decimal"
)

// Settlement is the outcome of closing a position at a price
type Settlement struct {
	ExitPrice   decimal.Decimal `json:"exit_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ClosingFee  decimal.Decimal `json:"closing_fee"`
	Funding     funding.Fee     `json:"funding"`
	Payout      decimal.Decimal `json:"payout"`

	// PoolDelta is what the pool gains (negative: pays out); PoolFees is
	// the fee part of it
	PoolDelta decimal.Decimal `json:"pool_delta"`
	PoolFees  decimal.Decimal `json:"pool_fees"`
}

// PricePnL is the profit of a position of notional size moving from entry
// to exit
func PricePnL(side models.Side, size, entry, exit decimal.Decimal) decimal.Decimal {
	if !entry.IsPositive() {
		return decimal.Zero
	}
	pnl := size.Mul(exit.Sub(entry)).Div(entry)
	if side == models.SideShort {
		return pnl.Neg()
	}
	return pnl
}

// Settle computes the close of p at exitPrice. The payout is floored at
// zero and capped at the margin plus what the pool holds.
func Settle(p *models.Position, exitPrice, feeRate, fundingRate decimal.Decimal, closedAt time.Time, poolLiquidity decimal.Decimal) Settlement {
	pnl := PricePnL(p.Side, p.Size, p.EntryPrice, exitPrice)
	closingFee := p.Size.Mul(feeRate)
	fee := funding.Calculate(p.Side, p.Size, fundingRate, funding.DaysBetween(p.OpenedAt, closedAt))

	payout := p.Margin.Add(pnl).Sub(closingFee).Sub(fee.Signed())
	if payout.IsNegative() {
		payout = decimal.Zero
	}
	if limit := p.Margin.Add(poolLiquidity); payout.GreaterThan(limit) {
		payout = limit
	}

	delta := p.Margin.Sub(payout)
	fees := closingFee
	if payout.IsZero() {
		fees = decimal.Min(closingFee, p.Margin)
	}

	return Settlement{
		ExitPrice:   exitPrice,
		RealizedPnL: pnl,
		ClosingFee:  closingFee,
		Funding:     fee,
		Payout:      payout,
		PoolDelta:   delta,
		PoolFees:    fees,
	}
}
