// Package position keeps the open/closed position ledger of each trader and
// settles closes against the market's liquidity pool.
package position

import (
	"context"
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub001/internal/balance"
	"github.com/Hazyshades/mantle-estate-sub001/internal/funding"
	"github.com/Hazyshades/mantle-estate-sub001/internal/metrics"
	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/Hazyshades/mantle-estate-sub001/internal/oracle"
	"github.com/Hazyshades/mantle-estate-sub001/internal/pool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Fuzzy match tolerances, in currency units
var (
	SizeTolerance  = decimal.NewFromInt(1000)
	PriceTolerance = decimal.NewFromInt(100)
)

var maxLeverage = decimal.NewFromInt(100)

// OpenRequest describes a new position
type OpenRequest struct {
	MarketID string          `json:"market_id" binding:"required"`
	Side     models.Side     `json:"side" binding:"required"`
	Size     decimal.Decimal `json:"size"`
	Leverage decimal.Decimal `json:"leverage"`
}

// View is a position with its optional closing record
type View struct {
	*models.Position
	Closing *models.ClosedInfo `json:"closed,omitempty"`
}

// NewView wraps p for responses
func NewView(p *models.Position) *View {
	v := &View{Position: p}
	if info, ok := p.Closed(); ok {
		v.Closing = &info
	}
	return v
}

// FundingReport is the accrued and projected funding of an open position
type FundingReport struct {
	Position    *models.Position     `json:"position"`
	MarketPrice decimal.Decimal      `json:"market_price"`
	FundingRate decimal.Decimal      `json:"funding_rate"`
	DaysElapsed decimal.Decimal      `json:"days_elapsed"`
	Accrued     funding.Fee          `json:"accrued"`
	Projections []funding.Projection `json:"projections"`
}

// CloseResult is a closed position and how it settled
type CloseResult struct {
	Position   *View           `json:"position"`
	Settlement Settlement      `json:"settlement"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Service defines position ledger operations
type Service interface {
	OpenPosition(ctx context.Context, id auth.Identity, req OpenRequest) (*View, error)
	ClosePosition(ctx context.Context, id auth.Identity, positionID uint) (*CloseResult, error)
	ListPositions(ctx context.Context, id auth.Identity, openOnly bool) ([]*View, error)
	GetAccruedFunding(ctx context.Context, id auth.Identity, positionID uint) (*FundingReport, error)
	FindMatchingOpenPosition(ctx context.Context, id auth.Identity, market string, approxSize, approxEntryPrice decimal.Decimal) (*models.Position, error)
	GetFundingByMatch(ctx context.Context, id auth.Identity, market string, approxSize, approxEntryPrice decimal.Decimal) (*FundingReport, error)
}

// Option configures a Service
type Option func(*service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	repo    Repository
	pools   pool.Service
	ledger  *balance.Ledger
	oracle  oracle.Oracle
	feeRate decimal.Decimal
	now     func() time.Time
}

// NewService creates a position service charging feeRate of the size on
// open and on close
func NewService(repo Repository, pools pool.Service, ledger *balance.Ledger, o oracle.Oracle, feeRate decimal.Decimal, opts ...Option) Service {
	s := &service{
		repo:    repo,
		pools:   pools,
		ledger:  ledger,
		oracle:  o,
		feeRate: feeRate,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) OpenPosition(ctx context.Context, id auth.Identity, req OpenRequest) (*View, error) {
	if id.UserID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	if !req.Side.Valid() {
		return nil, apperr.InvalidArgument("side must be long or short")
	}
	if !req.Size.IsPositive() {
		return nil, apperr.InvalidArgument("size must be positive")
	}
	if req.Leverage.LessThan(decimal.NewFromInt(1)) || req.Leverage.GreaterThan(maxLeverage) {
		return nil, apperr.InvalidArgument("leverage must be between 1 and %s", maxLeverage)
	}

	snap, err := s.oracle.GetMarket(ctx, req.MarketID)
	if err != nil {
		return nil, err
	}
	if !snap.MarketPrice.IsPositive() {
		return nil, apperr.Internal(nil, "market %s has no price", req.MarketID)
	}

	margin := req.Size.DivRound(req.Leverage, 18)
	fee := req.Size.Mul(s.feeRate)
	p := &models.Position{
		UserID:     id.UserID,
		MarketID:   req.MarketID,
		Side:       req.Side,
		Size:       req.Size,
		EntryPrice: snap.MarketPrice,
		Leverage:   req.Leverage,
		Margin:     margin,
		OpeningFee: fee,
		OpenedAt:   s.now().UTC(),
	}

	var (
		lp  *models.LiquidityPool
		bal *models.UserBalance
	)
	err = s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		// pool before balance, same order as LP flows
		pl, err := s.pools.Lock(tx, req.MarketID)
		if err != nil {
			return err
		}
		b, err := s.ledger.Debit(tx, id, margin.Add(fee))
		if err != nil {
			return err
		}
		if fee.IsPositive() {
			if pl, err = s.pools.ApplyTraderFlow(tx, req.MarketID, fee, fee); err != nil {
				return err
			}
		}
		if err := s.repo.WithTx(tx).Create(p); err != nil {
			return apperr.Internal(err, "failed to create position")
		}
		lp, bal = pl, b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PositionsTotal.WithLabelValues(p.MarketID, string(p.Side), "open").Inc()
	logrus.WithFields(logrus.Fields{
		"user_id":     id.UserID,
		"position_id": p.ID,
		"market":      p.MarketID,
		"side":        p.Side,
		"size":        p.Size.String(),
		"entry_price": p.EntryPrice.String(),
	}).Info("Position opened")

	s.pools.NotifyPool(lp)
	s.ledger.Notify(bal)
	return NewView(p), nil
}

func (s *service) ClosePosition(ctx context.Context, id auth.Identity, positionID uint) (*CloseResult, error) {
	if id.UserID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}

	existing, err := s.repo.WithContext(ctx).GetOwned(id.UserID, positionID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load position")
	}
	if existing == nil {
		return nil, apperr.NotFound("position %d not found", positionID)
	}
	if !existing.IsOpen() {
		return nil, apperr.AlreadyExists("position %d is already closed", positionID)
	}

	// price read happens before the transaction takes any row lock
	snap, err := s.oracle.GetMarket(ctx, existing.MarketID)
	if err != nil {
		return nil, err
	}

	var (
		result = &CloseResult{}
		lp     *models.LiquidityPool
		bal    *models.UserBalance
	)
	closedAt := s.now().UTC()
	err = s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.GetOwnedForUpdate(id.UserID, positionID)
		if err != nil {
			return apperr.Internal(err, "failed to load position")
		}
		if p == nil {
			return apperr.NotFound("position %d not found", positionID)
		}

		pl, err := s.pools.Lock(tx, p.MarketID)
		if err != nil {
			return err
		}
		st := Settle(p, snap.MarketPrice, s.feeRate, snap.FundingRate, closedAt, pl.TotalLiquidity)

		if !st.PoolDelta.IsZero() || st.PoolFees.IsPositive() {
			if pl, err = s.pools.ApplyTraderFlow(tx, p.MarketID, st.PoolDelta, st.PoolFees); err != nil {
				return err
			}
		}
		if st.Payout.IsPositive() {
			if bal, err = s.ledger.Credit(tx, id, st.Payout); err != nil {
				return err
			}
		} else if bal, err = s.ledger.GetOrCreate(tx, id); err != nil {
			return err
		}

		info := models.ClosedInfo{
			ClosedAt:       closedAt,
			ExitPrice:      st.ExitPrice,
			ClosingFee:     st.ClosingFee,
			RealizedPnL:    st.RealizedPnL,
			FundingSettled: st.Funding.Signed(),
		}
		closed, err := repo.Close(p.ID, info)
		if err != nil {
			return apperr.Internal(err, "failed to close position")
		}
		if !closed {
			return apperr.AlreadyExists("position %d is already closed", positionID)
		}
		p.SetClosed(info)

		lp = pl
		result.Position = NewView(p)
		result.Settlement = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.NewBalance = bal.Balance

	metrics.PositionsTotal.WithLabelValues(existing.MarketID, string(existing.Side), "close").Inc()
	logrus.WithFields(logrus.Fields{
		"user_id":      id.UserID,
		"position_id":  positionID,
		"market":       existing.MarketID,
		"exit_price":   result.Settlement.ExitPrice.String(),
		"realized_pnl": result.Settlement.RealizedPnL.String(),
		"payout":       result.Settlement.Payout.String(),
	}).Info("Position closed")

	s.pools.NotifyPool(lp)
	s.ledger.Notify(bal)
	return result, nil
}

func (s *service) ListPositions(ctx context.Context, id auth.Identity, openOnly bool) ([]*View, error) {
	if id.UserID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	positions, err := s.repo.WithContext(ctx).ListByUser(id.UserID, openOnly)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list positions")
	}

	out := make([]*View, 0, len(positions))
	for _, p := range positions {
		out = append(out, NewView(p))
	}
	return out, nil
}

func (s *service) GetAccruedFunding(ctx context.Context, id auth.Identity, positionID uint) (*FundingReport, error) {
	if id.UserID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	p, err := s.repo.WithContext(ctx).GetOwned(id.UserID, positionID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load position")
	}
	if p == nil || !p.IsOpen() {
		return nil, apperr.NotFound("open position %d not found", positionID)
	}
	return s.fundingReport(ctx, p)
}

func (s *service) fundingReport(ctx context.Context, p *models.Position) (*FundingReport, error) {
	snap, err := s.oracle.GetMarket(ctx, p.MarketID)
	if err != nil {
		return nil, err
	}

	days := funding.DaysBetween(p.OpenedAt, s.now())
	return &FundingReport{
		Position:    p,
		MarketPrice: snap.MarketPrice,
		FundingRate: snap.FundingRate,
		DaysElapsed: days,
		Accrued:     funding.Calculate(p.Side, p.Size, snap.FundingRate, days),
		Projections: funding.Project(p.Side, p.Size, snap.FundingRate, funding.DefaultHorizons),
	}, nil
}

// FindMatchingOpenPosition returns the caller's most recently opened open
// position in market whose size is within SizeTolerance of approxSize and
// whose entry price is within PriceTolerance of approxEntryPrice.
func (s *service) FindMatchingOpenPosition(ctx context.Context, id auth.Identity, market string, approxSize, approxEntryPrice decimal.Decimal) (*models.Position, error) {
	if id.UserID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	if market == "" {
		return nil, apperr.InvalidArgument("market is required")
	}

	candidates, err := s.repo.WithContext(ctx).ListOpenByMarket(id.UserID, market)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list positions")
	}

	var best *models.Position
	for _, p := range candidates {
		if p.Size.Sub(approxSize).Abs().GreaterThanOrEqual(SizeTolerance) {
			continue
		}
		if p.EntryPrice.Sub(approxEntryPrice).Abs().GreaterThanOrEqual(PriceTolerance) {
			continue
		}
		if best == nil || p.OpenedAt.After(best.OpenedAt) {
			best = p
		}
	}
	if best == nil {
		return nil, apperr.NotFound("no open position in %s matches size %s at %s", market, approxSize, approxEntryPrice)
	}
	return best, nil
}

func (s *service) GetFundingByMatch(ctx context.Context, id auth.Identity, market string, approxSize, approxEntryPrice decimal.Decimal) (*FundingReport, error) {
	p, err := s.FindMatchingOpenPosition(ctx, id, market, approxSize, approxEntryPrice)
	if err != nil {
		return nil, err
	}
	return s.fundingReport(ctx, p)
}
