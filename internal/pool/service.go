package pool

import (
	"context"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub001/internal/balance"
	"github.com/Hazyshades/mantle-estate-sub001/internal/metrics"
	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/Hazyshades/mantle-estate-sub001/internal/oracle"
	"github.com/Hazyshades/mantle-estate-sub001/internal/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shareScale = 18

// burnTolerance absorbs rounding when an LP withdraws its full value
var burnTolerance = decimal.New(1, -12)

// PoolInfo is the public state of a market's pool
type PoolInfo struct {
	PoolID             uint            `json:"pool_id"`
	MarketID           string          `json:"market_id"`
	TotalLiquidity     decimal.Decimal `json:"total_liquidity"`
	TotalShares        decimal.Decimal `json:"total_shares"`
	SharePrice         decimal.Decimal `json:"share_price"`
	CumulativePnL      decimal.Decimal `json:"cumulative_pnl"`
	TotalFeesCollected decimal.Decimal `json:"total_fees_collected"`
}

// LPPositionView is an LP position valued at the current share price
type LPPositionView struct {
	PoolID          uint            `json:"pool_id"`
	MarketID        string          `json:"market_id"`
	Shares          decimal.Decimal `json:"shares"`
	SharePrice      decimal.Decimal `json:"share_price"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	DepositedAmount decimal.Decimal `json:"deposited_amount"`
	WithdrawnAmount decimal.Decimal `json:"withdrawn_amount"`
	NetDeposited    decimal.Decimal `json:"net_deposited"`
	Profit          decimal.Decimal `json:"profit"`
	ProfitPercent   decimal.Decimal `json:"profit_percent"`
}

// FlowResult reports an LP deposit or withdrawal
type FlowResult struct {
	Pool       PoolInfo        `json:"pool"`
	Position   LPPositionView  `json:"position"`
	Shares     decimal.Decimal `json:"shares"` // minted or burned
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Service defines pool service operations
type Service interface {
	GetPoolInfo(ctx context.Context, market string) (*PoolInfo, error)
	GetUserPositions(ctx context.Context, id auth.Identity) ([]*LPPositionView, error)
	Deposit(ctx context.Context, id auth.Identity, market string, amount decimal.Decimal) (*FlowResult, error)
	Withdraw(ctx context.Context, id auth.Identity, market string, amount decimal.Decimal) (*FlowResult, error)

	// Lock returns the market's pool locked for update inside tx, creating
	// an empty one if needed.
	Lock(tx *gorm.DB, market string) (*models.LiquidityPool, error)
	// ApplyTraderFlow moves delta into (or out of, when negative) the pool
	// without minting shares; fees is the part of delta that is fee income.
	// It must run inside the caller's transaction.
	ApplyTraderFlow(tx *gorm.DB, market string, delta, fees decimal.Decimal) (*models.LiquidityPool, error)
	NotifyPool(pool *models.LiquidityPool)
}

type service struct {
	repo      PoolRepository
	ledger    *balance.Ledger
	oracle    oracle.Oracle
	publisher websocket.Publisher
}

// NewService creates a new pool service
func NewService(repo PoolRepository, ledger *balance.Ledger, o oracle.Oracle, publisher websocket.Publisher) Service {
	if publisher == nil {
		publisher = websocket.Discard
	}
	return &service{repo: repo, ledger: ledger, oracle: o, publisher: publisher}
}

// Info builds the public view of a pool; nil yields the zero state
func Info(market string, p *models.LiquidityPool) PoolInfo {
	if p == nil {
		return PoolInfo{
			MarketID:           market,
			TotalLiquidity:     decimal.Zero,
			TotalShares:        decimal.Zero,
			SharePrice:         decimal.NewFromInt(1),
			CumulativePnL:      decimal.Zero,
			TotalFeesCollected: decimal.Zero,
		}
	}
	return PoolInfo{
		PoolID:             p.ID,
		MarketID:           p.MarketID,
		TotalLiquidity:     p.TotalLiquidity,
		TotalShares:        p.TotalShares,
		SharePrice:         p.SharePrice(),
		CumulativePnL:      p.CumulativePnL,
		TotalFeesCollected: p.TotalFeesCollected,
	}
}

// View values lp at the share price of p
func View(lp *models.LPPosition, p *models.LiquidityPool) LPPositionView {
	price := decimal.NewFromInt(1)
	market := ""
	if p != nil {
		price = p.SharePrice()
		market = p.MarketID
	}

	current := lp.Shares.Mul(price)
	net := lp.DepositedAmount.Sub(lp.WithdrawnAmount)
	profit := current.Sub(net)
	percent := decimal.Zero
	if net.IsPositive() {
		percent = profit.Div(net).Mul(decimal.NewFromInt(100))
	}

	return LPPositionView{
		PoolID:          lp.PoolID,
		MarketID:        market,
		Shares:          lp.Shares,
		SharePrice:      price,
		CurrentValue:    current,
		DepositedAmount: lp.DepositedAmount,
		WithdrawnAmount: lp.WithdrawnAmount,
		NetDeposited:    net,
		Profit:          profit,
		ProfitPercent:   percent,
	}
}

func (s *service) GetPoolInfo(ctx context.Context, market string) (*PoolInfo, error) {
	if market == "" {
		return nil, apperr.InvalidArgument("market id is required")
	}
	p, err := s.repo.WithContext(ctx).GetByMarket(market)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load pool")
	}
	info := Info(market, p)
	return &info, nil
}

func (s *service) GetUserPositions(ctx context.Context, id auth.Identity) ([]*LPPositionView, error) {
	if id.UserID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	positions, err := s.repo.WithContext(ctx).ListLPPositionsByUser(id.UserID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load lp positions")
	}

	out := make([]*LPPositionView, 0, len(positions))
	for _, lp := range positions {
		v := View(lp, lp.Pool)
		out = append(out, &v)
	}
	return out, nil
}

func (s *service) Deposit(ctx context.Context, id auth.Identity, market string, amount decimal.Decimal) (*FlowResult, error) {
	if !amount.IsPositive() {
		return nil, apperr.InvalidArgument("amount must be positive")
	}
	if _, err := s.oracle.GetMarket(ctx, market); err != nil {
		return nil, err
	}

	var (
		result = &FlowResult{}
		pool   *models.LiquidityPool
		bal    *models.UserBalance
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		p, err := s.lockOrCreate(repo, market)
		if err != nil {
			return err
		}

		b, err := s.ledger.Debit(tx, id, amount)
		if err != nil {
			return err
		}

		price, err := solventPrice(p)
		if err != nil {
			return err
		}
		minted := amount.DivRound(price, shareScale)
		p.TotalLiquidity = p.TotalLiquidity.Add(amount)
		p.TotalShares = p.TotalShares.Add(minted)
		if err := repo.UpdateTotals(p); err != nil {
			return apperr.Internal(err, "failed to update pool")
		}

		lp, err := repo.GetLPPositionForUpdate(id.UserID, p.ID)
		if err != nil {
			return apperr.Internal(err, "failed to load lp position")
		}
		if lp == nil {
			lp = &models.LPPosition{
				UserID:          id.UserID,
				PoolID:          p.ID,
				Shares:          minted,
				DepositedAmount: amount,
				WithdrawnAmount: decimal.Zero,
			}
			if err := repo.CreateLPPosition(lp); err != nil {
				return apperr.Internal(err, "failed to create lp position")
			}
		} else {
			lp.Shares = lp.Shares.Add(minted)
			lp.DepositedAmount = lp.DepositedAmount.Add(amount)
			if err := repo.UpdateLPPosition(lp); err != nil {
				return apperr.Internal(err, "failed to update lp position")
			}
		}

		pool, bal = p, b
		result.Shares = minted
		result.Position = View(lp, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Pool = Info(market, pool)
	result.NewBalance = bal.Balance
	s.afterFlow(id, market, "deposit", amount, result, pool, bal)
	return result, nil
}

func (s *service) Withdraw(ctx context.Context, id auth.Identity, market string, amount decimal.Decimal) (*FlowResult, error) {
	if !amount.IsPositive() {
		return nil, apperr.InvalidArgument("amount must be positive")
	}

	var (
		result = &FlowResult{}
		pool   *models.LiquidityPool
		bal    *models.UserBalance
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		p, err := repo.GetByMarketForUpdate(market)
		if err != nil {
			return apperr.Internal(err, "failed to load pool")
		}
		if p == nil {
			return apperr.NotFound("no liquidity pool for market %s", market)
		}

		lp, err := repo.GetLPPositionForUpdate(id.UserID, p.ID)
		if err != nil {
			return apperr.Internal(err, "failed to load lp position")
		}
		if lp == nil {
			return apperr.InsufficientFunds("insufficient shares").
				WithDetail("shares", "0")
		}

		if amount.GreaterThan(p.TotalLiquidity) {
			return apperr.InsufficientFunds("pool liquidity too low").
				WithDetail("total_liquidity", p.TotalLiquidity.String())
		}
		price, err := solventPrice(p)
		if err != nil {
			return err
		}

		burned := amount.DivRound(price, shareScale)
		if burned.GreaterThan(lp.Shares) {
			if burned.Sub(lp.Shares).GreaterThan(burnTolerance) {
				return apperr.InsufficientFunds("insufficient shares").
					WithDetail("shares", lp.Shares.String()).
					WithDetail("required", burned.String())
			}
			burned = lp.Shares
		}

		p.TotalLiquidity = p.TotalLiquidity.Sub(amount)
		p.TotalShares = p.TotalShares.Sub(burned)
		if err := repo.UpdateTotals(p); err != nil {
			return apperr.Internal(err, "failed to update pool")
		}

		lp.Shares = lp.Shares.Sub(burned)
		lp.WithdrawnAmount = lp.WithdrawnAmount.Add(amount)
		if err := repo.UpdateLPPosition(lp); err != nil {
			return apperr.Internal(err, "failed to update lp position")
		}

		b, err := s.ledger.Credit(tx, id, amount)
		if err != nil {
			return err
		}

		pool, bal = p, b
		result.Shares = burned
		result.Position = View(lp, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Pool = Info(market, pool)
	result.NewBalance = bal.Balance
	s.afterFlow(id, market, "withdraw", amount, result, pool, bal)
	return result, nil
}

// solventPrice is the share price to mint or burn at. A pool whose
// liquidity was paid out to traders while shares remain has no price.
func solventPrice(p *models.LiquidityPool) (decimal.Decimal, error) {
	price := p.SharePrice()
	if !price.IsPositive() {
		return decimal.Zero, apperr.Internal(nil, "pool %s is insolvent", p.MarketID).
			WithDetail("total_liquidity", p.TotalLiquidity.String()).
			WithDetail("total_shares", p.TotalShares.String())
	}
	return price, nil
}

func (s *service) Lock(tx *gorm.DB, market string) (*models.LiquidityPool, error) {
	return s.lockOrCreate(s.repo.WithTx(tx), market)
}

func (s *service) ApplyTraderFlow(tx *gorm.DB, market string, delta, fees decimal.Decimal) (*models.LiquidityPool, error) {
	repo := s.repo.WithTx(tx)
	p, err := s.lockOrCreate(repo, market)
	if err != nil {
		return nil, err
	}

	next := p.TotalLiquidity.Add(delta)
	if next.IsNegative() {
		return nil, apperr.Internal(nil, "pool %s cannot cover trader payout", market).
			WithDetail("total_liquidity", p.TotalLiquidity.String())
	}

	p.TotalLiquidity = next
	p.TotalFeesCollected = p.TotalFeesCollected.Add(fees)
	p.CumulativePnL = p.CumulativePnL.Add(delta.Sub(fees))
	if err := repo.UpdateTotals(p); err != nil {
		return nil, apperr.Internal(err, "failed to update pool")
	}
	return p, nil
}

func (s *service) NotifyPool(p *models.LiquidityPool) {
	if p == nil {
		return
	}
	s.publisher.Publish(websocket.PoolTopic(p.MarketID), websocket.MessageTypePoolUpdate, Info(p.MarketID, p))
}

// lockOrCreate returns the market's pool locked for update, creating an
// empty one first if needed
func (s *service) lockOrCreate(repo PoolRepository, market string) (*models.LiquidityPool, error) {
	p, err := repo.GetByMarketForUpdate(market)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load pool")
	}
	if p != nil {
		return p, nil
	}

	if err := repo.CreateIfMissing(&models.LiquidityPool{
		MarketID:           market,
		TotalLiquidity:     decimal.Zero,
		TotalShares:        decimal.Zero,
		CumulativePnL:      decimal.Zero,
		TotalFeesCollected: decimal.Zero,
	}); err != nil {
		return nil, apperr.Internal(err, "failed to create pool")
	}
	p, err = repo.GetByMarketForUpdate(market)
	if err != nil || p == nil {
		return nil, apperr.Internal(err, "failed to load pool")
	}
	logrus.WithField("market", market).Info("Liquidity pool created")
	return p, nil
}

func (s *service) afterFlow(id auth.Identity, market, direction string, amount decimal.Decimal, result *FlowResult, p *models.LiquidityPool, b *models.UserBalance) {
	metrics.PoolFlowsTotal.WithLabelValues(market, direction).Inc()
	logrus.WithFields(logrus.Fields{
		"user_id":     id.UserID,
		"market":      market,
		"amount":      amount.String(),
		"shares":      result.Shares.String(),
		"share_price": result.Pool.SharePrice.String(),
	}).Info("Liquidity " + direction)

	s.NotifyPool(p)
	s.ledger.Notify(b)
}
