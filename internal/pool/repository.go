package pool

import (
	"context"
	"errors"

	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PoolRepository interface defines pool and LP position database operations
type PoolRepository interface {
	WithTx(tx *gorm.DB) PoolRepository
	WithContext(ctx context.Context) PoolRepository

	GetByMarket(marketID string) (*models.LiquidityPool, error)
	GetByMarketForUpdate(marketID string) (*models.LiquidityPool, error)
	CreateIfMissing(pool *models.LiquidityPool) error
	UpdateTotals(pool *models.LiquidityPool) error

	GetLPPositionForUpdate(userID string, poolID uint) (*models.LPPosition, error)
	CreateLPPosition(lp *models.LPPosition) error
	UpdateLPPosition(lp *models.LPPosition) error
	ListLPPositionsByUser(userID string) ([]*models.LPPosition, error)
}

// poolRepository implements PoolRepository interface
type poolRepository struct {
	db *gorm.DB
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db *gorm.DB) PoolRepository {
	return &poolRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *poolRepository) WithTx(tx *gorm.DB) PoolRepository {
	return &poolRepository{db: tx}
}

// WithContext returns a repository whose queries use ctx
func (r *poolRepository) WithContext(ctx context.Context) PoolRepository {
	return &poolRepository{db: r.db.WithContext(ctx)}
}

// GetByMarket retrieves the pool of a market; nil when absent
func (r *poolRepository) GetByMarket(marketID string) (*models.LiquidityPool, error) {
	return r.getByMarket(r.db, marketID)
}

// GetByMarketForUpdate is GetByMarket with a row lock
func (r *poolRepository) GetByMarketForUpdate(marketID string) (*models.LiquidityPool, error) {
	return r.getByMarket(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), marketID)
}

func (r *poolRepository) getByMarket(db *gorm.DB, marketID string) (*models.LiquidityPool, error) {
	if marketID == "" {
		return nil, errors.New("market id cannot be empty")
	}

	var pool models.LiquidityPool
	err := db.Where("market_id = ?", marketID).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

// CreateIfMissing inserts pool unless the market already has one
func (r *poolRepository) CreateIfMissing(pool *models.LiquidityPool) error {
	if pool == nil {
		return errors.New("pool cannot be nil")
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}},
		DoNothing: true,
	}).Create(pool).Error
}

// UpdateTotals writes the four pool accumulators
func (r *poolRepository) UpdateTotals(pool *models.LiquidityPool) error {
	if pool == nil || pool.ID == 0 {
		return errors.New("pool must be persisted")
	}
	return r.db.Model(&models.LiquidityPool{}).Where("id = ?", pool.ID).Updates(map[string]interface{}{
		"total_liquidity":      pool.TotalLiquidity,
		"total_shares":         pool.TotalShares,
		"cumulative_pnl":       pool.CumulativePnL,
		"total_fees_collected": pool.TotalFeesCollected,
	}).Error
}

// GetLPPositionForUpdate retrieves a user's position in a pool with a row lock
func (r *poolRepository) GetLPPositionForUpdate(userID string, poolID uint) (*models.LPPosition, error) {
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}
	if poolID == 0 {
		return nil, errors.New("pool id cannot be zero")
	}

	var lp models.LPPosition
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND pool_id = ?", userID, poolID).
		First(&lp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lp, nil
}

// CreateLPPosition creates a new LP position
func (r *poolRepository) CreateLPPosition(lp *models.LPPosition) error {
	if lp == nil {
		return errors.New("lp position cannot be nil")
	}
	return r.db.Omit(clause.Associations).Create(lp).Error
}

// UpdateLPPosition writes shares and cumulative amounts
func (r *poolRepository) UpdateLPPosition(lp *models.LPPosition) error {
	if lp == nil || lp.ID == 0 {
		return errors.New("lp position must be persisted")
	}
	if lp.Shares.IsNegative() {
		return gorm.ErrInvalidData
	}
	return r.db.Model(&models.LPPosition{}).Where("id = ?", lp.ID).Updates(map[string]interface{}{
		"shares":           lp.Shares,
		"deposited_amount": lp.DepositedAmount,
		"withdrawn_amount": lp.WithdrawnAmount,
	}).Error
}

// ListLPPositionsByUser returns every position of a user, including
// zero-share ones, with the pool preloaded
func (r *poolRepository) ListLPPositionsByUser(userID string) ([]*models.LPPosition, error) {
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}

	var positions []*models.LPPosition
	err := r.db.Preload("Pool").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&positions).Error
	return positions, err
}
