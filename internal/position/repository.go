package position

import (
	"context"
	"errors"

	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository interface defines position database operations
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	WithContext(ctx context.Context) Repository

	Create(p *models.Position) error
	GetOwned(userID string, id uint) (*models.Position, error)
	GetOwnedForUpdate(userID string, id uint) (*models.Position, error)
	ListByUser(userID string, openOnly bool) ([]*models.Position, error)
	ListOpenByMarket(userID, marketID string) ([]*models.Position, error)
	Close(id uint, info models.ClosedInfo) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new position repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) WithContext(ctx context.Context) Repository {
	return &repository{db: r.db.WithContext(ctx)}
}

// Create inserts an open position
func (r *repository) Create(p *models.Position) error {
	if p == nil {
		return errors.New("position cannot be nil")
	}
	return r.db.Create(p).Error
}

// GetOwned retrieves a position of userID; nil when absent or owned by
// someone else
func (r *repository) GetOwned(userID string, id uint) (*models.Position, error) {
	return r.getOwned(r.db, userID, id)
}

// GetOwnedForUpdate is GetOwned with a row lock
func (r *repository) GetOwnedForUpdate(userID string, id uint) (*models.Position, error) {
	return r.getOwned(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), userID, id)
}

func (r *repository) getOwned(db *gorm.DB, userID string, id uint) (*models.Position, error) {
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}

	var p models.Position
	err := db.Where("id = ? AND user_id = ?", id, userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListByUser returns a user's positions, newest first
func (r *repository) ListByUser(userID string, openOnly bool) ([]*models.Position, error) {
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}

	query := r.db.Where("user_id = ?", userID)
	if openOnly {
		query = query.Where("closed_at IS NULL")
	}

	var positions []*models.Position
	err := query.Order("opened_at DESC").Order("id DESC").Find(&positions).Error
	return positions, err
}

// ListOpenByMarket returns a user's open positions in one market, most
// recently opened first
func (r *repository) ListOpenByMarket(userID, marketID string) ([]*models.Position, error) {
	if userID == "" || marketID == "" {
		return nil, errors.New("user id and market id are required")
	}

	var positions []*models.Position
	err := r.db.Where("user_id = ? AND market_id = ? AND closed_at IS NULL", userID, marketID).
		Order("opened_at DESC").
		Order("id DESC").
		Find(&positions).Error
	return positions, err
}

// Close writes the closing record if the position is still open. It
// reports false when the position was already closed.
func (r *repository) Close(id uint, info models.ClosedInfo) (bool, error) {
	result := r.db.Model(&models.Position{}).
		Where("id = ? AND closed_at IS NULL", id).
		Updates(map[string]interface{}{
			"closed_at":       info.ClosedAt,
			"exit_price":      info.ExitPrice,
			"closing_fee":     info.ClosingFee,
			"realized_pnl":    info.RealizedPnL,
			"funding_settled": info.FundingSettled,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
