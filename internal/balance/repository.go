package balance

import (
	"errors"

	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines user balance database operations
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByUserID(userID string) (*models.UserBalance, error)
	GetForUpdate(userID string) (*models.UserBalance, error)
	CreateIfMissing(b *models.UserBalance) error
	UpdateBalance(userID string, balance decimal.Decimal) error
	UpdateWallet(userID, wallet string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new balance repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx returns a repository bound to tx
func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

// GetByUserID retrieves a balance row; nil when absent
func (r *repository) GetByUserID(userID string) (*models.UserBalance, error) {
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}

	var b models.UserBalance
	err := r.db.Where("user_id = ?", userID).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// GetForUpdate reads the row with SELECT ... FOR UPDATE
func (r *repository) GetForUpdate(userID string) (*models.UserBalance, error) {
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}

	var b models.UserBalance
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// CreateIfMissing inserts b unless a row for the user exists
func (r *repository) CreateIfMissing(b *models.UserBalance) error {
	if b == nil {
		return errors.New("balance cannot be nil")
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(b).Error
}

// UpdateBalance sets the spendable balance
func (r *repository) UpdateBalance(userID string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return errors.New("balance cannot be negative")
	}
	return r.db.Model(&models.UserBalance{}).
		Where("user_id = ?", userID).
		Update("balance", balance).Error
}

// UpdateWallet replaces the linked wallet
func (r *repository) UpdateWallet(userID, wallet string) error {
	return r.db.Model(&models.UserBalance{}).
		Where("user_id = ?", userID).
		Update("wallet_address", wallet).Error
}
