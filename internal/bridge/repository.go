package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository interface defines bridge event database operations
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	WithContext(ctx context.Context) Repository

	FindMint(eventID, txHash string) (*models.MintEvent, error)
	CreateMint(e *models.MintEvent) error
	SumMinted(wallet string, from, to time.Time) (int64, error)
	LockMintWindow(wallet string, day time.Time) error

	FindDeposit(eventID, txHash string) (*models.DepositEvent, error)
	CreateDeposit(e *models.DepositEvent) error
	ListDeposits(userID string, limit, offset int) ([]*models.DepositEvent, error)

	FindWithdrawal(eventID, txHash string) (*models.WithdrawalEvent, error)
	CreateWithdrawal(e *models.WithdrawalEvent) error
	ListWithdrawals(userID string, limit, offset int) ([]*models.WithdrawalEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new bridge event repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) WithContext(ctx context.Context) Repository {
	return &repository{db: r.db.WithContext(ctx)}
}

// findEvent looks an event up by its event id or its tx hash
func findEvent[T any](db *gorm.DB, eventID, txHash string) (*T, error) {
	var e T
	err := db.Where("event_id = ? OR tx_hash = ?", eventID, txHash).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func listEvents[T any](db *gorm.DB, userID string, limit, offset int) ([]*T, error) {
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}
	var events []*T
	err := db.Where("user_id = ?", userID).
		Order("event_timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	return events, err
}

func (r *repository) FindMint(eventID, txHash string) (*models.MintEvent, error) {
	return findEvent[models.MintEvent](r.db, eventID, txHash)
}

func (r *repository) CreateMint(e *models.MintEvent) error {
	return r.db.Create(e).Error
}

// SumMinted totals the units recorded as minted to wallet in [from, to)
func (r *repository) SumMinted(wallet string, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.Model(&models.MintEvent{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("wallet_address = ? AND created_at >= ? AND created_at < ?", wallet, from, to).
		Row().
		Scan(&total)
	return total, err
}

// LockMintWindow locks the wallet's mint window for the UTC day of day,
// creating it first. Must run inside a transaction.
func (r *repository) LockMintWindow(wallet string, day time.Time) error {
	w := models.MintWindow{WalletAddress: wallet, Day: day.UTC().Format(time.DateOnly)}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&w).Error; err != nil {
		return err
	}
	return r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("wallet_address = ? AND day = ?", w.WalletAddress, w.Day).
		First(&w).Error
}

func (r *repository) FindDeposit(eventID, txHash string) (*models.DepositEvent, error) {
	return findEvent[models.DepositEvent](r.db, eventID, txHash)
}

func (r *repository) CreateDeposit(e *models.DepositEvent) error {
	return r.db.Create(e).Error
}

func (r *repository) ListDeposits(userID string, limit, offset int) ([]*models.DepositEvent, error) {
	return listEvents[models.DepositEvent](r.db, userID, limit, offset)
}

func (r *repository) FindWithdrawal(eventID, txHash string) (*models.WithdrawalEvent, error) {
	return findEvent[models.WithdrawalEvent](r.db, eventID, txHash)
}

func (r *repository) CreateWithdrawal(e *models.WithdrawalEvent) error {
	return r.db.Create(e).Error
}

func (r *repository) ListWithdrawals(userID string, limit, offset int) ([]*models.WithdrawalEvent, error) {
	return listEvents[models.WithdrawalEvent](r.db, userID, limit, offset)
}
