// Package oracle gives read-only access to the price and funding feed.
// Market rows are written by the external feed process.
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Snapshot is the current price and funding state of a market
type Snapshot struct {
	MarketID          string          `json:"market_id"`
	City              string          `json:"city"`
	IndexPrice        decimal.Decimal `json:"index_price"`
	MarketPrice       decimal.Decimal `json:"market_price"`
	FundingRate       decimal.Decimal `json:"funding_rate"`
	LastFundingUpdate time.Time       `json:"last_funding_update"`
}

// Oracle reads market snapshots. Missing markets are NotFound.
type Oracle interface {
	GetMarket(ctx context.Context, marketID string) (*Snapshot, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an Oracle backed by the markets table
func NewRepository(db *gorm.DB) Oracle {
	return &repository{db: db}
}

func (r *repository) GetMarket(ctx context.Context, marketID string) (*Snapshot, error) {
	if marketID == "" {
		return nil, apperr.InvalidArgument("market id is required")
	}

	var m models.Market
	err := r.db.WithContext(ctx).Where("id = ?", marketID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("market %s not found", marketID)
		}
		return nil, apperr.Internal(err, "failed to load market %s", marketID)
	}
	return FromModel(&m), nil
}

// FromModel converts a market row to a snapshot
func FromModel(m *models.Market) *Snapshot {
	return &Snapshot{
		MarketID:          m.ID,
		City:              m.City,
		IndexPrice:        m.IndexPrice,
		MarketPrice:       m.MarketPrice,
		FundingRate:       m.FundingRate,
		LastFundingUpdate: m.LastFundingUpdate,
	}
}
