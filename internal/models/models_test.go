package models_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func openPosition() *models.Position {
	return &models.Position{
		UserID:     "alice",
		MarketID:   "nyc",
		Side:       models.SideLong,
		Size:       decimal.NewFromInt(1000),
		EntryPrice: decimal.NewFromInt(500),
		Leverage:   decimal.NewFromInt(5),
		Margin:     decimal.NewFromInt(200),
		OpenedAt:   time.Now(),
	}
}

func TestPosition_BeforeCreate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		assert.NoError(t, openPosition().BeforeCreate(nil))
	})

	t.Run("InvalidSide", func(t *testing.T) {
		p := openPosition()
		p.Side = "sideways"
		assert.ErrorIs(t, p.BeforeCreate(nil), gorm.ErrInvalidData)
	})

	t.Run("NonPositiveSize", func(t *testing.T) {
		p := openPosition()
		p.Size = decimal.Zero
		assert.ErrorIs(t, p.BeforeCreate(nil), gorm.ErrInvalidData)
	})

	t.Run("AlreadyClosed", func(t *testing.T) {
		p := openPosition()
		p.SetClosed(models.ClosedInfo{ClosedAt: time.Now()})
		assert.ErrorIs(t, p.BeforeCreate(nil), gorm.ErrInvalidData)
	})
}

func TestPosition_Closed(t *testing.T) {
	p := openPosition()
	assert.True(t, p.IsOpen())
	_, ok := p.Closed()
	assert.False(t, ok)

	closedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p.SetClosed(models.ClosedInfo{
		ClosedAt:       closedAt,
		ExitPrice:      decimal.NewFromInt(550),
		ClosingFee:     decimal.NewFromInt(1),
		RealizedPnL:    decimal.NewFromInt(100),
		FundingSettled: decimal.NewFromInt(-3),
	})

	assert.False(t, p.IsOpen())
	info, ok := p.Closed()
	assert.True(t, ok)
	assert.Equal(t, closedAt, info.ClosedAt)
	assert.True(t, info.RealizedPnL.Equal(decimal.NewFromInt(100)))
	assert.True(t, info.FundingSettled.Equal(decimal.NewFromInt(-3)))
}

func TestLiquidityPool_SharePrice(t *testing.T) {
	empty := &models.LiquidityPool{}
	assert.True(t, empty.SharePrice().Equal(decimal.NewFromInt(1)))

	pool := &models.LiquidityPool{
		TotalLiquidity: decimal.NewFromInt(11500),
		TotalShares:    decimal.NewFromInt(11000),
	}
	assert.Equal(t, "1.0455", pool.SharePrice().StringFixed(4))
}

func TestBalanceHooks(t *testing.T) {
	assert.NoError(t, (&models.UserBalance{Balance: decimal.Zero}).BeforeSave(nil))
	assert.ErrorIs(t, (&models.UserBalance{Balance: decimal.NewFromInt(-1)}).BeforeSave(nil), gorm.ErrInvalidData)
	assert.ErrorIs(t, (&models.LPPosition{Shares: decimal.NewFromInt(-1)}).BeforeSave(nil), gorm.ErrInvalidData)
}

func TestBridgeEvent_BeforeCreate(t *testing.T) {
	valid := func() *models.BridgeEvent {
		return &models.BridgeEvent{
			EventID:       "evt-1",
			TxHash:        "0x" + strings.Repeat("ab", 32),
			WalletAddress: "0x" + strings.Repeat("1", 40),
			Amount:        1,
		}
	}

	assert.NoError(t, valid().BeforeCreate(nil))

	e := valid()
	e.EventID = ""
	assert.ErrorIs(t, e.BeforeCreate(nil), gorm.ErrInvalidData)

	e = valid()
	e.TxHash = "0x1234"
	assert.ErrorIs(t, e.BeforeCreate(nil), gorm.ErrInvalidData)

	e = valid()
	e.Amount = 0
	assert.ErrorIs(t, e.BeforeCreate(nil), gorm.ErrInvalidData)
}

func TestNormalizeWallet(t *testing.T) {
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001",
		models.NormalizeWallet(" 0xABCDEF0000000000000000000000000000000001 "))
}
