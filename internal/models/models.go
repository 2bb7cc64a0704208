package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Side is the direction of a perpetual position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is a known side
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Market is a city index market. Rows are maintained by the external
// price/funding feed; the settlement services only read them.
type Market struct {
	ID                string          `json:"id" gorm:"primaryKey;size:32"`
	City              string          `json:"city" gorm:"not null;size:100"`
	IndexPrice        decimal.Decimal `json:"index_price" gorm:"type:decimal(36,18)"`
	MarketPrice       decimal.Decimal `json:"market_price" gorm:"type:decimal(36,18)"`
	FundingRate       decimal.Decimal `json:"funding_rate" gorm:"type:decimal(36,18)"` // per day, positive: longs pay shorts
	LastFundingUpdate time.Time       `json:"last_funding_update"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName returns the table name for Market model
func (Market) TableName() string {
	return "markets"
}

// Position is a leveraged long/short position. Size is the notional in
// currency units. The closing columns are either all NULL (open) or all set
// (closed); use Closed to read them.
type Position struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	UserID     string          `json:"user_id" gorm:"not null;size:64;index:idx_positions_owner_market"`
	MarketID   string          `json:"market_id" gorm:"not null;size:32;index:idx_positions_owner_market"`
	Side       Side            `json:"side" gorm:"not null;size:5"`
	Size       decimal.Decimal `json:"size" gorm:"type:decimal(36,18);not null"`
	EntryPrice decimal.Decimal `json:"entry_price" gorm:"type:decimal(36,18);not null"`
	Leverage   decimal.Decimal `json:"leverage" gorm:"type:decimal(10,4);not null"`
	Margin     decimal.Decimal `json:"margin" gorm:"type:decimal(36,18);not null"`
	OpeningFee decimal.Decimal `json:"opening_fee" gorm:"type:decimal(36,18)"`
	OpenedAt   time.Time       `json:"opened_at" gorm:"not null;index"`

	ClosedAt       *time.Time       `json:"-" gorm:"index"`
	ExitPrice      *decimal.Decimal `json:"-" gorm:"type:decimal(36,18)"`
	ClosingFee     *decimal.Decimal `json:"-" gorm:"type:decimal(36,18)"`
	RealizedPnL    *decimal.Decimal `json:"-" gorm:"column:realized_pnl;type:decimal(36,18)"`
	FundingSettled *decimal.Decimal `json:"-" gorm:"type:decimal(36,18)"` // signed, positive: trader paid

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClosedInfo is the settlement record of a closed position
type ClosedInfo struct {
	ClosedAt       time.Time       `json:"closed_at"`
	ExitPrice      decimal.Decimal `json:"exit_price"`
	ClosingFee     decimal.Decimal `json:"closing_fee"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	FundingSettled decimal.Decimal `json:"funding_settled"`
}

// TableName returns the table name for Position model
func (Position) TableName() string {
	return "positions"
}

// IsOpen reports whether the position still accrues funding
func (p *Position) IsOpen() bool {
	return p.ClosedAt == nil
}

// Closed returns the closing record, or false while the position is open
func (p *Position) Closed() (ClosedInfo, bool) {
	if p.ClosedAt == nil {
		return ClosedInfo{}, false
	}
	info := ClosedInfo{ClosedAt: *p.ClosedAt}
	if p.ExitPrice != nil {
		info.ExitPrice = *p.ExitPrice
	}
	if p.ClosingFee != nil {
		info.ClosingFee = *p.ClosingFee
	}
	if p.RealizedPnL != nil {
		info.RealizedPnL = *p.RealizedPnL
	}
	if p.FundingSettled != nil {
		info.FundingSettled = *p.FundingSettled
	}
	return info, true
}

// SetClosed fills the closing columns from info
func (p *Position) SetClosed(info ClosedInfo) {
	closedAt := info.ClosedAt
	exit, fee, pnl, fundingSettled := info.ExitPrice, info.ClosingFee, info.RealizedPnL, info.FundingSettled
	p.ClosedAt = &closedAt
	p.ExitPrice = &exit
	p.ClosingFee = &fee
	p.RealizedPnL = &pnl
	p.FundingSettled = &fundingSettled
}

// BeforeCreate hook to validate position data
func (p *Position) BeforeCreate(tx *gorm.DB) error {
	if p.UserID == "" || p.MarketID == "" || !p.Side.Valid() {
		return gorm.ErrInvalidData
	}
	if !p.Size.IsPositive() || !p.EntryPrice.IsPositive() || !p.Leverage.IsPositive() {
		return gorm.ErrInvalidData
	}
	if p.ClosedAt != nil {
		return gorm.ErrInvalidData
	}
	return nil
}

// LiquidityPool is the per-market pool that takes the other side of every
// trader. Shares are only minted or burned by LP deposits and withdrawals.
type LiquidityPool struct {
	ID                 uint            `json:"id" gorm:"primaryKey"`
	MarketID           string          `json:"market_id" gorm:"uniqueIndex;not null;size:32"`
	TotalLiquidity     decimal.Decimal `json:"total_liquidity" gorm:"type:decimal(36,18);not null"`
	TotalShares        decimal.Decimal `json:"total_shares" gorm:"type:decimal(36,18);not null"`
	CumulativePnL      decimal.Decimal `json:"cumulative_pnl" gorm:"column:cumulative_pnl;type:decimal(36,18)"`
	TotalFeesCollected decimal.Decimal `json:"total_fees_collected" gorm:"type:decimal(36,18)"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName returns the table name for LiquidityPool model
func (LiquidityPool) TableName() string {
	return "liquidity_pools"
}

// SharePrice is total liquidity per share, 1 while no shares exist
func (p *LiquidityPool) SharePrice() decimal.Decimal {
	if !p.TotalShares.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return p.TotalLiquidity.Div(p.TotalShares)
}

// LPPosition is a user's share holding in one pool
type LPPosition struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	UserID          string          `json:"user_id" gorm:"not null;size:64;uniqueIndex:idx_lp_user_pool"`
	PoolID          uint            `json:"pool_id" gorm:"not null;uniqueIndex:idx_lp_user_pool"`
	Shares          decimal.Decimal `json:"shares" gorm:"type:decimal(36,18);not null"`
	DepositedAmount decimal.Decimal `json:"deposited_amount" gorm:"type:decimal(36,18)"`
	WithdrawnAmount decimal.Decimal `json:"withdrawn_amount" gorm:"type:decimal(36,18)"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Relationships
	Pool *LiquidityPool `json:"pool,omitempty" gorm:"foreignKey:PoolID"`
}

// TableName returns the table name for LPPosition model
func (LPPosition) TableName() string {
	return "lp_positions"
}

// BeforeSave hook to keep shares non-negative
func (lp *LPPosition) BeforeSave(tx *gorm.DB) error {
	if lp.Shares.IsNegative() {
		return gorm.ErrInvalidData
	}
	return nil
}

// UserBalance is the spendable balance of one user
type UserBalance struct {
	UserID        string          `json:"user_id" gorm:"primaryKey;size:64"`
	Email         string          `json:"email" gorm:"size:255"`
	Balance       decimal.Decimal `json:"balance" gorm:"type:decimal(36,18);not null"`
	WalletAddress *string         `json:"wallet_address,omitempty" gorm:"size:42;index"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName returns the table name for UserBalance model
func (UserBalance) TableName() string {
	return "user_balances"
}

// BeforeSave hook to keep the balance non-negative
func (b *UserBalance) BeforeSave(tx *gorm.DB) error {
	if b.Balance.IsNegative() {
		return gorm.ErrInvalidData
	}
	return nil
}

// BridgeEvent is the common part of every reconciled on-chain event. EventID
// and TxHash are each unique per table; they form the idempotency key.
// EventTimestamp is the chain-side time reported with the event; CreatedAt
// is when it was recorded and keys the daily mint window.
type BridgeEvent struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	EventID        string    `json:"event_id" gorm:"uniqueIndex;not null;size:130"`
	TxHash         string    `json:"tx_hash" gorm:"uniqueIndex;not null;size:66"`
	WalletAddress  string    `json:"wallet_address" gorm:"not null;size:42;index"`
	Amount         int64     `json:"amount" gorm:"not null"` // smallest token unit
	BlockNumber    uint64    `json:"block_number"`
	Nonce          uint64    `json:"nonce"`
	EventTimestamp time.Time `json:"event_timestamp" gorm:"index"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

// BeforeCreate hook to validate bridge event data
func (e *BridgeEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == "" || len(e.TxHash) != 66 || len(e.WalletAddress) != 42 {
		return gorm.ErrInvalidData
	}
	if e.Amount <= 0 {
		return gorm.ErrInvalidData
	}
	return nil
}

// MintEvent records a verified stablecoin mint. Its event id is the tx hash.
type MintEvent struct {
	BridgeEvent
}

// TableName returns the table name for MintEvent model
func (MintEvent) TableName() string {
	return "mint_events"
}

// DepositEvent records a verified deposit into the vault
type DepositEvent struct {
	BridgeEvent
	UserID string `json:"user_id" gorm:"not null;size:64;index"`
}

// TableName returns the table name for DepositEvent model
func (DepositEvent) TableName() string {
	return "deposit_events"
}

// WithdrawalEvent records a withdrawal debited from a balance
type WithdrawalEvent struct {
	BridgeEvent
	UserID string `json:"user_id" gorm:"not null;size:64;index"`
}

// TableName returns the table name for WithdrawalEvent model
func (WithdrawalEvent) TableName() string {
	return "withdrawal_events"
}

// MintWindow is the per-wallet lock row for one UTC day of mints. Mints of
// the same wallet and day lock it before summing, so ceiling checks run one
// at a time.
type MintWindow struct {
	WalletAddress string    `json:"wallet_address" gorm:"primaryKey;size:42"`
	Day           string    `json:"day" gorm:"primaryKey;size:10"` // 2006-01-02, UTC
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the table name for MintWindow model
func (MintWindow) TableName() string {
	return "mint_windows"
}

// All lists every model for migrations
func All() []interface{} {
	return []interface{}{
		&Market{},
		&Position{},
		&LiquidityPool{},
		&LPPosition{},
		&UserBalance{},
		&MintEvent{},
		&DepositEvent{},
		&WithdrawalEvent{},
		&MintWindow{},
	}
}

// NormalizeWallet returns the lower-case hex form used for storage and
// comparison of wallet addresses.
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
