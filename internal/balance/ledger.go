// Package balance owns every user's spendable balance. Other ledgers change
// balances only through a Ledger, inside the transaction that records the
// triggering event.
package balance

import (
	"context"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/Hazyshades/mantle-estate-sub001/internal/websocket"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Ledger is the balance service
type Ledger struct {
	db              *gorm.DB
	repo            Repository
	startingBalance decimal.Decimal
	publisher       websocket.Publisher
}

// NewLedger creates a ledger; new users start with startingBalance
func NewLedger(db *gorm.DB, repo Repository, startingBalance decimal.Decimal, publisher websocket.Publisher) *Ledger {
	if publisher == nil {
		publisher = websocket.Discard
	}
	return &Ledger{
		db:              db,
		repo:            repo,
		startingBalance: startingBalance,
		publisher:       publisher,
	}
}

// WithTx runs fn in one database transaction
func (l *Ledger) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return l.db.WithContext(ctx).Transaction(fn)
}

// GetOrCreate returns the caller's row locked for update, creating it with
// the starting balance on first use.
func (l *Ledger) GetOrCreate(tx *gorm.DB, id auth.Identity) (*models.UserBalance, error) {
	if id.UserID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	repo := l.repo.WithTx(tx)

	b, err := repo.GetForUpdate(id.UserID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load balance")
	}
	if b != nil {
		return b, nil
	}

	if err := repo.CreateIfMissing(&models.UserBalance{
		UserID:  id.UserID,
		Email:   id.Email,
		Balance: l.startingBalance,
	}); err != nil {
		return nil, apperr.Internal(err, "failed to create balance")
	}

	// a concurrent creator may have won; read whichever row exists
	b, err = repo.GetForUpdate(id.UserID)
	if err != nil || b == nil {
		return nil, apperr.Internal(err, "failed to load balance")
	}
	logrus.WithFields(logrus.Fields{
		"user_id": id.UserID,
		"balance": b.Balance.String(),
	}).Info("Balance created")
	return b, nil
}

// Credit adds amount to the caller's balance
func (l *Ledger) Credit(tx *gorm.DB, id auth.Identity, amount decimal.Decimal) (*models.UserBalance, error) {
	if !amount.IsPositive() {
		return nil, apperr.InvalidArgument("credit amount must be positive")
	}
	b, err := l.GetOrCreate(tx, id)
	if err != nil {
		return nil, err
	}

	b.Balance = b.Balance.Add(amount)
	if err := l.repo.WithTx(tx).UpdateBalance(id.UserID, b.Balance); err != nil {
		return nil, apperr.Internal(err, "failed to credit balance")
	}
	return b, nil
}

// Debit subtracts amount, failing with InsufficientFunds when the balance
// would go negative. The row stays locked until tx ends.
func (l *Ledger) Debit(tx *gorm.DB, id auth.Identity, amount decimal.Decimal) (*models.UserBalance, error) {
	if !amount.IsPositive() {
		return nil, apperr.InvalidArgument("debit amount must be positive")
	}
	b, err := l.GetOrCreate(tx, id)
	if err != nil {
		return nil, err
	}

	if b.Balance.LessThan(amount) {
		return nil, apperr.InsufficientFunds("insufficient balance").
			WithDetail("balance", b.Balance.String()).
			WithDetail("requested", amount.String())
	}

	b.Balance = b.Balance.Sub(amount)
	if err := l.repo.WithTx(tx).UpdateBalance(id.UserID, b.Balance); err != nil {
		return nil, apperr.Internal(err, "failed to debit balance")
	}
	return b, nil
}

// LinkWallet sets the caller's wallet, replacing any previous one
func (l *Ledger) LinkWallet(tx *gorm.DB, id auth.Identity, wallet string) (*models.UserBalance, error) {
	if !common.IsHexAddress(wallet) {
		return nil, apperr.InvalidArgument("invalid wallet address")
	}
	b, err := l.GetOrCreate(tx, id)
	if err != nil {
		return nil, err
	}

	normalized := models.NormalizeWallet(wallet)
	if b.WalletAddress != nil && *b.WalletAddress == normalized {
		return b, nil
	}
	if err := l.repo.WithTx(tx).UpdateWallet(id.UserID, normalized); err != nil {
		return nil, apperr.Internal(err, "failed to link wallet")
	}
	b.WalletAddress = &normalized
	return b, nil
}

// Get returns the caller's balance, creating it on first use. Existing rows
// are read without a transaction.
func (l *Ledger) Get(ctx context.Context, id auth.Identity) (*models.UserBalance, error) {
	if id.UserID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	b, err := l.repo.WithTx(l.db.WithContext(ctx)).GetByUserID(id.UserID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load balance")
	}
	if b != nil {
		return b, nil
	}

	var out *models.UserBalance
	err = l.WithTx(ctx, func(tx *gorm.DB) error {
		b, err := l.GetOrCreate(tx, id)
		out = b
		return err
	})
	return out, err
}

// LinkWalletWithSignature links wallet after checking a personal_sign
// signature of auth.WalletLinkMessage by that wallet.
func (l *Ledger) LinkWalletWithSignature(ctx context.Context, id auth.Identity, wallet, signature string) (*models.UserBalance, error) {
	if !common.IsHexAddress(wallet) {
		return nil, apperr.InvalidArgument("invalid wallet address")
	}
	if err := auth.VerifySignature(auth.WalletLinkMessage(id.UserID, wallet), signature, wallet); err != nil {
		return nil, apperr.PermissionDenied("wallet ownership not proven: %v", err)
	}

	var out *models.UserBalance
	err := l.WithTx(ctx, func(tx *gorm.DB) error {
		b, err := l.LinkWallet(tx, id, wallet)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": id.UserID,
		"wallet":  *out.WalletAddress,
	}).Info("Wallet linked")
	l.Notify(out)
	return out, nil
}

// Notify publishes a committed balance to the owner's topic
func (l *Ledger) Notify(b *models.UserBalance) {
	if b == nil {
		return
	}
	l.publisher.Publish(websocket.BalanceTopic(b.UserID), websocket.MessageTypeBalanceUpdate, b)
}
