// Package bridge reconciles on-chain stablecoin mints, vault deposits and
// withdrawals with internal balances. Every event is applied at most once.
package bridge

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub001/internal/balance"
	"github.com/Hazyshades/mantle-estate-sub001/internal/metrics"
	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxEventIDLen   = 130

	// maxClockSkew bounds how far a submitted event time may lead the server clock
	maxClockSkew = 5 * time.Minute
)

// EventRequest is a claimed on-chain event. EventID defaults to a value
// derived from the tx hash; a zero Timestamp means the time it is recorded.
type EventRequest struct {
	EventID     string    `json:"event_id"`
	Wallet      string    `json:"wallet" binding:"required"`
	TxHash      string    `json:"tx_hash" binding:"required"`
	Amount      int64     `json:"amount"`
	BlockNumber uint64    `json:"block_number"`
	Nonce       uint64    `json:"nonce"`
	Timestamp   time.Time `json:"timestamp"`
}

// Validate checks the request fields before any I/O
func (r EventRequest) Validate() error {
	if len(r.EventID) > maxEventIDLen {
		return apperr.InvalidArgument("event id is too long")
	}
	return ValidateEvent(r.Wallet, r.TxHash, r.Amount)
}

// ValidateMint is Validate for mints, where a zero amount means the amount
// decoded from the calldata
func (r EventRequest) ValidateMint() error {
	if len(r.EventID) > maxEventIDLen {
		return apperr.InvalidArgument("event id is too long")
	}
	if r.Amount < 0 {
		return apperr.InvalidArgument("amount cannot be negative")
	}
	return ValidateRef(r.Wallet, r.TxHash)
}

// UserEventRequest is a deposit or withdrawal claimed for an internal user
type UserEventRequest struct {
	EventRequest
	UserID string `json:"user_id" binding:"required"`
}

// MintLimit is a wallet's mint allowance for the current UTC day, in tokens
type MintLimit struct {
	Wallet    string          `json:"wallet"`
	Minted    decimal.Decimal `json:"minted"`
	Remaining decimal.Decimal `json:"remaining"`
	Limit     decimal.Decimal `json:"limit"`
	ResetsAt  time.Time       `json:"resets_at"`
}

// MintResult is a recorded mint
type MintResult struct {
	Event     *models.MintEvent `json:"event"`
	Remaining decimal.Decimal   `json:"remaining"`
}

// BalanceResult is a recorded deposit or withdrawal
type BalanceResult struct {
	Event      interface{}     `json:"event"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Service defines bridge reconciliation operations
type Service interface {
	RecordMint(ctx context.Context, req EventRequest) (*MintResult, error)
	RecordDeposit(ctx context.Context, id auth.Identity, req UserEventRequest) (*BalanceResult, error)
	RecordWithdraw(ctx context.Context, id auth.Identity, req UserEventRequest) (*BalanceResult, error)
	GetDailyMintLimit(ctx context.Context, wallet string) (*MintLimit, error)
	ListDeposits(ctx context.Context, id auth.Identity, limit, offset int) ([]*models.DepositEvent, error)
	ListWithdrawals(ctx context.Context, id auth.Identity, limit, offset int) ([]*models.WithdrawalEvent, error)
}

// Config holds the contracts and limits of the bridge
type Config struct {
	TokenContract common.Address
	VaultContract common.Address
	// DailyMintLimit is the per-wallet ceiling in smallest units
	DailyMintLimit int64
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
	repo     Repository
	ledger   *balance.Ledger
	chain    Chain
	verifier Verifier
	cfg      Config
	now      func() time.Time
}

// NewService creates a bridge service. A nil chain makes every verified
// event fail with Internal.
func NewService(repo Repository, ledger *balance.Ledger, chain Chain, verifier Verifier, cfg Config, opts ...Option) Service {
	s := &service{
		repo:     repo,
		ledger:   ledger,
		chain:    chain,
		verifier: verifier,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) RecordMint(ctx context.Context, req EventRequest) (*MintResult, error) {
	result, err := s.recordMint(ctx, req)
	observe("mint", err)
	return result, err
}

func (s *service) recordMint(ctx context.Context, req EventRequest) (*MintResult, error) {
	if err := req.ValidateMint(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	at, err := eventTime(req, now)
	if err != nil {
		return nil, err
	}
	wallet := models.NormalizeWallet(req.Wallet)
	txHash := strings.ToLower(req.TxHash)

	receipt, tx, err := s.fetch(ctx, txHash, true)
	if err != nil {
		return nil, err
	}
	call, err := s.verifier.VerifyMintCall(receipt, tx, s.cfg.TokenContract)
	if err != nil {
		return nil, apperr.Internal(err, "mint verification failed")
	}
	if !strings.EqualFold(call.To.Hex(), wallet) {
		return nil, apperr.Internal(nil, "mint verification failed: recipient %s does not match wallet", call.To.Hex())
	}
	if call.Amount.Sign() <= 0 || !call.Amount.IsInt64() {
		return nil, apperr.Internal(nil, "mint verification failed: amount %s out of range", call.Amount)
	}
	amount := call.Amount.Int64()
	if req.Amount != 0 && req.Amount != amount {
		return nil, apperr.Internal(nil, "mint verification failed: amount %s does not match claim", call.Amount)
	}

	event := &models.MintEvent{BridgeEvent: s.newEvent(req, txHash, wallet, at, now)}
	event.EventID = txHash
	event.Amount = amount

	var remaining int64
	err = s.ledger.WithTx(ctx, func(dbTx *gorm.DB) error {
		repo := s.repo.WithTx(dbTx)
		existing, err := repo.FindMint(event.EventID, txHash)
		if err != nil {
			return apperr.Internal(err, "failed to check mint")
		}
		if existing != nil {
			return apperr.AlreadyExists("mint %s already recorded", txHash)
		}

		if err := repo.LockMintWindow(wallet, now); err != nil {
			return apperr.Internal(err, "failed to lock mint window")
		}
		start, end := utcDay(now)
		minted, err := repo.SumMinted(wallet, start, end)
		if err != nil {
			return apperr.Internal(err, "failed to sum mints")
		}
		left := s.cfg.DailyMintLimit - minted
		if amount > left {
			if left < 0 {
				left = 0
			}
			return apperr.ResourceExhausted("daily mint limit exceeded").
				WithDetail("remaining", ToTokens(left).String()).
				WithDetail("limit", ToTokens(s.cfg.DailyMintLimit).String())
		}

		if err := repo.CreateMint(event); err != nil {
			return insertError(err, "mint", txHash)
		}
		remaining = left - amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.MintedUnits.Add(float64(amount))
	logrus.WithFields(logrus.Fields{
		"wallet":  wallet,
		"tx_hash": txHash,
		"amount":  amount,
	}).Info("Mint recorded")
	return &MintResult{Event: event, Remaining: ToTokens(remaining)}, nil
}

func (s *service) RecordDeposit(ctx context.Context, id auth.Identity, req UserEventRequest) (*BalanceResult, error) {
	result, err := s.recordDeposit(ctx, id, req)
	observe("deposit", err)
	return result, err
}

func (s *service) recordDeposit(ctx context.Context, id auth.Identity, req UserEventRequest) (*BalanceResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := authorize(id, req.UserID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	at, err := eventTime(req.EventRequest, now)
	if err != nil {
		return nil, err
	}
	wallet := models.NormalizeWallet(req.Wallet)
	txHash := strings.ToLower(req.TxHash)

	receipt, _, err := s.fetch(ctx, txHash, false)
	if err != nil {
		return nil, err
	}
	logged, err := s.verifier.VerifyDeposit(receipt, s.cfg.VaultContract, common.HexToAddress(wallet), big.NewInt(req.Amount))
	if err != nil {
		return nil, apperr.Internal(err, "deposit verification failed")
	}

	event := &models.DepositEvent{
		BridgeEvent: s.newEvent(req.EventRequest, txHash, wallet, at, now),
		UserID:      id.UserID,
	}
	if req.EventID == "" {
		event.EventID = logEventID(txHash, logged.LogIndex)
	}

	var bal *models.UserBalance
	err = s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindDeposit(event.EventID, txHash)
		if err != nil {
			return apperr.Internal(err, "failed to check deposit")
		}
		if existing != nil {
			return apperr.AlreadyExists("deposit %s already recorded", txHash)
		}
		if err := repo.CreateDeposit(event); err != nil {
			return insertError(err, "deposit", txHash)
		}
		b, err := s.ledger.Credit(tx, id, ToTokens(req.Amount))
		if err != nil {
			return err
		}
		bal = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": id.UserID,
		"wallet":  wallet,
		"tx_hash": txHash,
		"amount":  req.Amount,
	}).Info("Deposit recorded")
	s.ledger.Notify(bal)
	return &BalanceResult{Event: event, NewBalance: bal.Balance}, nil
}

func (s *service) RecordWithdraw(ctx context.Context, id auth.Identity, req UserEventRequest) (*BalanceResult, error) {
	result, err := s.recordWithdraw(ctx, id, req)
	observe("withdraw", err)
	return result, err
}

// recordWithdraw trusts the claim: funds custody is internal
func (s *service) recordWithdraw(ctx context.Context, id auth.Identity, req UserEventRequest) (*BalanceResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := authorize(id, req.UserID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	at, err := eventTime(req.EventRequest, now)
	if err != nil {
		return nil, err
	}
	wallet := models.NormalizeWallet(req.Wallet)
	txHash := strings.ToLower(req.TxHash)

	event := &models.WithdrawalEvent{
		BridgeEvent: s.newEvent(req.EventRequest, txHash, wallet, at, now),
		UserID:      id.UserID,
	}

	var bal *models.UserBalance
	err = s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindWithdrawal(event.EventID, txHash)
		if err != nil {
			return apperr.Internal(err, "failed to check withdrawal")
		}
		if existing != nil {
			return apperr.AlreadyExists("withdrawal %s already recorded", txHash)
		}
		b, err := s.ledger.Debit(tx, id, ToTokens(req.Amount))
		if err != nil {
			return err
		}
		if err := repo.CreateWithdrawal(event); err != nil {
			return insertError(err, "withdrawal", txHash)
		}
		bal = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": id.UserID,
		"wallet":  wallet,
		"tx_hash": txHash,
		"amount":  req.Amount,
	}).Info("Withdrawal recorded")
	s.ledger.Notify(bal)
	return &BalanceResult{Event: event, NewBalance: bal.Balance}, nil
}

func (s *service) GetDailyMintLimit(ctx context.Context, wallet string) (*MintLimit, error) {
	if !common.IsHexAddress(wallet) {
		return nil, apperr.InvalidArgument("invalid wallet address")
	}
	wallet = models.NormalizeWallet(wallet)

	start, end := utcDay(s.now().UTC())
	minted, err := s.repo.WithContext(ctx).SumMinted(wallet, start, end)
	if err != nil {
		return nil, apperr.Internal(err, "failed to sum mints")
	}
	left := s.cfg.DailyMintLimit - minted
	if left < 0 {
		left = 0
	}
	return &MintLimit{
		Wallet:    wallet,
		Minted:    ToTokens(minted),
		Remaining: ToTokens(left),
		Limit:     ToTokens(s.cfg.DailyMintLimit),
		ResetsAt:  end,
	}, nil
}

func (s *service) ListDeposits(ctx context.Context, id auth.Identity, limit, offset int) ([]*models.DepositEvent, error) {
	limit, offset = page(limit, offset)
	events, err := s.repo.WithContext(ctx).ListDeposits(id.UserID, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list deposits")
	}
	return events, nil
}

func (s *service) ListWithdrawals(ctx context.Context, id auth.Identity, limit, offset int) ([]*models.WithdrawalEvent, error) {
	limit, offset = page(limit, offset)
	events, err := s.repo.WithContext(ctx).ListWithdrawals(id.UserID, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list withdrawals")
	}
	return events, nil
}

// fetch loads the receipt, and the transaction when withTx is set. Chain
// failures are not retried.
func (s *service) fetch(ctx context.Context, txHash string, withTx bool) (*types.Receipt, *types.Transaction, error) {
	if s.chain == nil {
		return nil, nil, apperr.Internal(nil, "chain verification is not configured")
	}
	hash := common.HexToHash(txHash)

	receipt, err := s.chain.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, nil, chainError(err, txHash)
	}
	if !withTx {
		return receipt, nil, nil
	}
	tx, err := s.chain.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, nil, chainError(err, txHash)
	}
	return receipt, tx, nil
}

func (s *service) newEvent(req EventRequest, txHash, wallet string, at, recorded time.Time) models.BridgeEvent {
	eventID := req.EventID
	if eventID == "" {
		eventID = txHash
	}
	return models.BridgeEvent{
		EventID:        eventID,
		TxHash:         txHash,
		WalletAddress:  wallet,
		Amount:         req.Amount,
		BlockNumber:    req.BlockNumber,
		Nonce:          req.Nonce,
		EventTimestamp: at,
		CreatedAt:      recorded,
	}
}

// eventTime is the submitted event time, or now when none was given
func eventTime(req EventRequest, now time.Time) (time.Time, error) {
	if req.Timestamp.IsZero() {
		return now, nil
	}
	if req.Timestamp.After(now.Add(maxClockSkew)) {
		return time.Time{}, apperr.InvalidArgument("event timestamp is in the future")
	}
	return req.Timestamp.UTC(), nil
}

func authorize(id auth.Identity, claimed string) error {
	if id.UserID == "" || id.UserID != claimed {
		return apperr.PermissionDenied("event belongs to another user")
	}
	return nil
}

func chainError(err error, txHash string) error {
	if isNotFound(err) {
		return apperr.NotFound("transaction %s not found on chain", txHash)
	}
	return apperr.Internal(err, "failed to fetch transaction %s", txHash)
}

// insertError maps a lost race on the unique indexes to AlreadyExists
func insertError(err error, kind, txHash string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.AlreadyExists("%s %s already recorded", kind, txHash)
	}
	return apperr.Internal(err, "failed to record %s", kind)
}

func logEventID(txHash string, logIndex uint) string {
	return txHash + "-" + strconv.FormatUint(uint64(logIndex), 10)
}

// utcDay returns the bounds of the UTC calendar day containing t
func utcDay(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func observe(kind string, err error) {
	result := "ok"
	if err != nil {
		result = strings.ToLower(string(apperr.KindOf(err)))
	}
	metrics.BridgeEventsTotal.WithLabelValues(kind, result).Inc()
}
