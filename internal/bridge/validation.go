package bridge

import (
	"regexp"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the precision of the bridged stablecoin
const TokenDecimals = 6

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidateEvent checks the structural fields every bridge event carries
func ValidateEvent(wallet, txHash string, amount int64) error {
	if err := ValidateRef(wallet, txHash); err != nil {
		return err
	}
	if amount <= 0 {
		return apperr.InvalidArgument("amount must be positive")
	}
	return nil
}

// ValidateRef checks the wallet and transaction hash of an event
func ValidateRef(wallet, txHash string) error {
	if !common.IsHexAddress(wallet) {
		return apperr.InvalidArgument("invalid wallet address")
	}
	if !txHashPattern.MatchString(txHash) {
		return apperr.InvalidArgument("invalid transaction hash")
	}
	return nil
}

// ToTokens converts smallest units to whole tokens
func ToTokens(units int64) decimal.Decimal {
	return decimal.New(units, -TokenDecimals)
}

// ToUnits converts whole tokens to smallest units, truncating
func ToUnits(tokens decimal.Decimal) int64 {
	return tokens.Shift(TokenDecimals).IntPart()
}
