package bridge

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const tokenABI = `[
	{"type":"function","name":"mint","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

const vaultABI = `[
	{"type":"event","name":"Deposit","anonymous":false,
	 "inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

var (
	ErrTxFailed         = errors.New("transaction reverted")
	ErrWrongContract    = errors.New("transaction was not sent to the expected contract")
	ErrNotMintCall      = errors.New("transaction is not a mint call")
	ErrDepositNotLogged = errors.New("no matching deposit log")
)

// MintCall is a decoded mint(to, amount) invocation
type MintCall struct {
	To     common.Address
	Amount *big.Int
}

// DepositLog is a decoded vault Deposit event
type DepositLog struct {
	User     common.Address
	Amount   *big.Int
	LogIndex uint
}

// Verifier checks that on-chain data backs a claimed bridge event
type Verifier interface {
	VerifyMintCall(receipt *types.Receipt, tx *types.Transaction, expectedContract common.Address) (*MintCall, error)
	VerifyDeposit(receipt *types.Receipt, vault, wallet common.Address, amount *big.Int) (*DepositLog, error)
}

// ABIVerifier decodes calls and logs with the token and vault ABIs
type ABIVerifier struct {
	token abi.ABI
	vault abi.ABI
}

// NewABIVerifier parses the contract ABIs
func NewABIVerifier() (*ABIVerifier, error) {
	token, err := abi.JSON(strings.NewReader(tokenABI))
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	vault, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	return &ABIVerifier{token: token, vault: vault}, nil
}

// PackMint encodes mint(to, amount) calldata
func (v *ABIVerifier) PackMint(to common.Address, amount *big.Int) ([]byte, error) {
	return v.token.Pack("mint", to, amount)
}

// DepositTopic is the topic of the vault Deposit event
func (v *ABIVerifier) DepositTopic() common.Hash {
	return v.vault.Events["Deposit"].ID
}

func (v *ABIVerifier) VerifyMintCall(receipt *types.Receipt, tx *types.Transaction, expectedContract common.Address) (*MintCall, error) {
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return nil, ErrTxFailed
	}
	if tx == nil || tx.To() == nil || *tx.To() != expectedContract {
		return nil, ErrWrongContract
	}

	data := tx.Data()
	if len(data) < 4 {
		return nil, ErrNotMintCall
	}
	method, err := v.token.MethodById(data[:4])
	if err != nil || method.Name != "mint" {
		return nil, ErrNotMintCall
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return nil, fmt.Errorf("%w: %v", ErrNotMintCall, err)
	}

	to, ok := args[0].(common.Address)
	if !ok {
		return nil, ErrNotMintCall
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return nil, ErrNotMintCall
	}
	return &MintCall{To: to, Amount: amount}, nil
}

func (v *ABIVerifier) VerifyDeposit(receipt *types.Receipt, vault, wallet common.Address, amount *big.Int) (*DepositLog, error) {
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return nil, ErrTxFailed
	}

	topic := v.DepositTopic()
	for _, l := range receipt.Logs {
		if l == nil || l.Address != vault || len(l.Topics) != 2 || l.Topics[0] != topic {
			continue
		}
		values, err := v.vault.Unpack("Deposit", l.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		logged, ok := values[0].(*big.Int)
		if !ok {
			continue
		}
		user := common.BytesToAddress(l.Topics[1].Bytes())
		if user == wallet && logged.Cmp(amount) == 0 {
			return &DepositLog{User: user, Amount: logged, LogIndex: l.Index}, nil
		}
	}
	return nil, ErrDepositNotLogged
}
