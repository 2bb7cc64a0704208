package bridge

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	walletA   = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func newVerifier(t *testing.T) *ABIVerifier {
	t.Helper()
	v, err := NewABIVerifier()
	require.NoError(t, err)
	return v
}

func callTx(to common.Address, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       &to,
		Gas:      100000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
}

func depositLog(v *ABIVerifier, vault, user common.Address, amount int64, index uint) *types.Log {
	return &types.Log{
		Address: vault,
		Topics:  []common.Hash{v.DepositTopic(), common.BytesToHash(user.Bytes())},
		Data:    common.LeftPadBytes(big.NewInt(amount).Bytes(), 32),
		Index:   index,
	}
}

func TestVerifyMintCall(t *testing.T) {
	v := newVerifier(t)
	data, err := v.PackMint(walletA, big.NewInt(5_000_000))
	require.NoError(t, err)
	ok := &types.Receipt{Status: types.ReceiptStatusSuccessful}

	t.Run("Success", func(t *testing.T) {
		call, err := v.VerifyMintCall(ok, callTx(tokenAddr, data), tokenAddr)
		require.NoError(t, err)
		assert.Equal(t, walletA, call.To)
		assert.Equal(t, int64(5_000_000), call.Amount.Int64())
	})

	t.Run("Reverted", func(t *testing.T) {
		_, err := v.VerifyMintCall(&types.Receipt{Status: types.ReceiptStatusFailed}, callTx(tokenAddr, data), tokenAddr)
		assert.ErrorIs(t, err, ErrTxFailed)
	})

	t.Run("WrongContract", func(t *testing.T) {
		_, err := v.VerifyMintCall(ok, callTx(vaultAddr, data), tokenAddr)
		assert.ErrorIs(t, err, ErrWrongContract)
	})

	t.Run("OtherMethod", func(t *testing.T) {
		// transfer(address,uint256)
		other := append(common.FromHex("0xa9059cbb"), data[4:]...)
		_, err := v.VerifyMintCall(ok, callTx(tokenAddr, other), tokenAddr)
		assert.ErrorIs(t, err, ErrNotMintCall)
	})

	t.Run("ShortCalldata", func(t *testing.T) {
		_, err := v.VerifyMintCall(ok, callTx(tokenAddr, data[:3]), tokenAddr)
		assert.ErrorIs(t, err, ErrNotMintCall)
	})
}

func TestVerifyDeposit(t *testing.T) {
	v := newVerifier(t)
	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{
			depositLog(v, tokenAddr, walletA, 7, 0),
			depositLog(v, vaultAddr, walletA, 7, 2),
		},
	}

	logged, err := v.VerifyDeposit(receipt, vaultAddr, walletA, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, uint(2), logged.LogIndex)

	_, err = v.VerifyDeposit(receipt, vaultAddr, walletA, big.NewInt(8))
	assert.ErrorIs(t, err, ErrDepositNotLogged)

	_, err = v.VerifyDeposit(receipt, vaultAddr, common.HexToAddress("0x2222222222222222222222222222222222222222"), big.NewInt(7))
	assert.ErrorIs(t, err, ErrDepositNotLogged)
}

func TestValidateEvent(t *testing.T) {
	hash := common.BigToHash(big.NewInt(1)).Hex()

	assert.NoError(t, ValidateEvent(walletA.Hex(), hash, 1))
	assert.Error(t, ValidateEvent("0x123", hash, 1))
	assert.Error(t, ValidateEvent(walletA.Hex(), "0x1234", 1))
	assert.Error(t, ValidateEvent(walletA.Hex(), hash[2:]+"00", 1))
	assert.Error(t, ValidateEvent(walletA.Hex(), hash, 0))
	assert.Error(t, ValidateEvent(walletA.Hex(), hash, -5))
}

func TestUnits(t *testing.T) {
	assert.Equal(t, "10000", ToTokens(10_000_000_000).String())
	assert.Equal(t, "0.01", ToTokens(10_000).String())
	assert.Equal(t, int64(10_000), ToUnits(ToTokens(10_000)))
}
