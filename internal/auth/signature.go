package auth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// WalletLinkMessage is the text a user signs to prove wallet ownership
func WalletLinkMessage(userID, wallet string) string {
	return fmt.Sprintf("Mantle Estate: link wallet %s to account %s", strings.ToLower(wallet), userID)
}

// VerifySignature checks a personal_sign signature of message by expectedAddress
func VerifySignature(message, signature, expectedAddress string) error {
	if !common.IsHexAddress(expectedAddress) {
		return fmt.Errorf("invalid address format")
	}

	signature = strings.TrimPrefix(signature, "0x")
	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding")
	}
	if len(sigBytes) != 65 {
		return fmt.Errorf("invalid signature length")
	}

	// wallets produce v in {27, 28}
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	prefixedMessage := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixedMessage))

	pubKey, err := crypto.SigToPub(hash.Bytes(), sigBytes)
	if err != nil {
		return fmt.Errorf("failed to recover public key")
	}

	recoveredAddress := crypto.PubkeyToAddress(*pubKey)
	if !strings.EqualFold(recoveredAddress.Hex(), expectedAddress) {
		return fmt.Errorf("signature address mismatch")
	}
	return nil
}
