package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrPending is returned for a transaction that is not mined yet
var ErrPending = errors.New("transaction is pending")

// Chain is the read-only view of the chain used to verify bridge events.
// Unknown transactions are reported as ethereum.NotFound.
type Chain interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error)
}

// EthChain is a Chain over a JSON-RPC endpoint
type EthChain struct {
	client *ethclient.Client
}

// DialChain connects to the RPC endpoint at url
func DialChain(ctx context.Context, url string) (*EthChain, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &EthChain{client: client}, nil
}

func (c *EthChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.client.TransactionReceipt(ctx, hash)
}

func (c *EthChain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	tx, pending, err := c.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrPending
	}
	return tx, nil
}

// Close closes the RPC connection
func (c *EthChain) Close() {
	c.client.Close()
}

// isNotFound reports whether the chain does not know the transaction
func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
