package activity

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// NonceReader is the subset of ethclient.Client the provider needs.
type NonceReader interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// EthProvider reads transaction counts from a JSON-RPC node.
type EthProvider struct {
	client NonceReader
	close  func()
}

// NewEthProvider wraps an existing client (for testing).
func NewEthProvider(client NonceReader) *EthProvider {
	return &EthProvider{client: client}
}

// DialEthProvider connects to the node at rpcURL.
func DialEthProvider(ctx context.Context, rpcURL string) (*EthProvider, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return &EthProvider{client: client, close: client.Close}, nil
}

var _ Provider = (*EthProvider)(nil)

// TransactionCount returns the account nonce at the latest block.
func (p *EthProvider) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	return p.client.NonceAt(ctx, addr, nil)
}

// Close releases the RPC connection.
func (p *EthProvider) Close() {
	if p.close != nil {
		p.close()
	}
}
