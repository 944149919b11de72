package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is a read-only RPC connection used to query the price oracle.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	chainID   *big.Int
}

// NewClient dials rpcURL and fetches the chain id once so a dead endpoint
// fails at startup instead of on the first priced call.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	ethClient := ethclient.NewClient(rpcClient)
	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	return &Client{rpcClient: rpcClient, ethClient: ethClient, chainID: chainID}, nil
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the id reported when the client was dialed.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// CallContract performs an eth_call; the oracle reads at the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
