package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// ContractCaller is the subset of chain.Client used to read the oracle.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainConfig tunes on-chain reads.
type ChainConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Chain reads prices from a deployed oracle contract at the latest block.
type Chain struct {
	caller  ContractCaller
	address common.Address
	cfg     ChainConfig
	logger  *zap.Logger
}

// NewChain builds an on-chain price source.
func NewChain(caller ContractCaller, address common.Address, cfg ChainConfig, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{caller: caller, address: address, cfg: cfg, logger: logger}
}

func (c *Chain) SeigniorageSpot(ctx context.Context) (*uint256.Int, error) {
	return c.read(ctx, seigniorageSpotMethod)
}

func (c *Chain) StablePrice(ctx context.Context) (*uint256.Int, error) {
	return c.read(ctx, stableTWAPMethod)
}

func (c *Chain) read(ctx context.Context, method string) (*uint256.Int, error) {
	if c.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := PriceOracleABI()
	if err != nil {
		return nil, fmt.Errorf("parse oracle abi: %w", err)
	}
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var resp []byte
	onFailure := func(attempt int, err error) {
		c.logger.Warn("oracle call failed",
			zap.String("oracle", c.address.Hex()),
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	err = withRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, onFailure, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	price, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s unexpected type %T", method, values[0])
	}
	out, overflow := uint256.FromBig(price)
	if overflow {
		return nil, fmt.Errorf("%s overflows uint256", method)
	}
	return out, nil
}

// ChainBinder binds oracle addresses to on-chain readers sharing one client.
type ChainBinder struct {
	Caller ContractCaller
	Config ChainConfig
	Logger *zap.Logger
}

func (b ChainBinder) Bind(address common.Address) (PriceSource, error) {
	if b.Caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("oracle address is zero")
	}
	return NewChain(b.Caller, address, b.Config, b.Logger), nil
}
