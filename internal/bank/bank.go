// Package bank is an in-memory token ledger that settles pool legs.
package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pegpool/internal/model"
)

var (
	ErrInsufficientBalance = fmt.Errorf("bank: %w", model.ErrInsufficientBalance)
	ErrUnknownAsset        = errors.New("bank: unknown asset")
)

// BalanceStore persists balances. SaveBalances applies every entry or none.
type BalanceStore interface {
	LoadBalances(ctx context.Context) ([]model.Balance, error)
	SaveBalances(ctx context.Context, balances []model.Balance) error
}

type balanceKey struct {
	owner common.Address
	asset model.Asset
}

// Bank holds balances per (owner, asset) plus the pool's own custody.
// Pull and Push apply all legs or none. The pool issues stable and seigniorage:
// it burns what it pulls and mints what it pushes. Collateral is held in custody.
type Bank struct {
	mu       sync.Mutex
	pool     common.Address
	store    BalanceStore
	balances map[balanceKey]uint256.Int
}

// New returns an empty bank whose custody account is pool. Its balances live only in memory.
func New(pool common.Address) *Bank {
	return &Bank{pool: pool, balances: make(map[balanceKey]uint256.Int)}
}

// Open restores a bank from store and writes every later change through it.
func Open(ctx context.Context, pool common.Address, store BalanceStore) (*Bank, error) {
	b := New(pool)
	if store == nil {
		return b, nil
	}
	saved, err := store.LoadBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("bank: load balances: %w", err)
	}
	for _, bal := range saved {
		if err := checkAsset(bal.Asset); err != nil {
			return nil, err
		}
		b.balances[balanceKey{owner: bal.Owner, asset: bal.Asset}] = bal.Amount
	}
	b.store = store
	return b, nil
}

// PoolAddress is the custody account that receives pulled legs.
func (b *Bank) PoolAddress() common.Address { return b.pool }

// Empty reports whether no account holds a non-zero balance.
func (b *Bank) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, amount := range b.balances {
		if !amount.IsZero() {
			return false
		}
	}
	return true
}

// Credit mints amount of asset to owner outside of pool settlement.
func (b *Bank) Credit(ctx context.Context, owner common.Address, asset model.Asset, amount *uint256.Int) error {
	if err := checkAsset(asset); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := balanceKey{owner: owner, asset: asset}
	current := b.balances[key]
	next, overflow := new(uint256.Int).AddOverflow(&current, amount)
	if overflow {
		return fmt.Errorf("bank: credit overflows %s balance of %s", asset, owner.Hex())
	}
	return b.commit(ctx, map[balanceKey]uint256.Int{key: *next})
}

// BalanceOf returns owner's balance of asset.
func (b *Bank) BalanceOf(owner common.Address, asset model.Asset) uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[balanceKey{owner: owner, asset: asset}]
}

// Pull moves legs from an account into pool custody.
func (b *Bank) Pull(ctx context.Context, from common.Address, legs []model.Leg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	staged, err := b.stage(legs, from, b.pool, true)
	if err != nil {
		return err
	}
	return b.commit(ctx, staged)
}

// Push pays legs out of pool custody.
func (b *Bank) Push(ctx context.Context, to common.Address, legs []model.Leg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	staged, err := b.stage(legs, b.pool, to, false)
	if err != nil {
		return err
	}
	return b.commit(ctx, staged)
}

// stage validates every leg against a scratch copy and returns the new balances.
func (b *Bank) stage(legs []model.Leg, from, to common.Address, pull bool) (map[balanceKey]uint256.Int, error) {
	staged := make(map[balanceKey]uint256.Int, len(legs)*2)
	read := func(key balanceKey) uint256.Int {
		if v, ok := staged[key]; ok {
			return v
		}
		return b.balances[key]
	}

	for _, leg := range legs {
		if err := checkAsset(leg.Asset); err != nil {
			return nil, err
		}
		mint := issued(leg.Asset) && !pull
		burn := issued(leg.Asset) && pull

		if !mint {
			src := balanceKey{owner: from, asset: leg.Asset}
			have := read(src)
			left, underflow := new(uint256.Int).SubOverflow(&have, &leg.Amount)
			if underflow {
				return nil, fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance,
					from.Hex(), have.Dec(), leg.Asset, leg.Amount.Dec())
			}
			staged[src] = *left
		}
		if burn {
			continue
		}
		dst := balanceKey{owner: to, asset: leg.Asset}
		got := read(dst)
		sum, overflow := new(uint256.Int).AddOverflow(&got, &leg.Amount)
		if overflow {
			return nil, fmt.Errorf("bank: %s balance of %s overflows", leg.Asset, to.Hex())
		}
		staged[dst] = *sum
	}
	return staged, nil
}

// commit writes staged balances to the store first, then to memory.
func (b *Bank) commit(ctx context.Context, staged map[balanceKey]uint256.Int) error {
	if b.store != nil && len(staged) > 0 {
		out := make([]model.Balance, 0, len(staged))
		for key, amount := range staged {
			out = append(out, model.Balance{Owner: key.owner, Asset: key.asset, Amount: amount})
		}
		if err := b.store.SaveBalances(ctx, out); err != nil {
			return fmt.Errorf("bank: save balances: %w", err)
		}
	}
	for key, value := range staged {
		b.balances[key] = value
	}
	return nil
}

func issued(asset model.Asset) bool {
	return asset == model.AssetStable || asset == model.AssetSeigniorage
}

func checkAsset(asset model.Asset) error {
	switch asset {
	case model.AssetStable, model.AssetCollateral, model.AssetSeigniorage:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAsset, asset)
	}
}
