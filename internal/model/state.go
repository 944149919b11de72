package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Asset identifies one of the three tokens handled by the pool.
type Asset string

const (
	AssetStable      Asset = "stable"
	AssetCollateral  Asset = "collateral"
	AssetSeigniorage Asset = "seigniorage"
)

// Leg is an amount of a single asset moved in or out of the pool.
type Leg struct {
	Asset  Asset
	Amount uint256.Int
}

// PoolState holds the pool parameters and custody totals.
// Ratios and fee rates carry 6 decimals; amounts carry 18.
type PoolState struct {
	CollateralRatio       uint256.Int
	MinCollateralRatio    uint256.Int
	CollateralRatioPaused bool
	MintingFeeRate        uint256.Int
	RedemptionFeeRate     uint256.Int
	MintingPaused         bool
	RedemptionPaused      bool
	LastRefreshTimestamp  uint64
	MaxStableSupply       uint256.Int
	Oracle                common.Address
	Treasury              common.Address
	SwapStrategy          common.Address
	CollateralHeld        uint256.Int
	StableSupply          uint256.Int
	AccruedFees           uint256.Int
}

// UnclaimedAggregates are the credited-but-uncollected totals across all accounts.
type UnclaimedAggregates struct {
	Stable      uint256.Int
	Collateral  uint256.Int
	Seigniorage uint256.Int
}

// Account is the per-address pending balance record.
type Account struct {
	PendingStable       uint256.Int
	PendingCollateral   uint256.Int
	PendingSeigniorage  uint256.Int
	LastActionTimestamp uint64
}

// HasPending reports whether any pending field is non-zero.
func (a Account) HasPending() bool {
	return !a.PendingStable.IsZero() || !a.PendingCollateral.IsZero() || !a.PendingSeigniorage.IsZero()
}

// Snapshot is the full persisted engine state.
type Snapshot struct {
	Pool      PoolState
	Unclaimed UnclaimedAggregates
	Accounts  map[common.Address]Account
}

// Changeset carries the pool state plus the accounts touched by a single call.
type Changeset struct {
	Pool      PoolState
	Unclaimed UnclaimedAggregates
	Accounts  map[common.Address]Account
}

// Balance is one token balance held in the settlement bank.
type Balance struct {
	Owner  common.Address
	Asset  Asset
	Amount uint256.Int
}
