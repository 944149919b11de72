package model

import "github.com/holiman/uint256"

// Info is the read-only pool summary.
type Info struct {
	CollateralRatio      uint256.Int
	LastRefreshTimestamp uint64
	MintingFeeRate       uint256.Int
	RedemptionFeeRate    uint256.Int
	MintingPaused        bool
	RedemptionPaused     bool
	CollateralBalance    uint256.Int
	MaxStableSupply      uint256.Int
}

// MintQuote is the result of pricing a mint.
type MintQuote struct {
	StableOut             uint256.Int
	RequiredCollateralIn  uint256.Int
	RequiredSeigniorageIn uint256.Int
	Fee                   uint256.Int
}

// RedeemQuote is the result of pricing a redemption.
type RedeemQuote struct {
	CollateralOut  uint256.Int
	SeigniorageOut uint256.Int
	Fee            uint256.Int
}

// UserInfo mirrors an account's pending balances.
type UserInfo struct {
	PendingStable       uint256.Int
	PendingSeigniorage  uint256.Int
	PendingCollateral   uint256.Int
	LastActionTimestamp uint64
}

// CollectResult lists the legs paid out by a collect call.
type CollectResult struct {
	Legs []Leg
}
