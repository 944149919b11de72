package storage

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pegpool/internal/model"
)

// storedSnapshot is the on-disk form of a snapshot. Integers are base-unit decimal strings.
type storedSnapshot struct {
	Version   int                      `json:"version"`
	UpdatedAt string                   `json:"updated_at"`
	Pool      *storedPool              `json:"pool,omitempty"`
	Unclaimed storedUnclaimed          `json:"unclaimed"`
	Accounts  map[string]storedAccount `json:"accounts"`
	Balances  []storedBalance          `json:"balances,omitempty"`
}

type storedPool struct {
	CollateralRatio       string `json:"collateral_ratio"`
	MinCollateralRatio    string `json:"min_collateral_ratio"`
	CollateralRatioPaused bool   `json:"collateral_ratio_paused"`
	MintingFeeRate        string `json:"minting_fee_rate"`
	RedemptionFeeRate     string `json:"redemption_fee_rate"`
	MintingPaused         bool   `json:"minting_paused"`
	RedemptionPaused      bool   `json:"redemption_paused"`
	LastRefreshTimestamp  uint64 `json:"last_refresh_timestamp"`
	MaxStableSupply       string `json:"max_stable_supply"`
	Oracle                string `json:"oracle"`
	Treasury              string `json:"treasury"`
	SwapStrategy          string `json:"swap_strategy"`
	CollateralHeld        string `json:"collateral_held"`
	StableSupply          string `json:"stable_supply"`
	AccruedFees           string `json:"accrued_fees"`
}

type storedUnclaimed struct {
	Stable      string `json:"stable"`
	Collateral  string `json:"collateral"`
	Seigniorage string `json:"seigniorage"`
}

type storedAccount struct {
	PendingStable       string `json:"pending_stable"`
	PendingCollateral   string `json:"pending_collateral"`
	PendingSeigniorage  string `json:"pending_seigniorage"`
	LastActionTimestamp uint64 `json:"last_action_timestamp"`
}

type storedBalance struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

const snapshotVersion = 1

func toStored(snap model.Snapshot) storedSnapshot {
	p := snap.Pool
	out := storedSnapshot{
		Version: snapshotVersion,
		Pool: &storedPool{
			CollateralRatio:       p.CollateralRatio.Dec(),
			MinCollateralRatio:    p.MinCollateralRatio.Dec(),
			CollateralRatioPaused: p.CollateralRatioPaused,
			MintingFeeRate:        p.MintingFeeRate.Dec(),
			RedemptionFeeRate:     p.RedemptionFeeRate.Dec(),
			MintingPaused:         p.MintingPaused,
			RedemptionPaused:      p.RedemptionPaused,
			LastRefreshTimestamp:  p.LastRefreshTimestamp,
			MaxStableSupply:       p.MaxStableSupply.Dec(),
			Oracle:                p.Oracle.Hex(),
			Treasury:              p.Treasury.Hex(),
			SwapStrategy:          p.SwapStrategy.Hex(),
			CollateralHeld:        p.CollateralHeld.Dec(),
			StableSupply:          p.StableSupply.Dec(),
			AccruedFees:           p.AccruedFees.Dec(),
		},
		Unclaimed: storedUnclaimed{
			Stable:      snap.Unclaimed.Stable.Dec(),
			Collateral:  snap.Unclaimed.Collateral.Dec(),
			Seigniorage: snap.Unclaimed.Seigniorage.Dec(),
		},
		Accounts: make(map[string]storedAccount, len(snap.Accounts)),
	}
	for addr, acct := range snap.Accounts {
		out.Accounts[addr.Hex()] = storedAccount{
			PendingStable:       acct.PendingStable.Dec(),
			PendingCollateral:   acct.PendingCollateral.Dec(),
			PendingSeigniorage:  acct.PendingSeigniorage.Dec(),
			LastActionTimestamp: acct.LastActionTimestamp,
		}
	}
	return out
}

// decoder collects the first parse error so conversions read linearly.
type decoder struct {
	err error
}

func (d *decoder) int(field, value string) uint256.Int {
	if d.err != nil {
		return uint256.Int{}
	}
	if value == "" {
		return uint256.Int{}
	}
	out, err := uint256.FromDecimal(value)
	if err != nil {
		d.err = fmt.Errorf("decode %s %q: %w", field, value, err)
		return uint256.Int{}
	}
	return *out
}

func (d *decoder) address(field, value string) common.Address {
	if d.err != nil {
		return common.Address{}
	}
	if value == "" {
		return common.Address{}
	}
	if !common.IsHexAddress(value) {
		d.err = fmt.Errorf("decode %s: invalid address %q", field, value)
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func fromStored(in storedSnapshot) (model.Snapshot, error) {
	if in.Version != snapshotVersion {
		return model.Snapshot{}, fmt.Errorf("unsupported snapshot version %d", in.Version)
	}
	if in.Pool == nil {
		return model.Snapshot{}, fmt.Errorf("snapshot has no pool section")
	}
	var d decoder
	p := in.Pool
	out := model.Snapshot{
		Pool: model.PoolState{
			CollateralRatio:       d.int("collateral_ratio", p.CollateralRatio),
			MinCollateralRatio:    d.int("min_collateral_ratio", p.MinCollateralRatio),
			CollateralRatioPaused: p.CollateralRatioPaused,
			MintingFeeRate:        d.int("minting_fee_rate", p.MintingFeeRate),
			RedemptionFeeRate:     d.int("redemption_fee_rate", p.RedemptionFeeRate),
			MintingPaused:         p.MintingPaused,
			RedemptionPaused:      p.RedemptionPaused,
			LastRefreshTimestamp:  p.LastRefreshTimestamp,
			MaxStableSupply:       d.int("max_stable_supply", p.MaxStableSupply),
			Oracle:                d.address("oracle", p.Oracle),
			Treasury:              d.address("treasury", p.Treasury),
			SwapStrategy:          d.address("swap_strategy", p.SwapStrategy),
			CollateralHeld:        d.int("collateral_held", p.CollateralHeld),
			StableSupply:          d.int("stable_supply", p.StableSupply),
			AccruedFees:           d.int("accrued_fees", p.AccruedFees),
		},
		Unclaimed: model.UnclaimedAggregates{
			Stable:      d.int("unclaimed.stable", in.Unclaimed.Stable),
			Collateral:  d.int("unclaimed.collateral", in.Unclaimed.Collateral),
			Seigniorage: d.int("unclaimed.seigniorage", in.Unclaimed.Seigniorage),
		},
		Accounts: make(map[common.Address]model.Account, len(in.Accounts)),
	}
	for key, acct := range in.Accounts {
		addr := d.address("account", key)
		out.Accounts[addr] = model.Account{
			PendingStable:       d.int("pending_stable", acct.PendingStable),
			PendingCollateral:   d.int("pending_collateral", acct.PendingCollateral),
			PendingSeigniorage:  d.int("pending_seigniorage", acct.PendingSeigniorage),
			LastActionTimestamp: acct.LastActionTimestamp,
		}
	}
	if d.err != nil {
		return model.Snapshot{}, d.err
	}
	return out, nil
}

func toStoredBalances(balances map[balanceKey]uint256.Int) []storedBalance {
	out := make([]storedBalance, 0, len(balances))
	for key, amount := range balances {
		out = append(out, storedBalance{Owner: key.owner.Hex(), Asset: string(key.asset), Amount: amount.Dec()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}

func fromStoredBalances(in []storedBalance) (map[balanceKey]uint256.Int, error) {
	var d decoder
	out := make(map[balanceKey]uint256.Int, len(in))
	for _, bal := range in {
		key := balanceKey{owner: d.address("balance.owner", bal.Owner), asset: model.Asset(bal.Asset)}
		out[key] = d.int("balance.amount", bal.Amount)
	}
	if d.err != nil {
		return nil, d.err
	}
	return out, nil
}
