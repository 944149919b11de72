package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"pegpool/internal/model"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func sampleChangeset() model.Changeset {
	return model.Changeset{
		Pool: model.PoolState{
			CollateralRatio:      *uint256.NewInt(900_000),
			MinCollateralRatio:   *uint256.NewInt(500_000),
			MintingFeeRate:       *uint256.NewInt(3_000),
			RedemptionFeeRate:    *uint256.NewInt(5_000),
			MintingPaused:        true,
			LastRefreshTimestamp: 1_700_000_000,
			Oracle:               common.HexToAddress("0x00000000000000000000000000000000000000c0"),
			CollateralHeld:       *uint256.MustFromDecimal("9000000000000000000"),
			StableSupply:         *uint256.MustFromDecimal("9970000000000000000"),
			AccruedFees:          *uint256.MustFromDecimal("27000000000000000"),
		},
		Unclaimed: model.UnclaimedAggregates{Stable: *uint256.MustFromDecimal("9970000000000000000")},
		Accounts: map[common.Address]model.Account{
			alice: {PendingStable: *uint256.MustFromDecimal("9970000000000000000"), LastActionTimestamp: 1_700_000_001},
		},
	}
}

func TestMemoryStoreEmptyUntilCommit(t *testing.T) {
	store := NewMemoryStore()
	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Commit(context.Background(), sampleChangeset()))
	snap, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	aliceAcct := snap.Accounts[alice]
	require.Equal(t, "9970000000000000000", aliceAcct.PendingStable.Dec())
	require.Equal(t, 1, store.Commits())
}

func TestMemoryStoreFailNextCommit(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("boom")
	store.FailNextCommit(boom)
	require.ErrorIs(t, store.Commit(context.Background(), sampleChangeset()), boom)
	_, ok, _ := store.Load(context.Background())
	require.False(t, ok)
	require.NoError(t, store.Commit(context.Background(), sampleChangeset()))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "pool.json")
	store := NewFileStore(path)

	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	change := sampleChangeset()
	require.NoError(t, store.Commit(context.Background(), change))

	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	second := change
	second.Accounts = map[common.Address]model.Account{
		bob: {PendingCollateral: *uint256.NewInt(42)},
	}
	require.NoError(t, store.Commit(context.Background(), second))

	reopened := NewFileStore(path)
	snap, ok, err := reopened.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, change.Pool, snap.Pool)
	require.Equal(t, change.Unclaimed, snap.Unclaimed)
	require.Len(t, snap.Accounts, 2)
	require.Equal(t, uint64(1_700_000_001), snap.Accounts[alice].LastActionTimestamp)
	bobAcct := snap.Accounts[bob]
	require.Equal(t, uint64(42), bobAcct.PendingCollateral.Uint64())

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestFileStoreKeepsBalancesBesideState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pool.json")
	store := NewFileStore(path)

	// balances written before the pool is seeded must not look like a seeded pool
	require.NoError(t, store.SaveBalances(ctx, []model.Balance{
		{Owner: alice, Asset: model.AssetCollateral, Amount: *uint256.NewInt(100)},
	}))
	_, ok, err := NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Commit(ctx, sampleChangeset()))
	require.NoError(t, store.SaveBalances(ctx, []model.Balance{
		{Owner: alice, Asset: model.AssetCollateral, Amount: *uint256.NewInt(40)},
		{Owner: alice, Asset: model.AssetStable, Amount: *uint256.NewInt(5)},
	}))

	reopened := NewFileStore(path)
	snap, ok, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sampleChangeset().Pool, snap.Pool)

	balances, err := reopened.LoadBalances(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []model.Balance{
		{Owner: alice, Asset: model.AssetCollateral, Amount: *uint256.NewInt(40)},
		{Owner: alice, Asset: model.AssetStable, Amount: *uint256.NewInt(5)},
	}, balances)
}

func TestMemoryStoreBalances(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	balances, err := store.LoadBalances(ctx)
	require.NoError(t, err)
	require.Empty(t, balances)

	require.NoError(t, store.SaveBalances(ctx, []model.Balance{
		{Owner: alice, Asset: model.AssetSeigniorage, Amount: *uint256.NewInt(3)},
	}))
	balances, err = store.LoadBalances(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Balance{{Owner: alice, Asset: model.AssetSeigniorage, Amount: *uint256.NewInt(3)}}, balances)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"pool":{"collateral_ratio":"abc"}}`), 0o644))
	_, _, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
}

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	journal := NewJsonlStorage(path)

	require.NoError(t, journal.PutEvents([]model.Event{
		{Name: model.EventMint, Timestamp: 1, Data: model.MintEventData{Account: alice.Hex(), StableOut: "10"}},
	}))
	require.NoError(t, journal.PutEvents([]model.Event{
		{Name: model.EventTransfer, Timestamp: 2, Data: model.TransferEventData{Asset: model.AssetStable, To: alice.Hex(), Amount: "10"}},
	}))
	require.NoError(t, journal.PutEvents(nil))

	entries, err := ReadJournal(journal.Path())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, model.EventMint, entries[0].Name)
	require.Equal(t, uint64(2), entries[1].Timestamp)

	var transfer model.TransferEventData
	require.NoError(t, json.Unmarshal(entries[1].Data, &transfer))
	require.Equal(t, "10", transfer.Amount)
}

func TestReadJournalMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	entries, err := ReadJournal(filepath.Join(dir, "absent.jsonl"))
	require.NoError(t, err)
	require.Empty(t, entries)

	path := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"event\":\"Mint\"}\nnot json\n"), 0o644))
	_, err = ReadJournal(path)
	require.ErrorContains(t, err, "journal line 2")
}
