package pool

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pegpool/internal/bank"
	"pegpool/internal/fixed"
	"pegpool/internal/model"
	"pegpool/internal/oracle"
	"pegpool/internal/storage"
)

func openFileEngine(t *testing.T, path string, prices *oracle.Static) (*Engine, *bank.Bank) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewFileStore(path)
	ledger, err := bank.Open(ctx, custody, store)
	require.NoError(t, err)
	engine, err := New(ctx, Config{
		Authority: admin,
		Genesis: Params{
			CollateralRatio:   *ratio(t, "0.9"),
			MintingFeeRate:    *ratio(t, "0.003"),
			RedemptionFeeRate: *ratio(t, "0.005"),
			Oracle:            oracleAddr,
		},
		Controller: DefaultControllerConfig(),
	}, Deps{
		Store:      store,
		Settlement: ledger,
		Binder:     oracle.StaticBinder{Source: prices},
		Clock:      func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)
	return engine, ledger
}

func TestPendingCollateralSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pool.json")
	prices := oracle.NewStatic(amt(t, "0.2"), amt(t, "1"))

	engine, ledger := openFileEngine(t, path, prices)
	require.NoError(t, ledger.Credit(ctx, alice, model.AssetCollateral, amt(t, "1000")))
	require.NoError(t, ledger.Credit(ctx, alice, model.AssetSeigniorage, amt(t, "1000")))

	_, err := engine.Mint(ctx, alice, MintRequest{CollateralIn: *amt(t, "9"), MaxSeigniorageIn: *amt(t, "5")})
	require.NoError(t, err)
	_, err = engine.Collect(ctx, alice)
	require.NoError(t, err)
	_, err = engine.Redeem(ctx, alice, RedeemRequest{StableIn: *amt(t, "1")})
	require.NoError(t, err)

	restarted, ledger := openFileEngine(t, path, prices)
	require.Equal(t, engine.State(), restarted.State())
	held := restarted.PoolState().CollateralHeld
	custodied := ledger.BalanceOf(custody, model.AssetCollateral)
	require.Equal(t, held, custodied)

	result, err := restarted.Collect(ctx, alice)
	require.NoError(t, err)
	require.Len(t, result.Legs, 2)

	collateral := ledger.BalanceOf(alice, model.AssetCollateral)
	require.Equal(t, "991.8955", fixed.FormatAmount(&collateral))
	seigniorage := ledger.BalanceOf(alice, model.AssetSeigniorage)
	require.Equal(t, "995.4975", fixed.FormatAmount(&seigniorage))
	stable := ledger.BalanceOf(alice, model.AssetStable)
	require.Equal(t, "8.97", fixed.FormatAmount(&stable))

	held = restarted.PoolState().CollateralHeld
	custodied = ledger.BalanceOf(custody, model.AssetCollateral)
	require.Equal(t, held, custodied)
	info := restarted.UserInfo(alice)
	require.True(t, info.PendingCollateral.IsZero())
}
