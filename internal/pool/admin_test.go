package pool

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"pegpool/internal/fixed"
	"pegpool/internal/model"
)

func TestAdminRequiresAuthority(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	before := h.engine.State()

	calls := map[string]func() error{
		"SetOracle":       func() error { return h.engine.SetOracle(ctx, bob, oracleAddr) },
		"SetTreasury":     func() error { return h.engine.SetTreasury(ctx, bob, treasury) },
		"SetSwapStrategy": func() error { return h.engine.SetSwapStrategy(ctx, bob, treasury) },
		"SetCollateralRatio": func() error {
			return h.engine.SetCollateralRatio(ctx, bob, ratio(t, "0.8"))
		},
		"OverrideCollateralRatio": func() error {
			return h.engine.OverrideCollateralRatio(ctx, bob, ratio(t, "0.8"))
		},
		"TogglePause":           func() error { return h.engine.TogglePause(ctx, bob, true) },
		"SetMinCollateralRatio": func() error { return h.engine.SetMinCollateralRatio(ctx, bob, ratio(t, "0.5")) },
		"ToggleMinting":         func() error { return h.engine.ToggleMinting(ctx, bob, true) },
		"ToggleRedemption":      func() error { return h.engine.ToggleRedemption(ctx, bob, true) },
		"SetFees": func() error {
			return h.engine.SetFees(ctx, bob, ratio(t, "0.001"), ratio(t, "0.001"))
		},
		"SetMaxStableSupply": func() error { return h.engine.SetMaxStableSupply(ctx, bob, amt(t, "1")) },
		"SweepFees": func() error {
			_, err := h.engine.SweepFees(ctx, bob)
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), ErrUnauthorized)
			require.Equal(t, before, h.engine.State())
		})
	}
	require.Empty(t, h.events.Names())
}

func TestSetOracle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutOracle())

	require.ErrorIs(t, h.engine.SetOracle(ctx, admin, common.Address{}), ErrInvalidArgument)

	_, err := h.engine.CalcMint(ctx, amt(t, "9"), amt(t, "0"))
	require.ErrorIs(t, err, ErrStaleOracle)

	require.NoError(t, h.engine.SetOracle(ctx, admin, oracleAddr))
	require.Equal(t, oracleAddr, h.engine.PoolState().Oracle)
	_, err = h.engine.CalcMint(ctx, amt(t, "9"), amt(t, "0"))
	require.NoError(t, err)

	events := h.events.Events()
	require.Len(t, events, 1)
	require.Equal(t, model.EventOracleChanged, events[0].Name)
	require.Equal(t, oracleAddr.Hex(), events[0].Data.(model.AddressChangedData).Address)
}

func TestSetAddresses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.ErrorIs(t, h.engine.SetTreasury(ctx, admin, common.Address{}), ErrInvalidArgument)
	require.NoError(t, h.engine.SetTreasury(ctx, admin, treasury))
	require.NoError(t, h.engine.SetSwapStrategy(ctx, admin, bob))

	state := h.engine.PoolState()
	require.Equal(t, treasury, state.Treasury)
	require.Equal(t, bob, state.SwapStrategy)
	require.Equal(t, []string{model.EventTreasuryChanged, model.EventSwapStrategyChanged}, h.events.Names())
}

func TestSetFees(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.ErrorIs(t, h.engine.SetFees(ctx, admin, ratio(t, "0.051"), ratio(t, "0")), ErrInvalidArgument)
	require.NoError(t, h.engine.SetFees(ctx, admin, ratio(t, "0.05"), ratio(t, "0")))

	info := h.engine.Info()
	require.Equal(t, "0.05", fixed.FormatRatio(&info.MintingFeeRate))
	require.True(t, info.RedemptionFeeRate.IsZero())

	quote, err := h.engine.CalcRedeem(ctx, amt(t, "1"))
	require.NoError(t, err)
	require.True(t, quote.Fee.IsZero())
}

func TestTogglesEmitDistinctEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.engine.ToggleMinting(ctx, admin, true))
	require.NoError(t, h.engine.ToggleRedemption(ctx, admin, true))
	require.NoError(t, h.engine.SetMaxStableSupply(ctx, admin, amt(t, "100")))

	info := h.engine.Info()
	require.True(t, info.MintingPaused)
	require.True(t, info.RedemptionPaused)
	require.Equal(t, "100", fixed.FormatAmount(&info.MaxStableSupply))
	require.Equal(t, []string{
		model.EventMintingPausedUpdated, model.EventRedemptionPausedUpdated, model.EventMaxStableSupplyUpdated,
	}, h.events.Names())
}

func TestSweepFees(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mint(t, alice, "9", "5")

	_, err := h.engine.SweepFees(ctx, admin)
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, h.engine.SetTreasury(ctx, admin, treasury))
	h.events.Reset()
	swept, err := h.engine.SweepFees(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, "0.027", fixed.FormatAmount(&swept))

	paid := h.bank.BalanceOf(treasury, model.AssetCollateral)
	require.Equal(t, "0.027", fixed.FormatAmount(&paid))
	state := h.engine.PoolState()
	require.True(t, state.AccruedFees.IsZero())
	require.Equal(t, "8.973", fixed.FormatAmount(&state.CollateralHeld))
	require.Equal(t, []string{model.EventFeesSwept}, h.events.Names())
	requireConsistent(t, h)

	again, err := h.engine.SweepFees(ctx, admin)
	require.NoError(t, err)
	require.True(t, again.IsZero())
	require.Len(t, h.events.Names(), 1)
}
