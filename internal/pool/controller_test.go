package pool

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"pegpool/internal/fixed"
	"pegpool/internal/model"
)

func TestSetCollateralRatio(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withRatio(ratio(t, "0.9"), ratio(t, "0.5")))
	h.advance(time.Minute)

	require.NoError(t, h.engine.SetCollateralRatio(ctx, admin, ratio(t, "0.8")))
	info := h.engine.Info()
	require.Equal(t, "0.8", fixed.FormatRatio(&info.CollateralRatio))
	require.Equal(t, uint64(1_700_000_060), info.LastRefreshTimestamp)

	require.ErrorIs(t, h.engine.SetCollateralRatio(ctx, admin, ratio(t, "0.4")), ErrInvalidArgument)
	require.ErrorIs(t, h.engine.SetCollateralRatio(ctx, admin, ratio(t, "1.000001")), ErrInvalidArgument)

	events := h.events.Events()
	require.Len(t, events, 1)
	require.Equal(t, model.EventCollateralRatioUpdated, events[0].Name)
	require.Equal(t, "800000", events[0].Data.(model.RatioChangedData).Value)
}

func TestPausedRatioOnlyAcceptsOverride(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.engine.TogglePause(ctx, admin, true))
	info := h.engine.Info()
	require.Equal(t, "0.9", fixed.FormatRatio(&info.CollateralRatio))

	require.ErrorIs(t, h.engine.SetCollateralRatio(ctx, admin, ratio(t, "0.8")), ErrPaused)
	h.advance(2 * time.Hour)
	_, err := h.engine.RefreshCollateralRatio(ctx)
	require.ErrorIs(t, err, ErrPaused)
	// the pause is reported ahead of any oracle failure
	h.prices.Set(nil, new(uint256.Int))
	_, err = h.engine.RefreshCollateralRatio(ctx)
	require.ErrorIs(t, err, ErrPaused)
	require.NotErrorIs(t, err, ErrStaleOracle)

	require.NoError(t, h.engine.OverrideCollateralRatio(ctx, admin, ratio(t, "0.7")))
	info = h.engine.Info()
	require.Equal(t, "0.7", fixed.FormatRatio(&info.CollateralRatio))
	require.True(t, h.engine.PoolState().CollateralRatioPaused)
}

func TestSetMinCollateralRatio(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.ErrorIs(t, h.engine.SetMinCollateralRatio(ctx, admin, ratio(t, "1.5")), ErrInvalidArgument)
	require.NoError(t, h.engine.SetMinCollateralRatio(ctx, admin, ratio(t, "0.95")))

	// raising the floor does not move the ratio
	state := h.engine.PoolState()
	require.Equal(t, "0.9", fixed.FormatRatio(&state.CollateralRatio))
	require.Equal(t, "0.95", fixed.FormatRatio(&state.MinCollateralRatio))
	require.ErrorIs(t, h.engine.SetCollateralRatio(ctx, admin, ratio(t, "0.92")), ErrInvalidArgument)
}

func TestRefreshCollateralRatio(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withRatio(ratio(t, "0.9"), ratio(t, "0.896")))

	h.prices.Set(nil, amt(t, "1.01"))
	_, err := h.engine.RefreshCollateralRatio(ctx)
	require.ErrorIs(t, err, ErrInvalidArgument, "cooldown since genesis")

	h.advance(time.Hour)
	cr, err := h.engine.RefreshCollateralRatio(ctx)
	require.NoError(t, err)
	require.Equal(t, "0.8975", fixed.FormatRatio(&cr))

	h.advance(time.Hour)
	cr, err = h.engine.RefreshCollateralRatio(ctx)
	require.NoError(t, err)
	require.Equal(t, "0.896", fixed.FormatRatio(&cr), "clamped at the floor")

	h.events.Reset()
	h.advance(time.Hour)
	cr, err = h.engine.RefreshCollateralRatio(ctx)
	require.NoError(t, err)
	require.Equal(t, "0.896", fixed.FormatRatio(&cr))
	require.Empty(t, h.events.Names(), "no event when the ratio is unchanged")
	require.Equal(t, uint64(h.now.Unix()), h.engine.Info().LastRefreshTimestamp)

	h.prices.Set(nil, amt(t, "1.002"))
	h.advance(time.Hour)
	cr, err = h.engine.RefreshCollateralRatio(ctx)
	require.NoError(t, err)
	require.Equal(t, "0.896", fixed.FormatRatio(&cr), "inside the band")

	h.prices.Set(nil, amt(t, "0.99"))
	h.advance(time.Hour)
	cr, err = h.engine.RefreshCollateralRatio(ctx)
	require.NoError(t, err)
	require.Equal(t, "0.8985", fixed.FormatRatio(&cr))
	require.Equal(t, []string{model.EventCollateralRatioUpdated}, h.events.Names())
}

func TestRefreshClampsAtOne(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withRatio(ratio(t, "0.999"), ratio(t, "0")))
	h.prices.Set(nil, amt(t, "0.9"))
	h.advance(time.Hour)

	cr, err := h.engine.RefreshCollateralRatio(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", fixed.FormatRatio(&cr))
}

func TestRefreshStaleOracle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.advance(time.Hour)

	zero := newHarness(t)
	zero.prices.Set(nil, amt(t, "0"))
	zero.advance(time.Hour)
	before := zero.engine.State()
	_, err := zero.engine.RefreshCollateralRatio(ctx)
	require.ErrorIs(t, err, ErrStaleOracle)
	require.Equal(t, before, zero.engine.State())

	// the default harness price sits on the target, so the ratio holds
	cr, err := h.engine.RefreshCollateralRatio(ctx)
	require.NoError(t, err)
	require.Equal(t, "0.9", fixed.FormatRatio(&cr))
}
