package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"pegpool/internal/fixed"
	"pegpool/internal/model"
)

func TestCollectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mint(t, alice, "9", "5")
	h.advance(time.Minute)

	first, err := h.engine.Collect(ctx, alice)
	require.NoError(t, err)
	require.Len(t, first.Legs, 1)
	require.Equal(t, model.AssetStable, first.Legs[0].Asset)

	h.events.Reset()
	second, err := h.engine.Collect(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, second.Legs)
	require.Empty(t, h.events.Names())

	stable := h.bank.BalanceOf(alice, model.AssetStable)
	require.Equal(t, "9.97", fixed.FormatAmount(&stable))

	// collect leaves the action timestamp alone
	info := h.engine.UserInfo(alice)
	require.Equal(t, uint64(1_700_000_000), info.LastActionTimestamp)
	requireConsistent(t, h)
}

func TestCollectUnknownAccount(t *testing.T) {
	h := newHarness(t)
	commits := h.store.Commits()
	result, err := h.engine.Collect(context.Background(), bob)
	require.NoError(t, err)
	require.Empty(t, result.Legs)
	require.Equal(t, commits, h.store.Commits())

	info := h.engine.UserInfo(bob)
	require.True(t, info.PendingStable.IsZero())
}

// reentrantSettlement calls back into the engine from inside Push.
type reentrantSettlement struct {
	Settlement
	engine *Engine
	inner  []model.CollectResult
	errs   []error
}

func (r *reentrantSettlement) Push(ctx context.Context, to common.Address, legs []model.Leg) error {
	result, err := r.engine.Collect(ctx, to)
	r.inner = append(r.inner, result)
	r.errs = append(r.errs, err)
	return r.Settlement.Push(ctx, to, legs)
}

func TestCollectReentrancyPaysOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mint(t, alice, "9", "5")

	hook := &reentrantSettlement{Settlement: h.bank, engine: h.engine}
	h.engine.settlement = hook

	result, err := h.engine.Collect(ctx, alice)
	require.NoError(t, err)
	require.Len(t, result.Legs, 1)

	require.Len(t, hook.inner, 1)
	require.NoError(t, hook.errs[0])
	require.Empty(t, hook.inner[0].Legs)

	stable := h.bank.BalanceOf(alice, model.AssetStable)
	require.Equal(t, "9.97", fixed.FormatAmount(&stable))
	requireConsistent(t, h)
}

type failingPush struct {
	Settlement
}

func (failingPush) Push(context.Context, common.Address, []model.Leg) error {
	return errors.New("transfer reverted")
}

func TestCollectSettlementFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mint(t, alice, "9", "5")
	h.events.Reset()

	h.engine.settlement = failingPush{Settlement: h.bank}
	before := h.engine.State()
	_, err := h.engine.Collect(ctx, alice)
	require.Error(t, err)
	require.Equal(t, before, h.engine.State())
	require.Empty(t, h.events.Names())

	h.engine.settlement = h.bank
	result, err := h.engine.Collect(ctx, alice)
	require.NoError(t, err)
	require.Len(t, result.Legs, 1)
	requireConsistent(t, h)
}

func TestCollectPaysAllLegsInOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mint(t, alice, "9", "5")
	_, err := h.engine.Collect(ctx, alice)
	require.NoError(t, err)

	_, err = h.engine.Redeem(ctx, alice, RedeemRequest{StableIn: *amt(t, "1")})
	require.NoError(t, err)
	h.mint(t, alice, "0.9", "0.5")
	h.events.Reset()

	result, err := h.engine.Collect(ctx, alice)
	require.NoError(t, err)
	require.Len(t, result.Legs, 3)
	assets := []model.Asset{result.Legs[0].Asset, result.Legs[1].Asset, result.Legs[2].Asset}
	require.Equal(t, []model.Asset{model.AssetStable, model.AssetCollateral, model.AssetSeigniorage}, assets)

	events := h.events.Events()
	require.Len(t, events, 3)
	for i, event := range events {
		require.Equal(t, model.EventTransfer, event.Name)
		require.Equal(t, result.Legs[i].Asset, event.Data.(model.TransferEventData).Asset)
	}
	requireConsistent(t, h)
}
