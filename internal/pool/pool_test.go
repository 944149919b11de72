package pool

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"pegpool/internal/bank"
	"pegpool/internal/events"
	"pegpool/internal/fixed"
	"pegpool/internal/model"
	"pegpool/internal/oracle"
	"pegpool/internal/storage"
)

var (
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	treasury   = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	oracleAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	custody    = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

func amt(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := fixed.ParseAmount(s)
	require.NoError(t, err)
	return v
}

func ratio(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := fixed.ParseRatio(s)
	require.NoError(t, err)
	return v
}

type harness struct {
	engine *Engine
	bank   *bank.Bank
	store  *storage.MemoryStore
	prices *oracle.Static
	events *events.Recorder
	now    time.Time
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

type option func(*Params)

func withRatio(cr, min *uint256.Int) option {
	return func(p *Params) {
		p.CollateralRatio = *cr
		p.MinCollateralRatio = *min
	}
}

func withoutOracle() option {
	return func(p *Params) { p.Oracle = common.Address{} }
}

// newHarness builds an engine at CR 0.9 with a 0.2 seigniorage price and funds alice and bob.
func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		bank:   bank.New(custody),
		store:  storage.NewMemoryStore(),
		prices: oracle.NewStatic(amt(t, "0.2"), amt(t, "1")),
		events: &events.Recorder{},
		now:    time.Unix(1_700_000_000, 0),
	}
	params := Params{
		CollateralRatio:    *ratio(t, "0.9"),
		MinCollateralRatio: *ratio(t, "0"),
		MintingFeeRate:     *ratio(t, "0.003"),
		RedemptionFeeRate:  *ratio(t, "0.005"),
		Oracle:             oracleAddr,
	}
	for _, opt := range opts {
		opt(&params)
	}

	engine, err := newEngineAt(ctx, h, params)
	require.NoError(t, err)
	h.engine = engine

	for _, who := range []common.Address{alice, bob} {
		require.NoError(t, h.bank.Credit(context.Background(), who, model.AssetCollateral, amt(t, "1000")))
		require.NoError(t, h.bank.Credit(context.Background(), who, model.AssetSeigniorage, amt(t, "1000")))
	}
	return h
}

func newEngineAt(ctx context.Context, h *harness, params Params) (*Engine, error) {
	return New(ctx, Config{
		Authority:  admin,
		Genesis:    params,
		Controller: DefaultControllerConfig(),
	}, Deps{
		Store:      h.store,
		Settlement: h.bank,
		Binder:     oracle.StaticBinder{Source: h.prices},
		Emitter:    h.events,
		Clock:      func() time.Time { return h.now },
	})
}

// requireConsistent checks ledger aggregates against accounts and custody.
func requireConsistent(t *testing.T, h *harness) {
	t.Helper()
	state := h.engine.State()
	var stable, collateral, seigniorage uint256.Int
	for _, acct := range state.Accounts {
		stable.Add(&stable, &acct.PendingStable)
		collateral.Add(&collateral, &acct.PendingCollateral)
		seigniorage.Add(&seigniorage, &acct.PendingSeigniorage)
	}
	require.Equal(t, state.Unclaimed.Stable, stable, "stable aggregate")
	require.Equal(t, state.Unclaimed.Collateral, collateral, "collateral aggregate")
	require.Equal(t, state.Unclaimed.Seigniorage, seigniorage, "seigniorage aggregate")

	owed := new(uint256.Int).Add(&state.Unclaimed.Collateral, &state.Pool.AccruedFees)
	require.False(t, state.Pool.CollateralHeld.Lt(owed), "collateral held below obligations")
	require.True(t, state.Pool.CollateralRatio.Cmp(fixed.RatioOne()) <= 0)

	custodied := h.bank.BalanceOf(custody, model.AssetCollateral)
	require.Equal(t, state.Pool.CollateralHeld, custodied, "custody matches collateral held")
}

func (h *harness) mint(t *testing.T, who common.Address, collateral, maxSeigniorage string) model.MintQuote {
	t.Helper()
	quote, err := h.engine.Mint(context.Background(), who, MintRequest{
		CollateralIn:     *amt(t, collateral),
		MaxSeigniorageIn: *amt(t, maxSeigniorage),
	})
	require.NoError(t, err)
	return quote
}

func TestNewSeedsGenesisOnce(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 1, h.store.Commits())

	info := h.engine.Info()
	require.Equal(t, "0.9", fixed.FormatRatio(&info.CollateralRatio))
	require.Equal(t, uint64(1_700_000_000), info.LastRefreshTimestamp)

	h.mint(t, alice, "9", "5")

	// a second engine over the same store restores instead of seeding
	restored, err := newEngineAt(context.Background(), h, Params{CollateralRatio: *ratio(t, "1")})
	require.NoError(t, err)
	require.Equal(t, h.engine.State(), restored.State())
}

func TestNewRejectsBadGenesis(t *testing.T) {
	h := &harness{bank: bank.New(custody), store: storage.NewMemoryStore(), prices: oracle.NewStatic(nil, nil), events: &events.Recorder{}}

	_, err := newEngineAt(context.Background(), h, Params{CollateralRatio: *ratio(t, "0.5"), MinCollateralRatio: *ratio(t, "0.6")})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = newEngineAt(context.Background(), h, Params{CollateralRatio: *ratio(t, "1"), MintingFeeRate: *ratio(t, "0.06")})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(context.Background(), Config{Genesis: Params{}}, Deps{Store: h.store, Settlement: h.bank})
	require.Error(t, err)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindPaused, KindOf(ErrPaused))
	require.Equal(t, KindStaleOracle, KindOf(ErrStaleOracle))
	require.Equal(t, KindAuthorization, KindOf(ErrUnauthorized))
	require.Equal(t, KindInternal, KindOf(context.Canceled))
	require.Equal(t, Kind(""), KindOf(nil))
}
