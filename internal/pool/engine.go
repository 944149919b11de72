package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pegpool/internal/fixed"
	"pegpool/internal/model"
	"pegpool/internal/oracle"
)

// StateStore persists engine state. Commit must apply a changeset atomically.
type StateStore interface {
	Load(ctx context.Context) (model.Snapshot, bool, error)
	Commit(ctx context.Context, change model.Changeset) error
}

// Settlement moves tokens between accounts and the pool.
// Pull takes legs from an account, Push pays legs to an account; each is all-or-nothing.
type Settlement interface {
	Pull(ctx context.Context, from common.Address, legs []model.Leg) error
	Push(ctx context.Context, to common.Address, legs []model.Leg) error
}

// Emitter receives events after a call has committed.
type Emitter interface {
	Emit(ctx context.Context, events []model.Event)
}

// Params are the initial pool parameters used when the store is empty.
type Params struct {
	CollateralRatio    uint256.Int
	MinCollateralRatio uint256.Int
	MintingFeeRate     uint256.Int
	RedemptionFeeRate  uint256.Int
	MaxStableSupply    uint256.Int
	Oracle             common.Address
	Treasury           common.Address
	SwapStrategy       common.Address
}

// Config configures an Engine.
type Config struct {
	Authority  common.Address
	Genesis    Params
	Controller ControllerConfig
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store      StateStore
	Settlement Settlement
	Binder     oracle.Binder
	Emitter    Emitter
	Logger     *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Engine prices mints and redemptions, keeps the claim ledger and owns the
// collateral ratio. It does not lock: callers must serialize access.
type Engine struct {
	authority  common.Address
	store      StateStore
	settlement Settlement
	binder     oracle.Binder
	oracle     oracle.PriceSource
	emitter    Emitter
	logger     *zap.Logger
	clock      func() time.Time
	controller *RatioController

	pool      model.PoolState
	unclaimed model.UnclaimedAggregates
	accounts  map[common.Address]model.Account
}

// New restores an Engine from the store, seeding it from cfg.Genesis on first start.
func New(ctx context.Context, cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is nil")
	}
	if deps.Settlement == nil {
		return nil, fmt.Errorf("settlement is nil")
	}
	if cfg.Authority == (common.Address{}) {
		return nil, fmt.Errorf("authority address is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		authority:  cfg.Authority,
		store:      deps.Store,
		settlement: deps.Settlement,
		binder:     deps.Binder,
		emitter:    deps.Emitter,
		logger:     logger,
		clock:      time.Now,
		accounts:   make(map[common.Address]model.Account),
	}
	e.SetClock(deps.Clock)
	e.controller = NewRatioController(cfg.Controller, &e.pool)

	snapshot, ok, err := deps.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if ok {
		e.pool = snapshot.Pool
		e.unclaimed = snapshot.Unclaimed
		for addr, acct := range snapshot.Accounts {
			e.accounts[addr] = acct
		}
		logger.Info("pool state restored",
			zap.String("collateral_ratio", fixed.FormatRatio(&e.pool.CollateralRatio)),
			zap.Int("accounts", len(e.accounts)),
		)
	} else {
		if err := e.seed(ctx, cfg.Genesis); err != nil {
			return nil, err
		}
	}

	if e.pool.Oracle != (common.Address{}) {
		if e.binder == nil {
			return nil, fmt.Errorf("oracle %s configured without a binder", e.pool.Oracle.Hex())
		}
		source, err := e.binder.Bind(e.pool.Oracle)
		if err != nil {
			return nil, fmt.Errorf("bind oracle: %w", err)
		}
		e.oracle = source
	}
	return e, nil
}

func (e *Engine) seed(ctx context.Context, genesis Params) error {
	one := fixed.RatioOne()
	if genesis.CollateralRatio.Gt(one) || genesis.MinCollateralRatio.Gt(one) {
		return fmt.Errorf("%w: genesis collateral ratio above 1", ErrInvalidArgument)
	}
	if genesis.CollateralRatio.Lt(&genesis.MinCollateralRatio) {
		return fmt.Errorf("%w: genesis collateral ratio below floor", ErrInvalidArgument)
	}
	if err := checkFeeRate(&genesis.MintingFeeRate); err != nil {
		return err
	}
	if err := checkFeeRate(&genesis.RedemptionFeeRate); err != nil {
		return err
	}
	e.pool = model.PoolState{
		CollateralRatio:      genesis.CollateralRatio,
		MinCollateralRatio:   genesis.MinCollateralRatio,
		MintingFeeRate:       genesis.MintingFeeRate,
		RedemptionFeeRate:    genesis.RedemptionFeeRate,
		MaxStableSupply:      genesis.MaxStableSupply,
		Oracle:               genesis.Oracle,
		Treasury:             genesis.Treasury,
		SwapStrategy:         genesis.SwapStrategy,
		LastRefreshTimestamp: e.now(),
	}
	if err := e.persist(ctx, nil); err != nil {
		return fmt.Errorf("persist genesis: %w", err)
	}
	e.logger.Info("pool state seeded",
		zap.String("collateral_ratio", fixed.FormatRatio(&e.pool.CollateralRatio)),
		zap.String("authority", e.authority.Hex()),
	)
	return nil
}

// SetClock overrides the wall-clock used for timestamps.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// Authority returns the privileged principal.
func (e *Engine) Authority() common.Address { return e.authority }

// Info returns the pool summary.
func (e *Engine) Info() model.Info {
	balance, underflow := new(uint256.Int).SubOverflow(&e.pool.CollateralHeld, &e.unclaimed.Collateral)
	if underflow {
		balance.Clear()
	}
	return model.Info{
		CollateralRatio:      e.pool.CollateralRatio,
		LastRefreshTimestamp: e.pool.LastRefreshTimestamp,
		MintingFeeRate:       e.pool.MintingFeeRate,
		RedemptionFeeRate:    e.pool.RedemptionFeeRate,
		MintingPaused:        e.pool.MintingPaused,
		RedemptionPaused:     e.pool.RedemptionPaused,
		CollateralBalance:    *balance,
		MaxStableSupply:      e.pool.MaxStableSupply,
	}
}

// PoolState returns a copy of the pool state.
func (e *Engine) PoolState() model.PoolState { return e.pool }

// Unclaimed returns a copy of the unclaimed aggregates.
func (e *Engine) Unclaimed() model.UnclaimedAggregates { return e.unclaimed }

// State returns a deep copy of the full engine state.
func (e *Engine) State() model.Snapshot {
	accounts := make(map[common.Address]model.Account, len(e.accounts))
	for addr, acct := range e.accounts {
		accounts[addr] = acct
	}
	return model.Snapshot{Pool: e.pool, Unclaimed: e.unclaimed, Accounts: accounts}
}

func (e *Engine) now() uint64 {
	ts := e.clock().UTC().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) requireAuthority(caller common.Address) error {
	if caller != e.authority {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

func (e *Engine) seigniorageSpot(ctx context.Context) (*uint256.Int, error) {
	if e.oracle == nil {
		return nil, fmt.Errorf("%w: oracle not configured", ErrStaleOracle)
	}
	price, err := e.oracle.SeigniorageSpot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaleOracle, err)
	}
	if price == nil || price.IsZero() {
		return nil, fmt.Errorf("%w: zero seigniorage price", ErrStaleOracle)
	}
	return price, nil
}

func (e *Engine) stablePrice(ctx context.Context) (*uint256.Int, error) {
	if e.oracle == nil {
		return nil, fmt.Errorf("%w: oracle not configured", ErrStaleOracle)
	}
	price, err := e.oracle.StablePrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaleOracle, err)
	}
	if price == nil || price.IsZero() {
		return nil, fmt.Errorf("%w: zero stable price", ErrStaleOracle)
	}
	return price, nil
}

// pull takes legs from the caller. A caller that cannot cover them made an
// invalid request; other settlement failures pass through unchanged.
func (e *Engine) pull(ctx context.Context, from common.Address, legs []model.Leg) error {
	err := e.settlement.Pull(ctx, from, legs)
	if errors.Is(err, model.ErrInsufficientBalance) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return err
}

func (e *Engine) emit(ctx context.Context, events ...model.Event) {
	if e.emitter == nil || len(events) == 0 {
		return
	}
	e.emitter.Emit(ctx, events)
}

func (e *Engine) event(name string, data interface{}) model.Event {
	return model.Event{Name: name, Timestamp: e.now(), Data: data}
}

type txSnapshot struct {
	pool      model.PoolState
	unclaimed model.UnclaimedAggregates
	accounts  map[common.Address]*model.Account
}

func (e *Engine) snapshot(touched []common.Address) txSnapshot {
	snap := txSnapshot{
		pool:      e.pool,
		unclaimed: e.unclaimed,
		accounts:  make(map[common.Address]*model.Account, len(touched)),
	}
	for _, addr := range touched {
		if acct, ok := e.accounts[addr]; ok {
			snap.accounts[addr] = &acct
		} else {
			snap.accounts[addr] = nil
		}
	}
	return snap
}

func (e *Engine) restore(snap txSnapshot) {
	e.pool = snap.pool
	e.unclaimed = snap.unclaimed
	for addr, acct := range snap.accounts {
		if acct == nil {
			delete(e.accounts, addr)
			continue
		}
		e.accounts[addr] = *acct
	}
}

func (e *Engine) persist(ctx context.Context, touched []common.Address) error {
	change := model.Changeset{
		Pool:      e.pool,
		Unclaimed: e.unclaimed,
		Accounts:  make(map[common.Address]model.Account, len(touched)),
	}
	// a touched address absent after rollback is written as an empty record
	for _, addr := range touched {
		change.Accounts[addr] = e.accounts[addr]
	}
	return e.store.Commit(ctx, change)
}

// atomically applies mutate, persists the touched state and then runs effect.
// Any failure restores the pre-call state; a failed effect also re-persists it.
func (e *Engine) atomically(ctx context.Context, touched []common.Address, mutate func() error, effect func() error) error {
	snap := e.snapshot(touched)
	if err := mutate(); err != nil {
		e.restore(snap)
		return err
	}
	if err := e.persist(ctx, touched); err != nil {
		e.restore(snap)
		return fmt.Errorf("persist state: %w", err)
	}
	if effect == nil {
		return nil
	}
	if err := effect(); err != nil {
		e.restore(snap)
		if perr := e.persist(ctx, touched); perr != nil {
			e.logger.Error("rollback persist failed", zap.Error(perr))
			return errors.Join(err, fmt.Errorf("persist rollback: %w", perr))
		}
		return err
	}
	return nil
}
