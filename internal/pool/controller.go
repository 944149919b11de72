package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pegpool/internal/fixed"
	"pegpool/internal/model"
)

// ControllerConfig tunes the stepwise collateral ratio refresh.
type ControllerConfig struct {
	RatioStep       uint256.Int
	RefreshCooldown time.Duration
	PriceTarget     uint256.Int
	PriceBand       uint256.Int
}

// DefaultControllerConfig steps 0.25% per hour around a 1.0 target with a 0.5% band.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		RatioStep:       *uint256.NewInt(2_500),
		RefreshCooldown: time.Hour,
		PriceTarget:     *fixed.PriceOne(),
		PriceBand:       *uint256.NewInt(5_000_000_000_000_000),
	}
}

// RatioController is the only writer of the collateral ratio fields of a PoolState.
type RatioController struct {
	cfg   ControllerConfig
	state *model.PoolState
}

// NewRatioController binds a controller to the pool state it owns.
func NewRatioController(cfg ControllerConfig, state *model.PoolState) *RatioController {
	return &RatioController{cfg: cfg, state: state}
}

func (c *RatioController) checkTarget(target *uint256.Int) error {
	if target.Gt(fixed.RatioOne()) {
		return fmt.Errorf("%w: collateral ratio %s above 1", ErrInvalidArgument, fixed.FormatRatio(target))
	}
	if target.Lt(&c.state.MinCollateralRatio) {
		return fmt.Errorf("%w: collateral ratio %s below floor %s", ErrInvalidArgument,
			fixed.FormatRatio(target), fixed.FormatRatio(&c.state.MinCollateralRatio))
	}
	return nil
}

// Set is the refresh-path setter; it is refused while the ratio is paused.
func (c *RatioController) Set(target *uint256.Int, now uint64) error {
	if c.state.CollateralRatioPaused {
		return fmt.Errorf("%w: collateral ratio refresh disabled", ErrPaused)
	}
	return c.Override(target, now)
}

// Override sets the ratio regardless of the pause flag.
func (c *RatioController) Override(target *uint256.Int, now uint64) error {
	if err := c.checkTarget(target); err != nil {
		return err
	}
	c.state.CollateralRatio.Set(target)
	c.state.LastRefreshTimestamp = now
	return nil
}

// SetPaused toggles the refresh pause without touching the ratio.
func (c *RatioController) SetPaused(paused bool) {
	c.state.CollateralRatioPaused = paused
}

// SetFloor replaces the minimum ratio. The current ratio is left as is.
func (c *RatioController) SetFloor(min *uint256.Int) error {
	if min.Gt(fixed.RatioOne()) {
		return fmt.Errorf("%w: minimum collateral ratio %s above 1", ErrInvalidArgument, fixed.FormatRatio(min))
	}
	c.state.MinCollateralRatio.Set(min)
	return nil
}

// Step moves the ratio one step against the peg deviation of price.
// Above the band the ratio falls toward the floor; below it the ratio rises toward 1.
// Callers check the pause flag first.
func (c *RatioController) Step(price *uint256.Int, now uint64) (bool, error) {
	cooldown := uint64(c.cfg.RefreshCooldown / time.Second)
	if c.state.LastRefreshTimestamp > 0 && now < c.state.LastRefreshTimestamp+cooldown {
		return false, fmt.Errorf("%w: refresh cooldown active until %d", ErrInvalidArgument, c.state.LastRefreshTimestamp+cooldown)
	}

	current := new(uint256.Int).Set(&c.state.CollateralRatio)
	next := new(uint256.Int).Set(current)
	upper := new(uint256.Int).Add(&c.cfg.PriceTarget, &c.cfg.PriceBand)
	lower, underflow := new(uint256.Int).SubOverflow(&c.cfg.PriceTarget, &c.cfg.PriceBand)
	if underflow {
		lower.Clear()
	}

	switch {
	case price.Gt(upper):
		if current.Gt(&c.state.MinCollateralRatio) {
			stepped, underflow := new(uint256.Int).SubOverflow(current, &c.cfg.RatioStep)
			if underflow || stepped.Lt(&c.state.MinCollateralRatio) {
				stepped.Set(&c.state.MinCollateralRatio)
			}
			next = stepped
		}
	case price.Lt(lower):
		stepped := new(uint256.Int).Add(current, &c.cfg.RatioStep)
		if stepped.Gt(fixed.RatioOne()) {
			stepped = fixed.RatioOne()
		}
		next = stepped
	}

	c.state.CollateralRatio.Set(next)
	c.state.LastRefreshTimestamp = now
	return !next.Eq(current), nil
}

// SetCollateralRatio sets the ratio through the refresh path.
func (e *Engine) SetCollateralRatio(ctx context.Context, caller common.Address, target *uint256.Int) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	err := e.atomically(ctx, nil, func() error {
		return e.controller.Set(target, e.now())
	}, nil)
	if err != nil {
		return err
	}
	e.logger.Info("collateral ratio set", zap.String("value", fixed.FormatRatio(target)))
	e.emit(ctx, e.event(model.EventCollateralRatioUpdated, model.RatioChangedData{Value: target.Dec()}))
	return nil
}

// OverrideCollateralRatio sets the ratio even while refresh is paused.
func (e *Engine) OverrideCollateralRatio(ctx context.Context, caller common.Address, target *uint256.Int) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	err := e.atomically(ctx, nil, func() error {
		return e.controller.Override(target, e.now())
	}, nil)
	if err != nil {
		return err
	}
	e.logger.Info("collateral ratio overridden", zap.String("value", fixed.FormatRatio(target)))
	e.emit(ctx, e.event(model.EventCollateralRatioUpdated, model.RatioChangedData{Value: target.Dec()}))
	return nil
}

// TogglePause enables or disables collateral ratio refresh.
func (e *Engine) TogglePause(ctx context.Context, caller common.Address, paused bool) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	err := e.atomically(ctx, nil, func() error {
		e.controller.SetPaused(paused)
		return nil
	}, nil)
	if err != nil {
		return err
	}
	e.logger.Info("collateral ratio pause toggled", zap.Bool("paused", paused))
	e.emit(ctx, e.event(model.EventCollateralRatioPausedUpdated, model.PausedChangedData{Paused: paused}))
	return nil
}

// SetMinCollateralRatio replaces the ratio floor.
func (e *Engine) SetMinCollateralRatio(ctx context.Context, caller common.Address, min *uint256.Int) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	err := e.atomically(ctx, nil, func() error {
		return e.controller.SetFloor(min)
	}, nil)
	if err != nil {
		return err
	}
	e.logger.Info("minimum collateral ratio set", zap.String("value", fixed.FormatRatio(min)))
	e.emit(ctx, e.event(model.EventMinCollateralRatioUpdated, model.RatioChangedData{Value: min.Dec()}))
	return nil
}

// RefreshCollateralRatio steps the ratio from the oracle's stable price. Anyone may call it.
func (e *Engine) RefreshCollateralRatio(ctx context.Context) (uint256.Int, error) {
	if e.pool.CollateralRatioPaused {
		return uint256.Int{}, fmt.Errorf("%w: collateral ratio refresh disabled", ErrPaused)
	}
	var changed bool
	err := e.atomically(ctx, nil, func() error {
		price, err := e.stablePrice(ctx)
		if err != nil {
			return err
		}
		changed, err = e.controller.Step(price, e.now())
		return err
	}, nil)
	if err != nil {
		return uint256.Int{}, err
	}
	cr := e.pool.CollateralRatio
	e.logger.Info("collateral ratio refreshed",
		zap.String("value", fixed.FormatRatio(&cr)),
		zap.Bool("changed", changed),
	)
	if changed {
		e.emit(ctx, e.event(model.EventCollateralRatioUpdated, model.RatioChangedData{Value: cr.Dec()}))
	}
	return cr, nil
}
