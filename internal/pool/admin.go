package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pegpool/internal/fixed"
	"pegpool/internal/model"
)

// SetOracle rebinds the price source. The previous source stays active if binding fails.
func (e *Engine) SetOracle(ctx context.Context, caller common.Address, addr common.Address) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: zero oracle address", ErrInvalidArgument)
	}
	if e.binder == nil {
		return fmt.Errorf("%w: no oracle binder configured", ErrInvalidArgument)
	}
	source, err := e.binder.Bind(addr)
	if err != nil {
		return fmt.Errorf("%w: bind oracle %s: %v", ErrInvalidArgument, addr.Hex(), err)
	}
	err = e.atomically(ctx, nil, func() error {
		e.pool.Oracle = addr
		return nil
	}, nil)
	if err != nil {
		return err
	}
	e.oracle = source
	e.logger.Info("oracle changed", zap.String("address", addr.Hex()))
	e.emit(ctx, e.event(model.EventOracleChanged, model.AddressChangedData{Address: addr.Hex()}))
	return nil
}

// SetTreasury replaces the fee recipient.
func (e *Engine) SetTreasury(ctx context.Context, caller common.Address, addr common.Address) error {
	return e.setAddress(ctx, caller, addr, &e.pool.Treasury, "treasury", model.EventTreasuryChanged)
}

// SetSwapStrategy records the swap strategy collaborator.
func (e *Engine) SetSwapStrategy(ctx context.Context, caller common.Address, addr common.Address) error {
	return e.setAddress(ctx, caller, addr, &e.pool.SwapStrategy, "swap strategy", model.EventSwapStrategyChanged)
}

func (e *Engine) setAddress(ctx context.Context, caller, addr common.Address, field *common.Address, label, event string) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: zero %s address", ErrInvalidArgument, label)
	}
	err := e.atomically(ctx, nil, func() error {
		*field = addr
		return nil
	}, nil)
	if err != nil {
		return err
	}
	e.logger.Info(label+" changed", zap.String("address", addr.Hex()))
	e.emit(ctx, e.event(event, model.AddressChangedData{Address: addr.Hex()}))
	return nil
}

// ToggleMinting pauses or resumes Mint.
func (e *Engine) ToggleMinting(ctx context.Context, caller common.Address, paused bool) error {
	return e.setFlag(ctx, caller, paused, &e.pool.MintingPaused, "minting", model.EventMintingPausedUpdated)
}

// ToggleRedemption pauses or resumes Redeem.
func (e *Engine) ToggleRedemption(ctx context.Context, caller common.Address, paused bool) error {
	return e.setFlag(ctx, caller, paused, &e.pool.RedemptionPaused, "redemption", model.EventRedemptionPausedUpdated)
}

func (e *Engine) setFlag(ctx context.Context, caller common.Address, paused bool, field *bool, label, event string) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	err := e.atomically(ctx, nil, func() error {
		*field = paused
		return nil
	}, nil)
	if err != nil {
		return err
	}
	e.logger.Info(label+" pause toggled", zap.Bool("paused", paused))
	e.emit(ctx, e.event(event, model.PausedChangedData{Paused: paused}))
	return nil
}

// SetFees replaces both fee rates. Each is capped at 5%.
func (e *Engine) SetFees(ctx context.Context, caller common.Address, mintingRate, redemptionRate *uint256.Int) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if err := checkFeeRate(mintingRate); err != nil {
		return err
	}
	if err := checkFeeRate(redemptionRate); err != nil {
		return err
	}
	err := e.atomically(ctx, nil, func() error {
		e.pool.MintingFeeRate.Set(mintingRate)
		e.pool.RedemptionFeeRate.Set(redemptionRate)
		return nil
	}, nil)
	if err != nil {
		return err
	}
	e.logger.Info("fees updated",
		zap.String("minting", fixed.FormatRatio(mintingRate)),
		zap.String("redemption", fixed.FormatRatio(redemptionRate)),
	)
	e.emit(ctx, e.event(model.EventFeesUpdated, model.FeesUpdatedData{
		MintingFeeRate:    mintingRate.Dec(),
		RedemptionFeeRate: redemptionRate.Dec(),
	}))
	return nil
}

// SetMaxStableSupply replaces the supply cap. Zero disables the cap; an existing
// supply above a new cap only blocks further mints.
func (e *Engine) SetMaxStableSupply(ctx context.Context, caller common.Address, max *uint256.Int) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	err := e.atomically(ctx, nil, func() error {
		e.pool.MaxStableSupply.Set(max)
		return nil
	}, nil)
	if err != nil {
		return err
	}
	e.logger.Info("max stable supply updated", zap.String("value", fixed.FormatAmount(max)))
	e.emit(ctx, e.event(model.EventMaxStableSupplyUpdated, model.SupplyCapData{MaxStableSupply: max.Dec()}))
	return nil
}

// SweepFees pays accrued collateral fees to the treasury.
func (e *Engine) SweepFees(ctx context.Context, caller common.Address) (uint256.Int, error) {
	if err := e.requireAuthority(caller); err != nil {
		return uint256.Int{}, err
	}
	treasury := e.pool.Treasury
	if treasury == (common.Address{}) {
		return uint256.Int{}, fmt.Errorf("%w: treasury not set", ErrInvalidArgument)
	}
	amount := e.pool.AccruedFees
	if amount.IsZero() {
		return amount, nil
	}
	err := e.atomically(ctx, nil, func() error {
		if err := subInto(&e.pool.CollateralHeld, &amount); err != nil {
			return err
		}
		e.pool.AccruedFees.Clear()
		return nil
	}, func() error {
		return e.settlement.Push(ctx, treasury, []model.Leg{{Asset: model.AssetCollateral, Amount: amount}})
	})
	if err != nil {
		return uint256.Int{}, err
	}
	e.logger.Info("fees swept",
		zap.String("treasury", treasury.Hex()),
		zap.String("amount", fixed.FormatAmount(&amount)),
	)
	e.emit(ctx, e.event(model.EventFeesSwept, model.FeesSweptData{Treasury: treasury.Hex(), Amount: amount.Dec()}))
	return amount, nil
}
