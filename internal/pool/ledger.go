package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pegpool/internal/model"
)

// UserInfo returns the pending balances of addr. Unknown addresses read as zero.
func (e *Engine) UserInfo(addr common.Address) model.UserInfo {
	acct := e.accounts[addr]
	return model.UserInfo{
		PendingStable:       acct.PendingStable,
		PendingSeigniorage:  acct.PendingSeigniorage,
		PendingCollateral:   acct.PendingCollateral,
		LastActionTimestamp: acct.LastActionTimestamp,
	}
}

// Collect pays out everything pending for caller. Balances are zeroed before
// any token moves, so a reentrant Collect finds nothing to pay.
func (e *Engine) Collect(ctx context.Context, caller common.Address) (model.CollectResult, error) {
	acct, ok := e.accounts[caller]
	if !ok || !acct.HasPending() {
		return model.CollectResult{}, nil
	}

	legs := make([]model.Leg, 0, 3)
	for _, leg := range []model.Leg{
		{Asset: model.AssetStable, Amount: acct.PendingStable},
		{Asset: model.AssetCollateral, Amount: acct.PendingCollateral},
		{Asset: model.AssetSeigniorage, Amount: acct.PendingSeigniorage},
	} {
		if !leg.Amount.IsZero() {
			legs = append(legs, leg)
		}
	}

	err := e.atomically(ctx, []common.Address{caller}, func() error {
		if err := subInto(&e.unclaimed.Stable, &acct.PendingStable); err != nil {
			return err
		}
		if err := subInto(&e.unclaimed.Collateral, &acct.PendingCollateral); err != nil {
			return err
		}
		if err := subInto(&e.unclaimed.Seigniorage, &acct.PendingSeigniorage); err != nil {
			return err
		}
		if err := subInto(&e.pool.CollateralHeld, &acct.PendingCollateral); err != nil {
			return err
		}
		cleared := acct
		cleared.PendingStable.Clear()
		cleared.PendingCollateral.Clear()
		cleared.PendingSeigniorage.Clear()
		e.accounts[caller] = cleared
		return nil
	}, func() error {
		return e.settlement.Push(ctx, caller, legs)
	})
	if err != nil {
		return model.CollectResult{}, err
	}

	fields := []zap.Field{zap.String("account", caller.Hex())}
	events := make([]model.Event, 0, len(legs))
	for _, leg := range legs {
		fields = append(fields, zap.String(string(leg.Asset), leg.Amount.Dec()))
		events = append(events, e.event(model.EventTransfer, model.TransferEventData{
			Asset:  leg.Asset,
			To:     caller.Hex(),
			Amount: leg.Amount.Dec(),
		}))
	}
	e.logger.Info("collect", fields...)
	e.emit(ctx, events...)
	return model.CollectResult{Legs: legs}, nil
}

func subInto(total, amount *uint256.Int) error {
	if _, underflow := total.SubOverflow(total, amount); underflow {
		return fmt.Errorf("ledger aggregate underflow by %s", amount.Dec())
	}
	return nil
}
