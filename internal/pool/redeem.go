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

// RedeemRequest is a caller's redemption order. Zero minimums are not checked.
type RedeemRequest struct {
	StableIn          uint256.Int
	MinSeigniorageOut uint256.Int
	MinCollateralOut  uint256.Int
}

// CalcRedeem prices a redemption without changing state.
func (e *Engine) CalcRedeem(ctx context.Context, stableIn *uint256.Int) (model.RedeemQuote, error) {
	if stableIn.IsZero() {
		return model.RedeemQuote{}, nil
	}
	one := fixed.RatioOne()
	cr := new(uint256.Int).Set(&e.pool.CollateralRatio)
	seigShare := new(uint256.Int).Sub(one, cr)

	value, err := netOfFee(stableIn, &e.pool.RedemptionFeeRate)
	if err != nil {
		return model.RedeemQuote{}, err
	}
	collateralOut, err := fixed.MulDiv(value, cr, one)
	if err != nil {
		return model.RedeemQuote{}, err
	}
	seigniorageOut := new(uint256.Int)
	if !seigShare.IsZero() {
		price, err := e.seigniorageSpot(ctx)
		if err != nil {
			return model.RedeemQuote{}, err
		}
		seigValue, err := fixed.MulDiv(value, seigShare, one)
		if err != nil {
			return model.RedeemQuote{}, err
		}
		if seigniorageOut, err = fixed.MulDiv(seigValue, fixed.PriceOne(), price); err != nil {
			return model.RedeemQuote{}, err
		}
	}
	fee := new(uint256.Int).Sub(stableIn, value)
	return model.RedeemQuote{
		CollateralOut:  *collateralOut,
		SeigniorageOut: *seigniorageOut,
		Fee:            *fee,
	}, nil
}

// freeCollateral is custody not owed to accounts or reserved as fees.
func (e *Engine) freeCollateral() *uint256.Int {
	free, underflow := new(uint256.Int).SubOverflow(&e.pool.CollateralHeld, &e.unclaimed.Collateral)
	if underflow {
		return new(uint256.Int)
	}
	if free, underflow = new(uint256.Int).SubOverflow(free, &e.pool.AccruedFees); underflow {
		return new(uint256.Int)
	}
	return free
}

// Redeem burns stable from caller and credits collateral and seigniorage to the
// caller's pending balance.
func (e *Engine) Redeem(ctx context.Context, caller common.Address, req RedeemRequest) (model.RedeemQuote, error) {
	if e.pool.RedemptionPaused {
		return model.RedeemQuote{}, fmt.Errorf("%w: redemption disabled", ErrPaused)
	}
	if caller == (common.Address{}) {
		return model.RedeemQuote{}, fmt.Errorf("%w: zero caller address", ErrInvalidArgument)
	}
	if req.StableIn.IsZero() {
		return model.RedeemQuote{}, fmt.Errorf("%w: stable amount is zero", ErrInvalidArgument)
	}
	if req.StableIn.Gt(&e.pool.StableSupply) {
		return model.RedeemQuote{}, fmt.Errorf("%w: stable amount %s exceeds supply %s", ErrInvalidArgument,
			req.StableIn.Dec(), e.pool.StableSupply.Dec())
	}

	quote, err := e.CalcRedeem(ctx, &req.StableIn)
	if err != nil {
		return model.RedeemQuote{}, err
	}
	if free := e.freeCollateral(); quote.CollateralOut.Gt(free) {
		return model.RedeemQuote{}, fmt.Errorf("%w: collateral out %s exceeds available %s", ErrInsufficientLiquidity,
			quote.CollateralOut.Dec(), free.Dec())
	}
	if !req.MinCollateralOut.IsZero() && quote.CollateralOut.Lt(&req.MinCollateralOut) {
		return model.RedeemQuote{}, fmt.Errorf("%w: collateral out %s below minimum %s", ErrSlippageExceeded,
			quote.CollateralOut.Dec(), req.MinCollateralOut.Dec())
	}
	if !req.MinSeigniorageOut.IsZero() && quote.SeigniorageOut.Lt(&req.MinSeigniorageOut) {
		return model.RedeemQuote{}, fmt.Errorf("%w: seigniorage out %s below minimum %s", ErrSlippageExceeded,
			quote.SeigniorageOut.Dec(), req.MinSeigniorageOut.Dec())
	}

	stableIn := req.StableIn
	now := e.now()
	err = e.atomically(ctx, []common.Address{caller}, func() error {
		acct := e.accounts[caller]
		pendingCollateral, err := fixed.Add(&acct.PendingCollateral, &quote.CollateralOut)
		if err != nil {
			return fmt.Errorf("%w: pending overflow", ErrInvalidArgument)
		}
		pendingSeigniorage, err := fixed.Add(&acct.PendingSeigniorage, &quote.SeigniorageOut)
		if err != nil {
			return fmt.Errorf("%w: pending overflow", ErrInvalidArgument)
		}
		unclaimedCollateral, err := fixed.Add(&e.unclaimed.Collateral, &quote.CollateralOut)
		if err != nil {
			return fmt.Errorf("%w: unclaimed overflow", ErrInvalidArgument)
		}
		unclaimedSeigniorage, err := fixed.Add(&e.unclaimed.Seigniorage, &quote.SeigniorageOut)
		if err != nil {
			return fmt.Errorf("%w: unclaimed overflow", ErrInvalidArgument)
		}
		supply, err := fixed.Sub(&e.pool.StableSupply, &stableIn)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}

		acct.PendingCollateral = *pendingCollateral
		acct.PendingSeigniorage = *pendingSeigniorage
		acct.LastActionTimestamp = now
		e.accounts[caller] = acct
		e.unclaimed.Collateral = *unclaimedCollateral
		e.unclaimed.Seigniorage = *unclaimedSeigniorage
		e.pool.StableSupply = *supply
		return nil
	}, func() error {
		return e.pull(ctx, caller, []model.Leg{{Asset: model.AssetStable, Amount: stableIn}})
	})
	if err != nil {
		return model.RedeemQuote{}, err
	}

	e.logger.Info("redeem",
		zap.String("account", caller.Hex()),
		zap.String("stable_in", fixed.FormatAmount(&stableIn)),
		zap.String("collateral_out", fixed.FormatAmount(&quote.CollateralOut)),
		zap.String("seigniorage_out", fixed.FormatAmount(&quote.SeigniorageOut)),
	)
	e.emit(ctx, e.event(model.EventRedeem, model.RedeemEventData{
		Account:        caller.Hex(),
		StableIn:       stableIn.Dec(),
		CollateralOut:  quote.CollateralOut.Dec(),
		SeigniorageOut: quote.SeigniorageOut.Dec(),
		Fee:            quote.Fee.Dec(),
	}))
	return quote, nil
}
