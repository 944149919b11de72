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

// MintRequest is a caller's mint order. Collateral drives the mint whenever the
// ratio is non-zero; at a zero ratio MaxSeigniorageIn is spent in full.
type MintRequest struct {
	CollateralIn     uint256.Int
	MaxSeigniorageIn uint256.Int
	// MinStableOut is ignored when zero.
	MinStableOut uint256.Int
}

type mintPricing struct {
	quote model.MintQuote
	total uint256.Int
}

// CalcMint prices a mint without changing state.
func (e *Engine) CalcMint(ctx context.Context, collateralIn, seigniorageIn *uint256.Int) (model.MintQuote, error) {
	pricing, err := e.priceMint(ctx, collateralIn, seigniorageIn)
	if err != nil {
		return model.MintQuote{}, err
	}
	return pricing.quote, nil
}

func (e *Engine) priceMint(ctx context.Context, collateralIn, seigniorageIn *uint256.Int) (mintPricing, error) {
	var out mintPricing
	one := fixed.RatioOne()
	cr := new(uint256.Int).Set(&e.pool.CollateralRatio)
	seigShare := new(uint256.Int).Sub(one, cr)
	if cr.IsZero() && !collateralIn.IsZero() {
		return out, fmt.Errorf("%w: collateral not accepted at zero collateral ratio", ErrInvalidArgument)
	}

	collateralDrives := !cr.IsZero() && !collateralIn.IsZero()
	seigniorageDrives := !seigShare.IsZero() && !seigniorageIn.IsZero()
	if !collateralDrives && !seigniorageDrives {
		return out, nil
	}

	var price *uint256.Int
	if !seigShare.IsZero() {
		var err error
		if price, err = e.seigniorageSpot(ctx); err != nil {
			return out, err
		}
	}

	var total *uint256.Int
	if collateralDrives {
		fromCollateral, err := fixed.MulDiv(collateralIn, one, cr)
		if err != nil {
			return out, fmt.Errorf("%w: collateral amount: %v", ErrInvalidArgument, err)
		}
		total = fromCollateral
	}
	if seigniorageDrives {
		value, err := fixed.MulDiv(seigniorageIn, price, fixed.PriceOne())
		if err != nil {
			return out, fmt.Errorf("%w: seigniorage amount: %v", ErrInvalidArgument, err)
		}
		fromSeigniorage, err := fixed.MulDiv(value, one, seigShare)
		if err != nil {
			return out, fmt.Errorf("%w: seigniorage amount: %v", ErrInvalidArgument, err)
		}
		if total == nil {
			total = fromSeigniorage
		} else {
			if err := checkLegsConsistent(total, fromSeigniorage); err != nil {
				return out, err
			}
			if fromSeigniorage.Lt(total) {
				total = fromSeigniorage
			}
		}
	}
	if total.IsZero() {
		return out, nil
	}

	requiredCollateral, err := fixed.MulDiv(total, cr, one)
	if err != nil {
		return out, err
	}
	requiredSeigniorage := new(uint256.Int)
	if !seigShare.IsZero() {
		seigValue, err := fixed.MulDiv(total, seigShare, one)
		if err != nil {
			return out, err
		}
		if requiredSeigniorage, err = fixed.MulDiv(seigValue, fixed.PriceOne(), price); err != nil {
			return out, err
		}
	}
	stableOut, err := netOfFee(total, &e.pool.MintingFeeRate)
	if err != nil {
		return out, err
	}
	fee, err := mintingFee(requiredCollateral, &e.pool.MintingFeeRate)
	if err != nil {
		return out, err
	}

	out.total = *total
	out.quote = model.MintQuote{
		StableOut:             *stableOut,
		RequiredCollateralIn:  *requiredCollateral,
		RequiredSeigniorageIn: *requiredSeigniorage,
		Fee:                   *fee,
	}
	return out, nil
}

// checkLegsConsistent rejects leg pairs whose implied totals differ by more than 1 ppm.
func checkLegsConsistent(a, b *uint256.Int) error {
	hi, lo := a, b
	if lo.Gt(hi) {
		hi, lo = lo, hi
	}
	diff := new(uint256.Int).Sub(hi, lo)
	tolerance := new(uint256.Int).Div(hi, fixed.RatioOne())
	tolerance.AddUint64(tolerance, 2)
	if diff.Gt(tolerance) {
		return fmt.Errorf("%w: collateral and seigniorage legs imply different values (%s vs %s)",
			ErrInvalidArgument, a.Dec(), b.Dec())
	}
	return nil
}

// Mint takes collateral and seigniorage from caller and credits the stable output
// to the caller's pending balance.
func (e *Engine) Mint(ctx context.Context, caller common.Address, req MintRequest) (model.MintQuote, error) {
	if e.pool.MintingPaused {
		return model.MintQuote{}, fmt.Errorf("%w: minting disabled", ErrPaused)
	}
	if caller == (common.Address{}) {
		return model.MintQuote{}, fmt.Errorf("%w: zero caller address", ErrInvalidArgument)
	}

	zero := new(uint256.Int)
	var pricing mintPricing
	var err error
	if e.pool.CollateralRatio.IsZero() {
		pricing, err = e.priceMint(ctx, &req.CollateralIn, &req.MaxSeigniorageIn)
	} else {
		pricing, err = e.priceMint(ctx, &req.CollateralIn, zero)
	}
	if err != nil {
		return model.MintQuote{}, err
	}
	quote := pricing.quote

	if pricing.total.IsZero() {
		return model.MintQuote{}, fmt.Errorf("%w: mint value is zero", ErrInvalidArgument)
	}
	if quote.RequiredSeigniorageIn.Gt(&req.MaxSeigniorageIn) {
		return model.MintQuote{}, fmt.Errorf("%w: seigniorage required %s exceeds bound %s", ErrSlippageExceeded,
			quote.RequiredSeigniorageIn.Dec(), req.MaxSeigniorageIn.Dec())
	}
	if !req.MinStableOut.IsZero() && quote.StableOut.Lt(&req.MinStableOut) {
		return model.MintQuote{}, fmt.Errorf("%w: stable out %s below minimum %s", ErrSlippageExceeded,
			quote.StableOut.Dec(), req.MinStableOut.Dec())
	}

	collateralIn := req.CollateralIn
	seigniorageIn := quote.RequiredSeigniorageIn
	legs := make([]model.Leg, 0, 2)
	if !collateralIn.IsZero() {
		legs = append(legs, model.Leg{Asset: model.AssetCollateral, Amount: collateralIn})
	}
	if !seigniorageIn.IsZero() {
		legs = append(legs, model.Leg{Asset: model.AssetSeigniorage, Amount: seigniorageIn})
	}

	now := e.now()
	err = e.atomically(ctx, []common.Address{caller}, func() error {
		supply, err := fixed.Add(&e.pool.StableSupply, &quote.StableOut)
		if err != nil {
			return fmt.Errorf("%w: stable supply overflow", ErrInvalidArgument)
		}
		if !e.pool.MaxStableSupply.IsZero() && supply.Gt(&e.pool.MaxStableSupply) {
			return fmt.Errorf("%w: stable supply %s would exceed cap %s", ErrInvalidArgument,
				supply.Dec(), e.pool.MaxStableSupply.Dec())
		}
		held, err := fixed.Add(&e.pool.CollateralHeld, &collateralIn)
		if err != nil {
			return fmt.Errorf("%w: collateral overflow", ErrInvalidArgument)
		}
		fees, err := fixed.Add(&e.pool.AccruedFees, &quote.Fee)
		if err != nil {
			return fmt.Errorf("%w: fee overflow", ErrInvalidArgument)
		}
		acct := e.accounts[caller]
		pending, err := fixed.Add(&acct.PendingStable, &quote.StableOut)
		if err != nil {
			return fmt.Errorf("%w: pending overflow", ErrInvalidArgument)
		}
		unclaimed, err := fixed.Add(&e.unclaimed.Stable, &quote.StableOut)
		if err != nil {
			return fmt.Errorf("%w: unclaimed overflow", ErrInvalidArgument)
		}

		e.pool.StableSupply = *supply
		e.pool.CollateralHeld = *held
		e.pool.AccruedFees = *fees
		acct.PendingStable = *pending
		acct.LastActionTimestamp = now
		e.accounts[caller] = acct
		e.unclaimed.Stable = *unclaimed
		return nil
	}, func() error {
		if len(legs) == 0 {
			return nil
		}
		return e.pull(ctx, caller, legs)
	})
	if err != nil {
		return model.MintQuote{}, err
	}

	e.logger.Info("mint",
		zap.String("account", caller.Hex()),
		zap.String("stable_out", fixed.FormatAmount(&quote.StableOut)),
		zap.String("collateral_in", fixed.FormatAmount(&collateralIn)),
		zap.String("seigniorage_in", fixed.FormatAmount(&seigniorageIn)),
		zap.String("fee", fixed.FormatAmount(&quote.Fee)),
	)
	e.emit(ctx, e.event(model.EventMint, model.MintEventData{
		Account:       caller.Hex(),
		StableOut:     quote.StableOut.Dec(),
		CollateralIn:  collateralIn.Dec(),
		SeigniorageIn: seigniorageIn.Dec(),
		Fee:           quote.Fee.Dec(),
	}))
	return quote, nil
}
