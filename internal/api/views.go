package api

import (
	"strings"

	"github.com/holiman/uint256"

	"pegpool/internal/model"
)

// Integer amounts, ratios and rates travel as base-unit decimal strings.

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type infoResponse struct {
	CollateralRatio      string `json:"collateral_ratio"`
	LastRefreshTimestamp uint64 `json:"last_refresh_timestamp"`
	MintingFeeRate       string `json:"minting_fee_rate"`
	RedemptionFeeRate    string `json:"redemption_fee_rate"`
	MintingPaused        bool   `json:"minting_paused"`
	RedemptionPaused     bool   `json:"redemption_paused"`
	CollateralBalance    string `json:"collateral_balance"`
	MaxStableSupply      string `json:"max_stable_supply"`
}

func newInfoResponse(info model.Info) infoResponse {
	return infoResponse{
		CollateralRatio:      info.CollateralRatio.Dec(),
		LastRefreshTimestamp: info.LastRefreshTimestamp,
		MintingFeeRate:       info.MintingFeeRate.Dec(),
		RedemptionFeeRate:    info.RedemptionFeeRate.Dec(),
		MintingPaused:        info.MintingPaused,
		RedemptionPaused:     info.RedemptionPaused,
		CollateralBalance:    info.CollateralBalance.Dec(),
		MaxStableSupply:      info.MaxStableSupply.Dec(),
	}
}

type mintQuoteResponse struct {
	StableOut             string `json:"stable_out"`
	RequiredCollateralIn  string `json:"required_collateral_in"`
	RequiredSeigniorageIn string `json:"required_seigniorage_in"`
	Fee                   string `json:"fee"`
}

func newMintQuoteResponse(q model.MintQuote) mintQuoteResponse {
	return mintQuoteResponse{
		StableOut:             q.StableOut.Dec(),
		RequiredCollateralIn:  q.RequiredCollateralIn.Dec(),
		RequiredSeigniorageIn: q.RequiredSeigniorageIn.Dec(),
		Fee:                   q.Fee.Dec(),
	}
}

type redeemQuoteResponse struct {
	CollateralOut  string `json:"collateral_out"`
	SeigniorageOut string `json:"seigniorage_out"`
	Fee            string `json:"fee"`
}

func newRedeemQuoteResponse(q model.RedeemQuote) redeemQuoteResponse {
	return redeemQuoteResponse{
		CollateralOut:  q.CollateralOut.Dec(),
		SeigniorageOut: q.SeigniorageOut.Dec(),
		Fee:            q.Fee.Dec(),
	}
}

type accountResponse struct {
	Address             string `json:"address"`
	PendingStable       string `json:"pending_stable"`
	PendingSeigniorage  string `json:"pending_seigniorage"`
	PendingCollateral   string `json:"pending_collateral"`
	LastActionTimestamp uint64 `json:"last_action_timestamp"`
}

type legResponse struct {
	Asset  model.Asset `json:"asset"`
	Amount string      `json:"amount"`
}

type collectResponse struct {
	Legs []legResponse `json:"legs"`
}

type mintRequest struct {
	CollateralIn     string `json:"collateral_in"`
	MaxSeigniorageIn string `json:"max_seigniorage_in"`
	MinStableOut     string `json:"min_stable_out"`
}

type redeemRequest struct {
	StableIn          string `json:"stable_in"`
	MinSeigniorageOut string `json:"min_seigniorage_out"`
	MinCollateralOut  string `json:"min_collateral_out"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type valueRequest struct {
	Value string `json:"value"`
}

type pausedRequest struct {
	Paused bool `json:"paused"`
}

type feesRequest struct {
	MintingFeeRate    string `json:"minting_fee_rate"`
	RedemptionFeeRate string `json:"redemption_fee_rate"`
}

type valueResponse struct {
	Value string `json:"value"`
}

// parseUnits reads an optional base-unit integer; empty reads as zero.
func parseUnits(field, value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(uint256.Int), nil
	}
	out, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, badRequest("%s: %q is not a base-unit integer", field, value)
	}
	return out, nil
}
