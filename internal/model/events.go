package model

// Event names emitted by the pool.
const (
	EventMint                         = "Mint"
	EventRedeem                       = "Redeem"
	EventTransfer                     = "Transfer"
	EventOracleChanged                = "OracleChanged"
	EventTreasuryChanged              = "TreasuryChanged"
	EventSwapStrategyChanged          = "SwapStrategyChanged"
	EventCollateralRatioUpdated       = "CollateralRatioUpdated"
	EventCollateralRatioPausedUpdated = "CollateralRatioPausedUpdated"
	EventMinCollateralRatioUpdated    = "MinCollateralRatioUpdated"
	EventMintingPausedUpdated         = "MintingPausedUpdated"
	EventRedemptionPausedUpdated      = "RedemptionPausedUpdated"
	EventFeesUpdated                  = "FeesUpdated"
	EventMaxStableSupplyUpdated       = "MaxStableSupplyUpdated"
	EventFeesSwept                    = "FeesSwept"
)

// Event is an emitted pool event. Amounts in payloads are base-unit decimal strings.
type Event struct {
	Name      string      `json:"event"`
	Timestamp uint64      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// MintEventData is the Mint payload.
type MintEventData struct {
	Account       string `json:"account"`
	StableOut     string `json:"stable_out"`
	CollateralIn  string `json:"collateral_in"`
	SeigniorageIn string `json:"seigniorage_in"`
	Fee           string `json:"fee"`
}

// RedeemEventData is the Redeem payload.
type RedeemEventData struct {
	Account        string `json:"account"`
	StableIn       string `json:"stable_in"`
	CollateralOut  string `json:"collateral_out"`
	SeigniorageOut string `json:"seigniorage_out"`
	Fee            string `json:"fee"`
}

// TransferEventData is emitted once per settled leg.
type TransferEventData struct {
	Asset  Asset  `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// AddressChangedData carries a new collaborator address.
type AddressChangedData struct {
	Address string `json:"address"`
}

// RatioChangedData carries a new 6-decimal ratio value.
type RatioChangedData struct {
	Value string `json:"value"`
}

// PausedChangedData carries a new pause flag.
type PausedChangedData struct {
	Paused bool `json:"paused"`
}

// FeesUpdatedData carries the new fee rates.
type FeesUpdatedData struct {
	MintingFeeRate    string `json:"minting_fee_rate"`
	RedemptionFeeRate string `json:"redemption_fee_rate"`
}

// SupplyCapData carries the new stable supply cap.
type SupplyCapData struct {
	MaxStableSupply string `json:"max_stable_supply"`
}

// FeesSweptData records accrued fees paid to the treasury.
type FeesSweptData struct {
	Treasury string `json:"treasury"`
	Amount   string `json:"amount"`
}
