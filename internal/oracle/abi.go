package oracle

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	seigniorageSpotMethod = "getFantasmPrice"
	stableTWAPMethod      = "getXftmTWAP"
)

const priceOracleABIJSON = `[
  {"inputs": [], "name": "getFantasmPrice", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getXftmTWAP", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	priceOracleABI     abi.ABI
	priceOracleABIOnce sync.Once
	priceOracleABIErr  error
)

// PriceOracleABI returns the parsed ABI of the on-chain price oracle.
func PriceOracleABI() (abi.ABI, error) {
	priceOracleABIOnce.Do(func() {
		priceOracleABI, priceOracleABIErr = abi.JSON(strings.NewReader(priceOracleABIJSON))
	})
	return priceOracleABI, priceOracleABIErr
}
