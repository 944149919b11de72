package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"pegpool/internal/fixed"
)

// maxFeeRate caps either fee at 5%.
var maxFeeRate = uint256.NewInt(50_000)

func checkFeeRate(rate *uint256.Int) error {
	if rate.Gt(maxFeeRate) {
		return fmt.Errorf("%w: fee rate %s above %s", ErrInvalidArgument, fixed.FormatRatio(rate), fixed.FormatRatio(maxFeeRate))
	}
	return nil
}

// mintingFee is the fee charged on the collateral leg of a mint.
func mintingFee(collateralLeg, rate *uint256.Int) (*uint256.Int, error) {
	return fixed.MulDiv(collateralLeg, rate, fixed.RatioOne())
}

// netOfFee returns amount × (1 − rate), floored.
func netOfFee(amount, rate *uint256.Int) (*uint256.Int, error) {
	keep, err := fixed.Sub(fixed.RatioOne(), rate)
	if err != nil {
		return nil, fmt.Errorf("%w: fee rate above 1", ErrInvalidArgument)
	}
	return fixed.MulDiv(amount, keep, fixed.RatioOne())
}
