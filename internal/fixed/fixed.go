package fixed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// RatioDecimals is the precision of collateral ratios and fee rates.
	RatioDecimals = 6
	// AmountDecimals is the precision of token amounts and oracle prices.
	AmountDecimals = 18
)

var (
	errOverflow  = errors.New("fixed: arithmetic overflow")
	errDivByZero = errors.New("fixed: division by zero")
)

// RatioOne returns 1.0 at ratio precision.
func RatioOne() *uint256.Int { return uint256.NewInt(1_000_000) }

// PriceOne returns 1.0 at amount precision.
func PriceOne() *uint256.Int { return uint256.NewInt(1_000_000_000_000_000_000) }

// MulDiv returns floor(x*y/d) using a 512-bit intermediate.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, errDivByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, errOverflow
	}
	return out, nil
}

// Add returns x+y or an error on overflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, errOverflow
	}
	return out, nil
}

// Sub returns x-y or an error when y > x.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("fixed: %s - %s underflows", x.Dec(), y.Dec())
	}
	return out, nil
}

// ParseRatio parses a human fraction such as "0.9" into 6-decimal fixed point.
func ParseRatio(input string) (*uint256.Int, error) {
	return parseScaled(input, RatioDecimals)
}

// ParseAmount parses a human token amount such as "9.97" into 18-decimal base units.
func ParseAmount(input string) (*uint256.Int, error) {
	return parseScaled(input, AmountDecimals)
}

// ParseUnits parses a base-unit integer string.
func ParseUnits(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return new(uint256.Int), nil
	}
	out, err := uint256.FromDecimal(input)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	return out, nil
}

func parseScaled(input string, decimals int32) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return new(uint256.Int), nil
	}
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", input, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %q", input)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("value %q exceeds %d decimal places", input, decimals)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("value %q overflows 256 bits", input)
	}
	return out, nil
}

// FormatRatio renders a 6-decimal value as a human fraction.
func FormatRatio(value *uint256.Int) string {
	return format(value, RatioDecimals)
}

// FormatAmount renders an 18-decimal value as a human amount.
func FormatAmount(value *uint256.Int) string {
	return format(value, AmountDecimals)
}

func format(value *uint256.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value.ToBig(), -decimals).String()
}

// Float approximates an 18-decimal value as float64 for metrics.
func Float(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(value.ToBig(), -AmountDecimals).Float64()
	return f
}

// RatioFloat approximates a 6-decimal value as float64 for metrics.
func RatioFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(value.ToBig(), -RatioDecimals).Float64()
	return f
}
