package evm

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// ParseUnits converts a human-readable decimal amount into base units for a
// token with the given number of decimal places. Fractional digits beyond the
// token's precision are rejected rather than silently truncated.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", amount)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders a base-unit amount as a decimal string.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// ParseEther converts a decimal ETH amount to wei.
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, etherDecimals)
}

// FormatEther renders a wei amount as a decimal ETH string.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, etherDecimals)
}

// ParseWei parses a base-unit integer string such as a gas price override.
func ParseWei(v string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("parse wei value %q", v)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("wei value %q must not be negative", v)
	}
	return parsed, nil
}
