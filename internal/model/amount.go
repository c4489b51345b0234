package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatAmount renders a raw token amount with its decimals applied.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// ParseAmount converts a human amount ("1.5") into raw units.
func ParseAmount(value string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}
