package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional decimal digits in a fixed-point price.
const PriceScale = 9

// PriceToDecimal converts a fixed-point price to a decimal.
func PriceToDecimal(px int64) decimal.Decimal {
	return decimal.New(px, -PriceScale)
}

// ParsePrice parses a decimal string (e.g., "101.25") into fixed point.
// Values with more than PriceScale fractional digits are rejected rather
// than rounded.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	scaled := d.Shift(PriceScale)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("parse price %q: more than %d fractional digits", s, PriceScale)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("parse price %q: out of range", s)
	}
	return scaled.IntPart(), nil
}

// Int64 returns a pointer to v, for optional book fields.
func Int64(v int64) *int64 { return &v }

// Uint32 returns a pointer to v, for optional book fields.
func Uint32(v uint32) *uint32 { return &v }
