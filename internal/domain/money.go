package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatCents renders an amount in cents with exactly two decimals, e.g. 1299 -> "12.99".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParsePrice converts a decimal amount such as "2.49" to cents. The amount
// must be non-negative and carry at most two fractional digits.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("price %q is not a number", s)
	}
	return PriceFromDecimal(d)
}

// PriceFromDecimal converts an already parsed amount to cents with the same rules as ParsePrice.
func PriceFromDecimal(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("price %s must not be negative", d.String())
	}
	if !d.Equal(d.Truncate(2)) {
		return 0, fmt.Errorf("price %s has more than two decimal places", d.String())
	}
	cents := d.Shift(2)
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(MaxPriceCents)) {
		return 0, fmt.Errorf("price %s exceeds the maximum of %s", d.String(), FormatCents(MaxPriceCents))
	}
	return cents.IntPart(), nil
}
