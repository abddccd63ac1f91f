package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance is the smallest monetary difference the ledger distinguishes.
var Tolerance = decimal.New(1, -2)

// Round2 rounds an amount to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Negligible reports whether |d| < 0.01.
func Negligible(d decimal.Decimal) bool {
	return d.Abs().LessThan(Tolerance)
}

// ParseAmount parses a decimal string; the empty string is zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("accounting: parse amount %q: %w", raw, err)
	}
	return d, nil
}

// FormatAmount renders an amount with exactly two decimals, the storage format of balances.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
