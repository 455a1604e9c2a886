package finance

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a stored or user-supplied amount to a decimal.
// Empty, null or non-numeric input yields zero; it never fails.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Float converts a decimal to float64 for API responses.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
