package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountDecimals is the number of implied decimals in every monetary int64.
const AmountDecimals = 7

// ParseAmount converts a decimal string such as "15.25" into its fixed-point
// int64 representation (152500000). More than AmountDecimals fractional digits
// or a value outside the int64 range is rejected.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a decimal number", s)
	}

	scaled := d.Shift(AmountDecimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, AmountDecimals)
	}

	n := scaled.BigInt()
	if !n.IsInt64() {
		return 0, fmt.Errorf("amount %q is out of range", s)
	}
	return n.Int64(), nil
}

// FormatAmount renders a fixed-point int64 with exactly AmountDecimals digits.
func FormatAmount(v int64) string {
	return decimal.New(v, -AmountDecimals).StringFixed(AmountDecimals)
}
