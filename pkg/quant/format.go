package quant

import "github.com/shopspring/decimal"

// DefaultMaxDigits is the number of fractional digits reported for rates and amounts.
const DefaultMaxDigits = 8

// DivisionPrecision is the scale used for intermediate divisions. It must stay
// well above any configured output precision so truncation sees exact digits.
const DivisionPrecision = 32

// FormatDecimal truncates value toward zero to maxDigits fractional digits and
// renders it in plain (non-exponent) form, always with exactly maxDigits digits.
func FormatDecimal(value decimal.Decimal, maxDigits int32) string {
	if maxDigits < 0 {
		maxDigits = 0
	}
	return value.Truncate(maxDigits).StringFixed(maxDigits)
}

// Div returns a/b truncated toward zero at DivisionPrecision. b must be non-zero.
// Rounding here could carry into the digits FormatDecimal keeps.
func Div(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, DivisionPrecision)
	return q
}

// Inverse returns 1/value truncated at DivisionPrecision. value must be non-zero.
func Inverse(value decimal.Decimal) decimal.Decimal {
	return Div(decimal.NewFromInt(1), value)
}
