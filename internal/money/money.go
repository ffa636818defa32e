// Package money holds the decimal arithmetic used for cart totals and gateway
// amount conversion.
package money

import (
	"github.com/shopspring/decimal"
)

// Line is a priced quantity.
type Line struct {
	Price    decimal.Decimal
	Quantity int
}

// Subtotal returns Σ(price × quantity).
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Total returns the subtotal of lines plus the shipping surcharge.
func Total(lines []Line, shipping decimal.Decimal) decimal.Decimal {
	return Subtotal(lines).Add(shipping)
}

// MinorUnits converts amount into the smallest currency unit for the given
// number of decimal places, rounding half away from zero.
func MinorUnits(amount decimal.Decimal, places int32) int64 {
	return amount.Shift(places).Round(0).IntPart()
}

// Convert applies rate to amount and rounds to two decimal places.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}

// Format renders amount with exactly two decimals, e.g. "25.00".
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
