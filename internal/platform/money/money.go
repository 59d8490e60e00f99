// Package money holds peso amounts as exact decimals and renders them for
// receipts and catalog messages.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Symbol is the currency symbol prefixed to rendered amounts.
const Symbol = "₱"

// Tolerance is the smallest price difference treated as a mismatch.
var Tolerance = decimal.New(1, -2)

// Parse reads a decimal amount, rejecting negatives.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q must not be negative", raw)
	}
	return value, nil
}

// Same reports whether two amounts differ by less than Tolerance.
func Same(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Tolerance)
}

// Format renders an amount with the peso symbol, grouping and two fraction
// digits for the given locale, e.g. "₱1,299.00".
func Format(locale string, amount decimal.Decimal) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.AmericanEnglish
	}
	value, _ := amount.Round(2).Float64()
	printer := message.NewPrinter(tag)
	return Symbol + printer.Sprint(number.Decimal(value, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
