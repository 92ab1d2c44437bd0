// Package core provides the budget domain model and its pure helpers.
//
// This file contains amount handling: sanitising what the user types and
// coercing stored values into non-negative decimals.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts travel as JSON numbers, the shape the budgets table and its
// clients use.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// SanitizeAmount strips everything except digits and the first decimal
// separator, the way the amount field filters keystrokes.
//
// Examples:
//
//	SanitizeAmount("1..2a3") -> "1.23"
//	SanitizeAmount("12,50")  -> "12.50"
//	SanitizeAmount("-4")     -> "4"
func SanitizeAmount(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	seenDot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == ',':
			if !seenDot {
				seenDot = true
				b.WriteByte('.')
			}
		}
	}
	return b.String()
}

// ParseAmount sanitises s and converts it to a decimal. Empty or
// unparsable input yields zero rather than an error.
func ParseAmount(s string) decimal.Decimal {
	clean := SanitizeAmount(s)
	if clean == "" || clean == "." {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero
	}
	return NonNegative(d)
}

// NonNegative clamps negative amounts to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
