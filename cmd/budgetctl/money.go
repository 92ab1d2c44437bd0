package main

import (
	"budgetcards/internal/core"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// toMoney converts a stored amount into minor units of currency. Amounts
// are clamped at zero like the month totals.
func toMoney(d decimal.Decimal, currency string) *money.Money {
	cur := money.GetCurrency(currency)
	fraction := int32(2)
	if cur != nil {
		fraction = int32(cur.Fraction)
	}
	minor := core.NonNegative(d).Shift(fraction).Round(0).IntPart()
	return money.New(minor, currency)
}
