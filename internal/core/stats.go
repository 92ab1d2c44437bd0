package core

import "github.com/shopspring/decimal"

// Stats is the aggregate of one month.
type Stats struct {
	Total     decimal.Decimal `json:"total"`
	TotalDone decimal.Decimal `json:"totalDone"`
}

// CalcStats sums every item of the month into Total and the done ones into
// TotalDone. Negative amounts count as zero, so Total >= TotalDone.
func CalcStats(m Month) Stats {
	st := Stats{Total: decimal.Zero, TotalDone: decimal.Zero}
	for _, c := range m.Cards {
		for _, it := range c.Items {
			amt := NonNegative(it.Amount)
			st.Total = st.Total.Add(amt)
			if it.Status == StatusDone {
				st.TotalDone = st.TotalDone.Add(amt)
			}
		}
	}
	return st
}

// CardTotal sums the amounts of a single card.
func CardTotal(items []BudgetItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(NonNegative(it.Amount))
	}
	return total
}

// Percent returns part/whole as a rounded percentage, 0 when whole is zero.
func Percent(part, whole decimal.Decimal) int {
	if whole.IsZero() {
		return 0
	}
	return int(part.Mul(decimal.NewFromInt(100)).Div(whole).Round(0).IntPart())
}
