package core

import "sort"

// FormatMonth builds the view of (year, month) from the stored rows.
//
// Every title in fixed is emitted in order, empty when no row matches. Rows
// whose title is not in fixed are kept as extra cards after the fixed ones,
// in the order their title was first seen. Items keep the arrival order of
// rows; sorting by position is left to the display layer.
func FormatMonth(rows []Row, fixed []string, year, month int) Month {
	groups := make(map[string][]BudgetItem)
	var extra []string
	isFixed := make(map[string]bool, len(fixed))
	for _, t := range fixed {
		isFixed[t] = true
	}

	for _, r := range rows {
		if r.Year != year || r.Month != month {
			continue
		}
		if _, seen := groups[r.Title]; !seen && !isFixed[r.Title] {
			extra = append(extra, r.Title)
		}
		groups[r.Title] = append(groups[r.Title], ItemFromRow(r))
	}

	out := Month{Year: year, Month: month, Cards: make([]Card, 0, len(fixed)+len(extra))}
	for _, t := range fixed {
		items := groups[t]
		if items == nil {
			items = []BudgetItem{}
		}
		out.Cards = append(out.Cards, Card{Title: t, Items: items})
	}
	for _, t := range extra {
		out.Cards = append(out.Cards, Card{Title: t, Items: groups[t]})
	}
	return out
}

// SortByPosition returns a copy of items stable-sorted by Position, so equal
// positions keep their original relative order.
func SortByPosition(items []BudgetItem) []BudgetItem {
	out := append([]BudgetItem(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// SortedView returns a copy of m with every card sorted by position.
func SortedView(m Month) Month {
	out := m.Clone()
	for i := range out.Cards {
		out.Cards[i].Items = SortByPosition(out.Cards[i].Items)
	}
	return out
}

// LatestMonth returns the greatest (year, month) present in rows.
func LatestMonth(rows []Row) (year, month int, ok bool) {
	for _, r := range rows {
		if !ValidMonth(r.Month) {
			continue
		}
		if !ok || r.Year > year || (r.Year == year && r.Month > month) {
			year, month, ok = r.Year, r.Month, true
		}
	}
	return year, month, ok
}
