package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

// FixedCategories is the closed, ordered set of cards every month exposes.
var FixedCategories = []string{
	"essentials",
	"leisure",
	"education",
	"large-purchases",
	"gifts",
}

type (
	Status string

	// BudgetItem is one spending entry inside a card.
	BudgetItem struct {
		ID           string          `json:"id,omitempty"` // empty until persisted
		Key          string          `json:"key"`          // client-local identity, stable for the item's lifetime
		Text         string          `json:"text"`
		Amount       decimal.Decimal `json:"amount"`
		Status       Status          `json:"status"`
		Position     int             `json:"position"`
		IconCategory string          `json:"iconCategory,omitempty"`
	}

	Card struct {
		Title string       `json:"title"`
		Items []BudgetItem `json:"items"`
	}

	Month struct {
		Year  int    `json:"year"`
		Month int    `json:"month"` // 1-12
		Cards []Card `json:"cards"`
	}

	// Row is the persisted shape, one per budget item.
	Row struct {
		ID           string          `json:"id,omitempty"`
		Year         int             `json:"year"`
		Month        int             `json:"month"`
		Title        string          `json:"title"`
		Text         string          `json:"text"`
		Amount       decimal.Decimal `json:"amount"`
		Status       Status          `json:"status"`
		Position     int             `json:"position"`
		IconCategory *string         `json:"iconCategory"`
		CreatedAt    time.Time       `json:"created_at,omitzero"`
	}
)

var (
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrEmptyTitle       = errors.New("empty title")
	ErrNegativePosition = errors.New("negative position")
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusDone
}

// Toggle flips pending and done. Unknown values become done.
func (s Status) Toggle() Status {
	if s == StatusDone {
		return StatusPending
	}
	return StatusDone
}

// IsFixedCategory reports whether title belongs to FixedCategories.
func IsFixedCategory(title string) bool {
	for _, c := range FixedCategories {
		if c == title {
			return true
		}
	}
	return false
}

// ValidMonth reports whether month is in 1..12.
func ValidMonth(month int) bool {
	return month >= 1 && month <= 12
}

// NextMonth returns the calendar month after (year, month).
func NextMonth(year, month int) (int, int) {
	if month >= 12 {
		return year + 1, 1
	}
	return year, month + 1
}

// Card returns the card with the given title, or nil.
func (m *Month) Card(title string) *Card {
	for i := range m.Cards {
		if m.Cards[i].Title == title {
			return &m.Cards[i]
		}
	}
	return nil
}

// Items returns every item of the month in card order.
func (m Month) Items() []BudgetItem {
	var out []BudgetItem
	for _, c := range m.Cards {
		out = append(out, c.Items...)
	}
	return out
}

// Clone deep-copies the card slices so the snapshot can cross goroutines.
func (m Month) Clone() Month {
	out := Month{Year: m.Year, Month: m.Month, Cards: make([]Card, len(m.Cards))}
	for i, c := range m.Cards {
		out.Cards[i] = Card{Title: c.Title, Items: append([]BudgetItem(nil), c.Items...)}
	}
	return out
}

// Validate checks a row at the store boundary.
func (r Row) Validate() error {
	if !ValidMonth(r.Month) {
		return ErrInvalidMonth
	}
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyTitle
	}
	if !r.Status.Valid() {
		return ErrInvalidStatus
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if r.Position < 0 {
		return ErrNegativePosition
	}
	return nil
}

// Icon returns the row's icon category or "".
func (r Row) Icon() string {
	if r.IconCategory == nil {
		return ""
	}
	return *r.IconCategory
}

// ItemFromRow converts a stored row into a view item. Persisted items use
// their ID as key.
func ItemFromRow(r Row) BudgetItem {
	status := r.Status
	if !status.Valid() {
		status = StatusPending
	}
	pos := r.Position
	if pos < 0 {
		pos = 0
	}
	return BudgetItem{
		ID:           r.ID,
		Key:          r.ID,
		Text:         r.Text,
		Amount:       r.Amount,
		Status:       status,
		Position:     pos,
		IconCategory: r.Icon(),
	}
}

// RowFromItem builds the persisted row for an item of card title in (year, month).
func RowFromItem(year, month int, title string, it BudgetItem) Row {
	var icon *string
	if it.IconCategory != "" {
		label := it.IconCategory
		icon = &label
	}
	status := it.Status
	if !status.Valid() {
		status = StatusPending
	}
	return Row{
		ID:           it.ID,
		Year:         year,
		Month:        month,
		Title:        title,
		Text:         it.Text,
		Amount:       NonNegative(it.Amount),
		Status:       status,
		Position:     it.Position,
		IconCategory: icon,
	}
}
