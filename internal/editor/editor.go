// Package editor holds the per-card item editing state.
//
// Every operation returns a Change describing the resulting item list and
// whether it should be persisted. A remote-confirmed delete is the only
// change that is not persisted, since the row is already gone.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"budgetcards/internal/core"

	"github.com/google/uuid"
)

// Editable field names accepted by UpdateField.
const (
	FieldText         = "text"
	FieldAmount       = "amount"
	FieldStatus       = "status"
	FieldIconCategory = "iconCategory"
)

var (
	ErrEmptyID      = errors.New("item has no persisted id")
	ErrUnknownField = errors.New("unknown field")
)

// Deleter removes a persisted row by id.
type Deleter interface {
	DeleteRow(ctx context.Context, id string) error
}

// Change is the outcome of an editor operation.
type Change struct {
	Items   []core.BudgetItem
	Persist bool
	Changed bool
}

// CardEditor owns the ordered items of one card.
type CardEditor struct {
	mu    sync.Mutex
	title string
	items []core.BudgetItem
	del   Deleter
	newID func() string
}

// New returns an editor seeded with items, sorted by position.
func New(title string, items []core.BudgetItem, del Deleter) *CardEditor {
	return &CardEditor{
		title: title,
		items: core.SortByPosition(items),
		del:   del,
		newID: uuid.NewString,
	}
}

func (e *CardEditor) Title() string { return e.title }

// Items returns a copy of the current items.
func (e *CardEditor) Items() []core.BudgetItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *CardEditor) snapshot() []core.BudgetItem {
	return append([]core.BudgetItem{}, e.items...)
}

func (e *CardEditor) unchanged() Change {
	return Change{Items: e.snapshot()}
}

func (e *CardEditor) changed(persist bool) Change {
	return Change{Items: e.snapshot(), Persist: persist, Changed: true}
}

// Add appends a pending item at the end of the card and returns it with the
// change. The item has a fresh key and no id.
func (e *CardEditor) Add(text, amount string) (core.BudgetItem, Change) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it := core.BudgetItem{
		Key:      e.newID(),
		Text:     text,
		Amount:   core.ParseAmount(amount),
		Status:   core.StatusPending,
		Position: len(e.items),
	}
	e.items = append(e.items, it)
	return it, e.changed(true)
}

// UpdateField sets one field of the item at index. Equal values and out of
// range indexes are no-ops.
func (e *CardEditor) UpdateField(index int, field, value string) (Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.items) {
		return e.unchanged(), nil
	}
	it := e.items[index]
	switch field {
	case FieldText:
		it.Text = value
	case FieldAmount:
		it.Amount = core.ParseAmount(value)
	case FieldStatus:
		s := core.Status(value)
		if !s.Valid() {
			return e.unchanged(), fmt.Errorf("%w: %q", core.ErrInvalidStatus, value)
		}
		it.Status = s
	case FieldIconCategory:
		it.IconCategory = value
	default:
		return e.unchanged(), fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if sameItem(it, e.items[index]) {
		return e.unchanged(), nil
	}
	e.items[index] = it
	return e.changed(true), nil
}

func sameItem(a, b core.BudgetItem) bool {
	return a.ID == b.ID && a.Key == b.Key && a.Text == b.Text &&
		a.Amount.Equal(b.Amount) && a.Status == b.Status &&
		a.Position == b.Position && a.IconCategory == b.IconCategory
}

// ToggleStatus flips the status of the item at index.
func (e *CardEditor) ToggleStatus(index int) Change {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.items) {
		return e.unchanged()
	}
	e.items[index].Status = e.items[index].Status.Toggle()
	return e.changed(true)
}

// Reorder moves the item at from to index to. Positions are rewritten to
// match the new order.
func (e *CardEditor) Reorder(from, to int) Change {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.items)
	if from == to || from < 0 || from >= n || to < 0 || to >= n {
		return e.unchanged()
	}
	moved := e.items[from]
	e.items = append(e.items[:from], e.items[from+1:]...)
	e.items = append(e.items[:to], append([]core.BudgetItem{moved}, e.items[to:]...)...)
	e.reindex()
	return e.changed(true)
}

func (e *CardEditor) reindex() {
	for i := range e.items {
		e.items[i].Position = i
	}
}

// Delete removes the persisted item id. The remote row is deleted first;
// when that fails the local state is left untouched.
func (e *CardEditor) Delete(ctx context.Context, id string) (Change, error) {
	if id == "" {
		return e.current(), ErrEmptyID
	}
	if e.del != nil {
		if err := e.del.DeleteRow(ctx, id); err != nil {
			return e.current(), fmt.Errorf("delete %s: %w", id, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.items[:0:0]
	for _, it := range e.items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(e.items) {
		return e.unchanged(), nil
	}
	e.items = kept
	e.reindex()
	return e.changed(false), nil
}

func (e *CardEditor) current() Change {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unchanged()
}

// PatchIcon sets the icon of the item with key. It is a no-op when the item
// is gone or already carries label.
func (e *CardEditor) PatchIcon(key, label string) Change {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.items {
		if e.items[i].Key != key {
			continue
		}
		if e.items[i].IconCategory == label {
			return e.unchanged()
		}
		e.items[i].IconCategory = label
		return e.changed(true)
	}
	return e.unchanged()
}

// FillIcon sets the icon of the item with key only while it has none. It
// adopts a label stored elsewhere, so the change is not persisted.
func (e *CardEditor) FillIcon(key, label string) Change {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.items {
		if e.items[i].Key == key && e.items[i].IconCategory == "" && label != "" {
			e.items[i].IconCategory = label
			return e.changed(false)
		}
	}
	return e.unchanged()
}

// AssignIDs writes persisted ids back onto items by key. Keys are kept so
// callers holding them keep working.
func (e *CardEditor) AssignIDs(ids map[string]string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := range e.items {
		if id, ok := ids[e.items[i].Key]; ok && id != "" && e.items[i].ID != id {
			e.items[i].ID = id
			n++
		}
	}
	return n
}
