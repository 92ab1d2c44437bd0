package store

import (
	"context"
	"errors"

	"budgetcards/internal/core"
)

var ErrNotFound = errors.New("row not found")

// Ports for outbound adapters.
type (
	RowReader interface {
		// ListRows returns every stored row ordered by creation time.
		ListRows(ctx context.Context) ([]core.Row, error)
		GetRow(ctx context.Context, id string) (core.Row, error)
	}

	RowWriter interface {
		InsertRows(ctx context.Context, rows []core.Row) ([]core.Row, error)
		// UpsertRows inserts rows without an id and updates the others by id.
		// The returned rows carry the stored ids in input order.
		UpsertRows(ctx context.Context, rows []core.Row) ([]core.Row, error)
	}

	RowDeleter interface {
		DeleteRow(ctx context.Context, id string) error
		DeleteMonth(ctx context.Context, year, month int) error
	}

	Store interface {
		RowReader
		RowWriter
		RowDeleter
	}
)
