package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetcards/internal/core"
	"budgetcards/internal/store"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func toRow(b Budget) core.Row {
	row := core.Row{
		ID:        b.ID,
		Year:      int(b.Year),
		Month:     int(b.Month),
		Title:     b.Title,
		Text:      b.Text,
		Amount:    b.Amount,
		Status:    core.Status(b.Status),
		Position:  int(b.Position),
		CreatedAt: time.Unix(0, b.CreatedAt).UTC(),
	}
	if b.IconCategory.Valid && b.IconCategory.String != "" {
		icon := b.IconCategory.String
		row.IconCategory = &icon
	}
	return row
}

func fromRow(r core.Row) Budget {
	b := Budget{
		ID:       r.ID,
		Year:     int64(r.Year),
		Month:    int64(r.Month),
		Title:    r.Title,
		Text:     r.Text,
		Amount:   core.NonNegative(r.Amount),
		Status:   string(r.Status),
		Position: int64(r.Position),
	}
	if icon := r.Icon(); icon != "" {
		b.IconCategory = sql.NullString{String: icon, Valid: true}
	}
	if !r.CreatedAt.IsZero() {
		b.CreatedAt = r.CreatedAt.UnixNano()
	}
	return b
}

func toRows(bs []Budget) []core.Row {
	out := make([]core.Row, len(bs))
	for i, b := range bs {
		out[i] = toRow(b)
	}
	return out
}

// ListRows implements store.RowReader
func (r *SQLiteRepository) ListRows(ctx context.Context) ([]core.Row, error) {
	bs, err := r.queries.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return toRows(bs), nil
}

// GetRow implements store.RowReader
func (r *SQLiteRepository) GetRow(ctx context.Context, id string) (core.Row, error) {
	b, err := r.queries.GetBudget(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Row{}, store.ErrNotFound
	}
	if err != nil {
		return core.Row{}, fmt.Errorf("get budget %s: %w", id, err)
	}
	return toRow(b), nil
}

// ListUnclassified returns up to limit rows that have no icon category yet,
// oldest first.
func (r *SQLiteRepository) ListUnclassified(ctx context.Context, limit int) ([]core.Row, error) {
	bs, err := r.queries.ListUnclassified(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list unclassified: %w", err)
	}
	return toRows(bs), nil
}

func (r *SQLiteRepository) prepare(row core.Row) (Budget, error) {
	if err := row.Validate(); err != nil {
		return Budget{}, err
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	b := fromRow(row)
	if b.CreatedAt == 0 {
		b.CreatedAt = r.now().UnixNano()
	}
	return b, nil
}

// InsertRows implements store.RowWriter. All rows are written in one
// transaction.
func (r *SQLiteRepository) InsertRows(ctx context.Context, rows []core.Row) ([]core.Row, error) {
	return r.inTx(ctx, rows, func(q *Queries, b Budget) (Budget, error) {
		return b, q.InsertBudget(ctx, b)
	})
}

// UpsertRows implements store.RowWriter.
func (r *SQLiteRepository) UpsertRows(ctx context.Context, rows []core.Row) ([]core.Row, error) {
	return r.inTx(ctx, rows, func(q *Queries, b Budget) (Budget, error) {
		created, err := q.UpsertBudget(ctx, b)
		b.CreatedAt = created
		return b, err
	})
}

func (r *SQLiteRepository) inTx(ctx context.Context, rows []core.Row, write func(*Queries, Budget) (Budget, error)) ([]core.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	prepared := make([]Budget, 0, len(rows))
	for _, row := range rows {
		b, err := r.prepare(row)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, b)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	out := make([]core.Row, 0, len(prepared))
	for _, b := range prepared {
		stored, err := write(q, b)
		if err != nil {
			return nil, fmt.Errorf("write budget %s: %w", b.ID, err)
		}
		out = append(out, toRow(stored))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Budget rows saved to SQLite", "count", len(out))
	return out, nil
}

// DeleteRow implements store.RowDeleter
func (r *SQLiteRepository) DeleteRow(ctx context.Context, id string) error {
	if err := r.queries.DeleteBudget(ctx, id); err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Budget row deleted from SQLite", "id", id)
	return nil
}

// DeleteMonth implements store.RowDeleter
func (r *SQLiteRepository) DeleteMonth(ctx context.Context, year, month int) error {
	n, err := r.queries.DeleteMonth(ctx, int64(year), int64(month))
	if err != nil {
		return fmt.Errorf("delete month %d-%02d: %w", year, month, err)
	}
	slog.InfoContext(ctx, "Budget month deleted from SQLite",
		"year", year,
		"month", month,
		"rows", n)
	return nil
}

// Count returns the number of stored rows.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	return r.queries.CountBudgets(ctx)
}
