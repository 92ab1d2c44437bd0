package storage

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Budget mirrors one row of the budgets table.
type Budget struct {
	ID           string
	Year         int64
	Month        int64
	Title        string
	Text         string
	Amount       decimal.Decimal
	Status       string
	Position     int64
	IconCategory sql.NullString
	CreatedAt    int64
}

const budgetColumns = `id, year, month, title, text, amount, status, position, icon_category, created_at`

func scanBudget(sc interface{ Scan(...any) error }) (Budget, error) {
	var b Budget
	err := sc.Scan(&b.ID, &b.Year, &b.Month, &b.Title, &b.Text, &b.Amount,
		&b.Status, &b.Position, &b.IconCategory, &b.CreatedAt)
	return b, err
}

func collect(rows *sql.Rows) ([]Budget, error) {
	defer rows.Close()
	var items []Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listBudgets = `SELECT ` + budgetColumns + ` FROM budgets ORDER BY created_at, rowid`

func (q *Queries) ListBudgets(ctx context.Context) ([]Budget, error) {
	rows, err := q.db.QueryContext(ctx, listBudgets)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

const getBudget = `SELECT ` + budgetColumns + ` FROM budgets WHERE id = ?`

func (q *Queries) GetBudget(ctx context.Context, id string) (Budget, error) {
	return scanBudget(q.db.QueryRowContext(ctx, getBudget, id))
}

const listUnclassified = `SELECT ` + budgetColumns + ` FROM budgets
WHERE icon_category IS NULL OR icon_category = ''
ORDER BY created_at, rowid
LIMIT ?`

func (q *Queries) ListUnclassified(ctx context.Context, limit int64) ([]Budget, error) {
	rows, err := q.db.QueryContext(ctx, listUnclassified, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

const insertBudget = `INSERT INTO budgets (` + budgetColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertBudget(ctx context.Context, b Budget) error {
	_, err := q.db.ExecContext(ctx, insertBudget, b.ID, b.Year, b.Month, b.Title, b.Text,
		b.Amount, b.Status, b.Position, b.IconCategory, b.CreatedAt)
	return err
}

// created_at is kept from the first insert.
const upsertBudget = `INSERT INTO budgets (` + budgetColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    year = excluded.year,
    month = excluded.month,
    title = excluded.title,
    text = excluded.text,
    amount = excluded.amount,
    status = excluded.status,
    position = excluded.position,
    icon_category = excluded.icon_category
RETURNING created_at`

func (q *Queries) UpsertBudget(ctx context.Context, b Budget) (int64, error) {
	var created int64
	err := q.db.QueryRowContext(ctx, upsertBudget, b.ID, b.Year, b.Month, b.Title, b.Text,
		b.Amount, b.Status, b.Position, b.IconCategory, b.CreatedAt).Scan(&created)
	return created, err
}

const deleteBudget = `DELETE FROM budgets WHERE id = ?`

func (q *Queries) DeleteBudget(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteBudget, id)
	return err
}

const deleteMonth = `DELETE FROM budgets WHERE year = ? AND month = ?`

func (q *Queries) DeleteMonth(ctx context.Context, year, month int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteMonth, year, month)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countBudgets = `SELECT COUNT(*) FROM budgets`

func (q *Queries) CountBudgets(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countBudgets).Scan(&n)
	return n, err
}
