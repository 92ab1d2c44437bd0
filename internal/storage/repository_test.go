package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"budgetcards/internal/core"
	"budgetcards/internal/store"

	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "budget.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }
	return repo
}

func budgetRow(title, text, amount string) core.Row {
	return core.Row{Year: 2025, Month: 2, Title: title, Text: text, Amount: decimal.RequireFromString(amount), Status: core.StatusPending}
}

func TestUpsertAssignsIDAndKeepsCreatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	out, err := repo.UpsertRows(ctx, []core.Row{budgetRow("gifts", "flowers", "12.50")})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(out) != 1 || out[0].ID == "" {
		t.Fatalf("expected generated id, got %+v", out)
	}
	created := out[0].CreatedAt

	upd := out[0]
	upd.Text = "roses"
	upd.Status = core.StatusDone
	icon := "gifts"
	upd.IconCategory = &icon
	upd.CreatedAt = time.Time{}
	out2, err := repo.UpsertRows(ctx, []core.Row{upd})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if !out2[0].CreatedAt.Equal(created) {
		t.Fatalf("created_at changed on update: %v -> %v", created, out2[0].CreatedAt)
	}

	got, err := repo.GetRow(ctx, upd.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "roses" || got.Status != core.StatusDone || got.Icon() != "gifts" {
		t.Fatalf("update not stored: %+v", got)
	}
	if !got.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("amount round trip failed: %s", got.Amount)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestListRowsOrderedByCreation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		if _, err := repo.InsertRows(ctx, []core.Row{budgetRow("leisure", text, "1")}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	rows, err := repo.ListRows(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 || rows[0].Text != "a" || rows[2].Text != "c" {
		t.Fatalf("unexpected order %+v", rows)
	}
}

func TestInvalidRowRejected(t *testing.T) {
	repo := newTestRepo(t)
	bad := budgetRow("gifts", "x", "1")
	bad.Month = 13
	if _, err := repo.UpsertRows(context.Background(), []core.Row{bad}); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestDeleteAndUnclassified(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	icon := "dining"
	classified := budgetRow("leisure", "pizza", "9")
	classified.IconCategory = &icon
	other := budgetRow("essentials", "rent", "700")
	other.Month = 3

	out, err := repo.InsertRows(ctx, []core.Row{budgetRow("gifts", "card", "3"), classified, other})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	pending, err := repo.ListUnclassified(ctx, 10)
	if err != nil {
		t.Fatalf("unclassified: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 unclassified rows, got %d", len(pending))
	}

	if err := repo.DeleteRow(ctx, out[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetRow(ctx, out[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.DeleteMonth(ctx, 2025, 2); err != nil {
		t.Fatalf("delete month: %v", err)
	}
	rows, _ := repo.ListRows(ctx)
	if len(rows) != 1 || rows[0].Month != 3 {
		t.Fatalf("expected only the March row, got %+v", rows)
	}
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	v, dirty, err := MigrationVersion(path)
	if err != nil || dirty || v != 1 {
		t.Fatalf("expected clean version 1, got v=%d dirty=%v err=%v", v, dirty, err)
	}
}
