package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetcards/internal/core"
	"budgetcards/internal/store/memory"

	"github.com/shopspring/decimal"
)

// recordingWriter wraps the memory store and counts upserts.
type recordingWriter struct {
	*memory.Store
	mu      sync.Mutex
	upserts int
	failFor map[string]bool // item text -> fail
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{Store: memory.New(), failFor: map[string]bool{}}
}

func (w *recordingWriter) UpsertRows(ctx context.Context, rows []core.Row) ([]core.Row, error) {
	w.mu.Lock()
	w.upserts++
	fail := len(rows) == 1 && w.failFor[rows[0].Text]
	w.mu.Unlock()
	if fail {
		return nil, errors.New("write refused")
	}
	return w.Store.UpsertRows(ctx, rows)
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.upserts
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPublisher) PublishClassify(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return nil
}

func testMonth(texts ...string) core.Month {
	items := make([]core.BudgetItem, len(texts))
	for i, t := range texts {
		items[i] = core.BudgetItem{Key: "key-" + t, Text: t, Amount: decimal.NewFromInt(int64(i + 1)), Status: core.StatusPending, Position: i}
	}
	m := core.FormatMonth(nil, core.FixedCategories, 2025, 5)
	m.Cards[0].Items = items
	return m
}

func newTestSynchronizer(w *recordingWriter, pub ClassifyPublisher) (*Synchronizer, *fakeClock) {
	clock := &fakeClock{}
	s := NewSynchronizer(w, pub, SyncConfig{}, nil)
	s.deb.afterFunc = clock.AfterFunc
	return s, clock
}

func TestSynchronizerDebouncesToLastSnapshot(t *testing.T) {
	w := newRecordingWriter()
	s, clock := newTestSynchronizer(w, nil)

	s.Schedule(testMonth("a"))
	s.Schedule(testMonth("a", "b"))
	s.Schedule(testMonth("a", "b", "c"))
	if !s.Pending(2025, 5) {
		t.Fatalf("snapshot should be pending")
	}
	clock.FireAll()

	if w.count() != 3 {
		t.Fatalf("expected one upsert per item of the last snapshot, got %d", w.count())
	}
	rows, _ := w.ListRows(context.Background())
	if len(rows) != 3 {
		t.Fatalf("expected 3 stored rows, got %d", len(rows))
	}
}

func TestSynchronizerWritesBackIDs(t *testing.T) {
	w := newRecordingWriter()
	pub := &recordingPublisher{}
	s, _ := newTestSynchronizer(w, pub)

	var got map[string]string
	s.OnSaved(func(year, month int, ids map[string]string) {
		if year != 2025 || month != 5 {
			t.Errorf("unexpected month %d-%d", year, month)
		}
		got = ids
	})

	m := testMonth("a", "b")
	s.Flush(context.Background(), m)
	if len(got) != 2 || got["key-a"] == "" || got["key-b"] == "" {
		t.Fatalf("expected ids for both keys, got %v", got)
	}
	if len(pub.ids) != 2 {
		t.Fatalf("new unclassified rows should be queued, got %v", pub.ids)
	}

	// Same snapshot without ids: known ids are reused, nothing is duplicated.
	got = nil
	s.Flush(context.Background(), m)
	rows, _ := w.ListRows(context.Background())
	if len(rows) != 2 {
		t.Fatalf("second flush duplicated rows: %d", len(rows))
	}
	if got != nil {
		t.Fatalf("no new ids expected, got %v", got)
	}
	if len(pub.ids) != 2 {
		t.Fatalf("existing rows should not be queued again")
	}
}

func TestSynchronizerFailuresAreIsolated(t *testing.T) {
	w := newRecordingWriter()
	w.failFor["b"] = true
	s, _ := newTestSynchronizer(w, nil)

	s.Flush(context.Background(), testMonth("a", "b", "c"))
	rows, _ := w.ListRows(context.Background())
	if len(rows) != 2 {
		t.Fatalf("expected the two healthy rows, got %d", len(rows))
	}
	if w.count() != 3 {
		t.Fatalf("failed row must not be retried, got %d upserts", w.count())
	}
}

func TestSynchronizerDropItem(t *testing.T) {
	w := newRecordingWriter()
	s, clock := newTestSynchronizer(w, nil)

	m := testMonth("a", "b")
	s.Flush(context.Background(), m)
	rows, _ := w.ListRows(context.Background())
	var idB string
	for _, r := range rows {
		if r.Text == "b" {
			idB = r.ID
		}
	}
	if err := w.DeleteRow(context.Background(), idB); err != nil {
		t.Fatalf("delete: %v", err)
	}

	s.Schedule(m)
	s.DropItem(2025, 5, "key-b", idB)
	clock.FireAll()
	s.Flush(context.Background(), m) // stale snapshot still listing b

	rows, _ = w.ListRows(context.Background())
	if len(rows) != 1 || rows[0].Text != "a" {
		t.Fatalf("deleted item was written back: %+v", rows)
	}
}

func TestSynchronizerCloseFlushesPending(t *testing.T) {
	w := newRecordingWriter()
	s, _ := newTestSynchronizer(w, nil)
	s.Schedule(testMonth("a"))
	s.Close()
	if w.count() != 1 {
		t.Fatalf("close should flush the pending snapshot, got %d upserts", w.count())
	}
	s.Schedule(testMonth("b"))
	if s.Pending(2025, 5) {
		t.Fatalf("schedule after close should be dropped")
	}
}

func TestSynchronizerMinInterval(t *testing.T) {
	w := newRecordingWriter()
	s := NewSynchronizer(w, nil, SyncConfig{MinInterval: time.Second}, nil)
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	s.Flush(context.Background(), testMonth("a"))
	now = now.Add(300 * time.Millisecond)
	s.Flush(context.Background(), testMonth("a"))
	if len(slept) != 1 || slept[0] != 700*time.Millisecond {
		t.Fatalf("expected a single 700ms wait, got %v", slept)
	}

	s.sleep = func(context.Context, time.Duration) error { return context.Canceled }
	before := w.count()
	s.Flush(context.Background(), testMonth("a"))
	if w.count() != before {
		t.Fatalf("cancelled wait should abandon the flush")
	}
}

func TestSynchronizerKeepsStoredLabel(t *testing.T) {
	ctx := context.Background()
	w := newRecordingWriter()
	s, _ := newTestSynchronizer(w, nil)

	m := testMonth("sushi")
	s.Flush(ctx, m)

	// the backfill worker labels the row behind the board's back
	rows, _ := w.ListRows(ctx)
	label := "dining"
	rows[0].IconCategory = &label
	if _, err := w.Store.UpsertRows(ctx, rows); err != nil {
		t.Fatalf("label row: %v", err)
	}

	var adopted map[string]string
	s.OnLabeled(func(_, _ int, labels map[string]string) { adopted = labels })
	s.Flush(ctx, m)

	rows, _ = w.ListRows(ctx)
	if len(rows) != 1 || rows[0].Icon() != "dining" {
		t.Fatalf("stored label was overwritten: %+v", rows)
	}
	if adopted["key-sushi"] != "dining" {
		t.Fatalf("label not reported back, got %v", adopted)
	}
}

func TestSynchronizerSkipsRowsBeingClassified(t *testing.T) {
	w := newRecordingWriter()
	pub := &recordingPublisher{}
	s, _ := newTestSynchronizer(w, pub)

	s.Classifying("key-a")
	s.Flush(context.Background(), testMonth("a", "b"))
	if len(pub.ids) != 1 {
		t.Fatalf("only the row nobody is labeling should be queued, got %v", pub.ids)
	}

	s.Classified("key-a")
	s.Flush(context.Background(), testMonth("a", "b", "c"))
	if len(pub.ids) != 2 {
		t.Fatalf("expected the new row queued, got %v", pub.ids)
	}
}
