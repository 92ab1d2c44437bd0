package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budgetcards/internal/core"
	applog "budgetcards/internal/log"
	"budgetcards/internal/store"

	"golang.org/x/sync/errgroup"
)

// SyncConfig tunes the Synchronizer.
type SyncConfig struct {
	// Debounce is the quiet window before a snapshot is written (default: 500ms)
	Debounce time.Duration

	// MinInterval is the minimum gap between two flushes (default: 0, no limit)
	MinInterval time.Duration

	// Concurrency caps parallel row upserts per flush (default: 4)
	Concurrency int

	// SaveTimeout bounds one background flush (default: 30s)
	SaveTimeout time.Duration
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Debounce:    500 * time.Millisecond,
		Concurrency: 4,
		SaveTimeout: 30 * time.Second,
	}
}

// ClassifyPublisher queues a persisted row for icon backfill.
type ClassifyPublisher interface {
	PublishClassify(ctx context.Context, id string) error
}

// SavedFunc receives the ids the store assigned, keyed by item key.
type SavedFunc func(year, month int, ids map[string]string)

// LabeledFunc receives icon labels found in the store for items the snapshot
// had no label for, keyed by item key.
type LabeledFunc func(year, month int, labels map[string]string)

// Synchronizer debounces month snapshots and upserts them row by row.
// Failed rows are logged and dropped; the next snapshot carries them again.
//
// An unlabeled item never clears a label already stored for its row, so a
// label written by the backfill worker survives later saves of the month.
type Synchronizer struct {
	writer    store.RowWriter
	reader    store.RowReader // nil when the writer cannot read back
	publisher ClassifyPublisher
	cfg       SyncConfig
	logger    *applog.Logger
	deb       *Debouncer[core.Month]

	mu          sync.Mutex
	known       map[string]string   // item key -> persisted id
	dropped     map[string]struct{} // keys and ids of items removed remotely
	classifying map[string]struct{} // keys still being labeled by the board
	onSaved     SavedFunc
	onLabeled   LabeledFunc

	flushMu   sync.Mutex
	lastFlush time.Time
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

func NewSynchronizer(writer store.RowWriter, publisher ClassifyPublisher, cfg SyncConfig, logger *applog.Logger) *Synchronizer {
	def := DefaultSyncConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = def.SaveTimeout
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentSync)
	}
	s := &Synchronizer{
		writer:    writer,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		known:       make(map[string]string),
		dropped:     make(map[string]struct{}),
		classifying: make(map[string]struct{}),
		now:         time.Now,
		sleep:       sleepCtx,
	}
	if r, ok := writer.(store.RowReader); ok {
		s.reader = r
	}
	s.deb = NewDebouncer(cfg.Debounce, s.flushDebounced)
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// OnSaved registers the id write-back callback.
func (s *Synchronizer) OnSaved(fn SavedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSaved = fn
}

// OnLabeled registers the callback for labels adopted from the store.
func (s *Synchronizer) OnLabeled(fn LabeledFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLabeled = fn
}

// Classifying marks key as being labeled by its owner. Its row is not queued
// for backfill until Classified is called.
func (s *Synchronizer) Classifying(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifying[key] = struct{}{}
}

func (s *Synchronizer) Classified(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.classifying, key)
}

// Schedule queues a snapshot of m, replacing any pending one for the same
// month.
func (s *Synchronizer) Schedule(m core.Month) {
	if !s.deb.Schedule(monthKey(m.Year, m.Month), m.Clone()) {
		s.logger.Warn("Save scheduled after close, dropping snapshot",
			applog.FieldYear, m.Year, applog.FieldMonth, m.Month)
	}
}

// Pending reports whether a snapshot of (year, month) is waiting.
func (s *Synchronizer) Pending(year, month int) bool {
	return s.deb.Pending(monthKey(year, month))
}

// DropItem forgets a remotely deleted item so neither the pending snapshot
// nor a later one writes it back.
func (s *Synchronizer) DropItem(year, month int, key, id string) {
	s.mu.Lock()
	if id != "" {
		s.dropped[id] = struct{}{}
	}
	if key != "" {
		s.dropped[key] = struct{}{}
	}
	delete(s.known, key)
	s.mu.Unlock()

	s.deb.Update(monthKey(year, month), func(m *core.Month) {
		for ci := range m.Cards {
			items := m.Cards[ci].Items[:0]
			for _, it := range m.Cards[ci].Items {
				if (key != "" && it.Key == key) || (id != "" && it.ID == id) {
					continue
				}
				items = append(items, it)
			}
			m.Cards[ci].Items = items
		}
	})
}

// Exclusive runs fn while no flush is in progress. Remote deletes use it so
// an in-flight upsert cannot recreate the row they remove.
func (s *Synchronizer) Exclusive(fn func() error) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return fn()
}

// Close writes whatever is still pending and stops accepting snapshots.
func (s *Synchronizer) Close() {
	if n := s.deb.FlushAll(); n > 0 {
		s.logger.Info("Flushed pending saves on close", applog.FieldCount, n)
	}
	s.deb.Stop()
}

func (s *Synchronizer) flushDebounced(_ string, m core.Month) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
	defer cancel()
	s.Flush(ctx, m)
}

// isDropped must be called with mu held.
func (s *Synchronizer) isDropped(keyOrID string) bool {
	if keyOrID == "" {
		return false
	}
	_, ok := s.dropped[keyOrID]
	return ok
}

// rows builds the rows to write, reusing ids learned from earlier flushes
// and skipping deleted ones. keys[i] is the item key of rows[i].
func (s *Synchronizer) rows(m core.Month) (rows []core.Row, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range m.Cards {
		for _, it := range c.Items {
			if s.isDropped(it.Key) || s.isDropped(it.ID) {
				continue
			}
			if it.ID == "" {
				it.ID = s.known[it.Key]
			}
			rows = append(rows, core.RowFromItem(m.Year, m.Month, c.Title, it))
			keys = append(keys, it.Key)
		}
	}
	return rows, keys
}

// Flush writes every item of m. Each row is upserted on its own; a failing
// row is logged and does not stop the others. Flushes never overlap so ids
// learned by one are visible to the next.
func (s *Synchronizer) Flush(ctx context.Context, m core.Month) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if s.cfg.MinInterval > 0 && !s.lastFlush.IsZero() {
		if wait := s.cfg.MinInterval - s.now().Sub(s.lastFlush); wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				s.logger.WarnContext(ctx, "Save abandoned while rate limited",
					applog.FieldYear, m.Year, applog.FieldMonth, m.Month, applog.FieldError, err)
				return
			}
		}
	}
	s.lastFlush = s.now()

	rows, keys := s.rows(m)
	if len(rows) == 0 {
		return
	}

	start := time.Now()
	saved := make([]*core.Row, len(rows))
	adopted := make([]string, len(rows))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for i := range rows {
		g.Go(func() error {
			adopted[i] = s.keepStoredLabel(ctx, &rows[i])
			out, err := s.writer.UpsertRows(ctx, []core.Row{rows[i]})
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to save budget item",
					applog.NewFields().
						WithMonth(m.Year, m.Month).
						WithItem(rows[i].Title, keys[i], rows[i].ID).
						WithError(err).
						WithOperation(applog.OpSync).ToSlice()...)
				return nil
			}
			if len(out) > 0 {
				saved[i] = &out[0]
			}
			return nil
		})
	}
	_ = g.Wait()

	ids := make(map[string]string)
	labels := make(map[string]string)
	var unclassified []string
	failed := 0
	s.mu.Lock()
	for i, r := range saved {
		if r == nil {
			failed++
			continue
		}
		if r.ID == "" {
			continue
		}
		if s.isDropped(r.ID) || s.isDropped(keys[i]) {
			continue
		}
		s.known[keys[i]] = r.ID
		if adopted[i] != "" {
			labels[keys[i]] = adopted[i]
		}
		if rows[i].ID != r.ID {
			ids[keys[i]] = r.ID
			if _, busy := s.classifying[keys[i]]; r.Icon() == "" && !busy {
				unclassified = append(unclassified, r.ID)
			}
		}
	}
	onSaved, onLabeled := s.onSaved, s.onLabeled
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Month saved",
		applog.FieldYear, m.Year,
		applog.FieldMonth, m.Month,
		applog.FieldCount, len(rows)-failed,
		"failed", failed,
		applog.FieldDuration, time.Since(start).Milliseconds())

	if len(ids) > 0 && onSaved != nil {
		onSaved(m.Year, m.Month, ids)
	}
	if len(labels) > 0 && onLabeled != nil {
		onLabeled(m.Year, m.Month, labels)
	}
	s.publishUnclassified(ctx, unclassified)
}

// keepStoredLabel copies the stored icon onto an unlabeled persisted row and
// returns it, or "" when there is nothing to keep.
func (s *Synchronizer) keepStoredLabel(ctx context.Context, row *core.Row) string {
	if s.reader == nil || row.ID == "" || row.Icon() != "" {
		return ""
	}
	cur, err := s.reader.GetRow(ctx, row.ID)
	if err != nil {
		return ""
	}
	label := cur.Icon()
	if label == "" {
		return ""
	}
	row.IconCategory = &label
	return label
}

func (s *Synchronizer) publishUnclassified(ctx context.Context, ids []string) {
	if s.publisher == nil {
		return
	}
	for _, id := range ids {
		if err := s.publisher.PublishClassify(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "Failed to queue row for classification",
				applog.FieldItemID, id, applog.FieldError, err)
		}
	}
}
