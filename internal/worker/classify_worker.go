package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetcards/internal/amqp"
	"budgetcards/internal/core"
	applog "budgetcards/internal/log"
	"budgetcards/internal/store"
)

const DefaultBatchSize = 10

// Classifier labels free text. It never fails.
type Classifier interface {
	Classify(ctx context.Context, text string) string
}

// unclassifiedLister is implemented by stores that can query rows without
// an icon directly.
type unclassifiedLister interface {
	ListUnclassified(ctx context.Context, limit int) ([]core.Row, error)
}

// ClassifyWorker backfills icon categories for persisted rows that were
// saved before classification finished.
type ClassifyWorker struct {
	store      store.Store
	classifier Classifier
	batchSize  int
	logger     *applog.Logger
}

func NewClassifyWorker(st store.Store, classifier Classifier, batchSize int) *ClassifyWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ClassifyWorker{
		store:      st,
		classifier: classifier,
		batchSize:  batchSize,
		logger:     applog.Default(applog.ComponentWorker),
	}
}

// HandleClassifyMessage classifies the row named by msg. A row that is gone
// is acknowledged, not retried.
func (w *ClassifyWorker) HandleClassifyMessage(ctx context.Context, msg *amqp.ClassifyMessage) error {
	w.logger.DebugContext(ctx, "Processing classify message",
		applog.FieldItemID, msg.ID,
		"timestamp", msg.Timestamp)

	row, err := w.store.GetRow(ctx, msg.ID)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.InfoContext(ctx, "Row no longer exists, skipping", applog.FieldItemID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get row %s: %w", msg.ID, err)
	}
	_, err = w.classifyRow(ctx, row)
	return err
}

// classifyRow labels row and stores the label. It reports whether a write
// happened. The row is re-read before writing so edits made while the model
// was thinking are not overwritten.
func (w *ClassifyWorker) classifyRow(ctx context.Context, row core.Row) (bool, error) {
	if row.Icon() != "" {
		return false, nil
	}
	label := w.classifier.Classify(ctx, row.Text)
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fresh, err := w.store.GetRow(ctx, row.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reload row %s: %w", row.ID, err)
	}
	if fresh.Icon() != "" || fresh.Text != row.Text {
		w.logger.DebugContext(ctx, "Row changed during classification, skipping",
			applog.FieldItemID, row.ID)
		return false, nil
	}

	fresh.IconCategory = &label
	if _, err := w.store.UpsertRows(ctx, []core.Row{fresh}); err != nil {
		return false, fmt.Errorf("store label for %s: %w", row.ID, err)
	}
	w.logger.InfoContext(ctx, "Row classified",
		applog.FieldItemID, row.ID,
		applog.FieldLabel, label)
	return true, nil
}

func (w *ClassifyWorker) unclassified(ctx context.Context, limit int) ([]core.Row, error) {
	if l, ok := w.store.(unclassifiedLister); ok {
		return l.ListUnclassified(ctx, limit)
	}
	rows, err := w.store.ListRows(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Row
	for _, r := range rows {
		if r.Icon() == "" {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ProcessUnclassified classifies up to one batch of rows lacking an icon and
// returns how many were written. It backs up lost messages.
func (w *ClassifyWorker) ProcessUnclassified(ctx context.Context) (int, error) {
	return w.process(ctx, w.batchSize)
}

// StartupCheck runs a larger sweep to catch up after downtime.
func (w *ClassifyWorker) StartupCheck(ctx context.Context) (int, error) {
	n, err := w.process(ctx, w.batchSize*5)
	if err != nil {
		return n, fmt.Errorf("startup classification check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup classification check completed", applog.FieldCount, n)
	return n, nil
}

func (w *ClassifyWorker) process(ctx context.Context, limit int) (int, error) {
	rows, err := w.unclassified(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unclassified rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	w.logger.InfoContext(ctx, "Processing unclassified rows", applog.FieldCount, len(rows))

	done, failed := 0, 0
	for _, r := range rows {
		ok, err := w.classifyRow(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			w.logger.ErrorContext(ctx, "Failed to classify row",
				applog.FieldItemID, r.ID,
				applog.FieldError, err)
			failed++
			continue
		}
		if ok {
			done++
		}
	}
	if failed > 0 {
		w.logger.WarnContext(ctx, "Some rows could not be classified", "failed", failed)
	}
	return done, nil
}

// Run sweeps every interval until ctx ends.
func (w *ClassifyWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessUnclassified(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic classification sweep failed", applog.FieldError, err)
			}
		}
	}
}
