package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"budgetcards/internal/ai"
	"budgetcards/internal/cache"
	"budgetcards/internal/core"
	"budgetcards/internal/editor"
	applog "budgetcards/internal/log"
	"budgetcards/internal/store"

	"golang.org/x/sync/singleflight"
)

var ErrUnknownCard = errors.New("unknown card")

// Classifier labels free text. It never fails.
type Classifier interface {
	Classify(ctx context.Context, text string) string
}

// MonthView is the month as shown to clients: items sorted by position plus
// totals.
type MonthView struct {
	core.Month
	Stats core.Stats `json:"stats"`
}

// board is the loaded editing state of one month.
type board struct {
	year, month int
	editors     []*editor.CardEditor

	// rev counts changes; viewMu orders cache writes against invalidation.
	viewMu sync.Mutex
	rev    uint64
}

func (b *board) editor(title string) *editor.CardEditor {
	for _, e := range b.editors {
		if e.Title() == title {
			return e
		}
	}
	return nil
}

func (b *board) snapshot() core.Month {
	m := core.Month{Year: b.year, Month: b.month, Cards: make([]core.Card, len(b.editors))}
	for i, e := range b.editors {
		m.Cards[i] = core.Card{Title: e.Title(), Items: e.Items()}
	}
	return m
}

// BoardService glues editors, the synchronizer and classification together
// for every month a client touches.
type BoardService struct {
	store      store.Store
	sync       *Synchronizer
	classifier Classifier
	summarizer *Summarizer
	views      *cache.LRUCache[MonthView]
	logger     *applog.Logger
	now        func() time.Time

	mu     sync.Mutex
	boards map[string]*board
	loads  singleflight.Group

	classifyTimeout time.Duration
	bg              sync.WaitGroup
}

// BoardOption customises a BoardService.
type BoardOption func(*BoardService)

func WithViewCache(c *cache.LRUCache[MonthView]) BoardOption {
	return func(s *BoardService) { s.views = c }
}

func WithSummarizer(sum *Summarizer) BoardOption {
	return func(s *BoardService) { s.summarizer = sum }
}

func WithLogger(l *applog.Logger) BoardOption {
	return func(s *BoardService) { s.logger = l }
}

func WithClock(now func() time.Time) BoardOption {
	return func(s *BoardService) { s.now = now }
}

func NewBoardService(st store.Store, syncer *Synchronizer, classifier Classifier, opts ...BoardOption) *BoardService {
	s := &BoardService{
		store:           st,
		sync:            syncer,
		classifier:      classifier,
		logger:          applog.Default(applog.ComponentBoard),
		now:             time.Now,
		boards:          make(map[string]*board),
		classifyTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	syncer.OnSaved(s.assignIDs)
	syncer.OnLabeled(s.adoptLabels)
	return s
}

func (s *BoardService) board(ctx context.Context, year, month int) (*board, error) {
	if !core.ValidMonth(month) {
		return nil, core.ErrInvalidMonth
	}
	key := monthKey(year, month)
	s.mu.Lock()
	b, ok := s.boards[key]
	s.mu.Unlock()
	if ok {
		return b, nil
	}

	v, err, _ := s.loads.Do(key, func() (any, error) {
		s.mu.Lock()
		if b, ok := s.boards[key]; ok {
			s.mu.Unlock()
			return b, nil
		}
		s.mu.Unlock()

		rows, err := s.store.ListRows(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		m := core.FormatMonth(rows, core.FixedCategories, year, month)
		b := &board{year: year, month: month, editors: make([]*editor.CardEditor, len(m.Cards))}
		for i, c := range m.Cards {
			b.editors[i] = editor.New(c.Title, c.Items, s.store)
		}

		s.mu.Lock()
		s.boards[key] = b
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "Board loaded",
			applog.FieldYear, year,
			applog.FieldMonth, month,
			applog.FieldCount, len(m.Items()))
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*board), nil
}

func (s *BoardService) cardEditor(ctx context.Context, year, month int, title string) (*board, *editor.CardEditor, error) {
	b, err := s.board(ctx, year, month)
	if err != nil {
		return nil, nil, err
	}
	e := b.editor(title)
	if e == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownCard, title)
	}
	return b, e, nil
}

func (s *BoardService) invalidate(b *board) {
	b.viewMu.Lock()
	defer b.viewMu.Unlock()
	b.rev++
	if s.views != nil {
		s.views.Delete(monthKey(b.year, b.month))
	}
}

// apply reacts to an editor change: the view is invalidated and, when the
// change asks for it, the whole month is scheduled for saving.
func (s *BoardService) apply(b *board, ch editor.Change) {
	if !ch.Changed {
		return
	}
	s.invalidate(b)
	if ch.Persist {
		s.sync.Schedule(b.snapshot())
	}
}

// MonthView returns the month with every card sorted by position.
func (s *BoardService) MonthView(ctx context.Context, year, month int) (MonthView, error) {
	key := monthKey(year, month)
	if s.views != nil {
		if v, ok := s.views.Get(key); ok {
			return v, nil
		}
	}
	b, err := s.board(ctx, year, month)
	if err != nil {
		return MonthView{}, err
	}
	b.viewMu.Lock()
	rev := b.rev
	b.viewMu.Unlock()

	m := core.SortedView(b.snapshot())
	v := MonthView{Month: m, Stats: core.CalcStats(m)}
	if s.views != nil {
		b.viewMu.Lock()
		if b.rev == rev {
			s.views.Set(key, v)
		}
		b.viewMu.Unlock()
	}
	return v, nil
}

// NextMonth returns the view of the month after the latest one holding
// data, or of the current month when nothing is stored.
func (s *BoardService) NextMonth(ctx context.Context) (MonthView, error) {
	rows, err := s.store.ListRows(ctx)
	if err != nil {
		return MonthView{}, fmt.Errorf("list rows: %w", err)
	}
	year, month, ok := core.LatestMonth(rows)
	if ok {
		year, month = core.NextMonth(year, month)
	} else {
		now := s.now()
		year, month = now.Year(), int(now.Month())
	}
	return s.MonthView(ctx, year, month)
}

// AddItem appends an item to a card and classifies it in the background.
func (s *BoardService) AddItem(ctx context.Context, year, month int, title, text, amount string) (core.BudgetItem, []core.BudgetItem, error) {
	b, e, err := s.cardEditor(ctx, year, month, title)
	if err != nil {
		return core.BudgetItem{}, nil, err
	}
	it, ch := e.Add(text, amount)
	s.apply(b, ch)
	s.logger.InfoContext(ctx, "Budget item added",
		applog.NewFields().
			WithMonth(year, month).
			WithItem(title, it.Key, "").
			WithOperation(applog.OpCreate).ToSlice()...)

	if s.classifier != nil {
		s.sync.Classifying(it.Key)
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			defer s.sync.Classified(it.Key)
			s.classifyItem(b, e, it)
		}()
	}
	return it, ch.Items, nil
}

// classifyItem patches the label onto the item if it still exists.
func (s *BoardService) classifyItem(b *board, e *editor.CardEditor, it core.BudgetItem) {
	ctx, cancel := context.WithTimeout(context.Background(), s.classifyTimeout)
	defer cancel()
	label := s.classifier.Classify(ctx, it.Text)
	ch := e.PatchIcon(it.Key, label)
	if !ch.Changed {
		s.logger.DebugContext(ctx, "Classification result discarded",
			applog.FieldItemKey, it.Key, applog.FieldLabel, label)
		return
	}
	s.apply(b, ch)
	s.logger.DebugContext(ctx, "Icon category patched",
		applog.FieldItemKey, it.Key, applog.FieldLabel, label)
}

func (s *BoardService) UpdateField(ctx context.Context, year, month int, title string, index int, field, value string) ([]core.BudgetItem, error) {
	b, e, err := s.cardEditor(ctx, year, month, title)
	if err != nil {
		return nil, err
	}
	ch, err := e.UpdateField(index, field, value)
	if err != nil {
		return ch.Items, err
	}
	s.apply(b, ch)
	return ch.Items, nil
}

func (s *BoardService) ToggleStatus(ctx context.Context, year, month int, title string, index int) ([]core.BudgetItem, error) {
	b, e, err := s.cardEditor(ctx, year, month, title)
	if err != nil {
		return nil, err
	}
	ch := e.ToggleStatus(index)
	s.apply(b, ch)
	return ch.Items, nil
}

func (s *BoardService) Reorder(ctx context.Context, year, month int, title string, from, to int) ([]core.BudgetItem, error) {
	b, e, err := s.cardEditor(ctx, year, month, title)
	if err != nil {
		return nil, err
	}
	ch := e.Reorder(from, to)
	s.apply(b, ch)
	return ch.Items, nil
}

// DeleteItem removes the persisted item id. The remote delete happens first
// and a failure leaves the card untouched.
func (s *BoardService) DeleteItem(ctx context.Context, year, month int, title, id string) ([]core.BudgetItem, error) {
	b, e, err := s.cardEditor(ctx, year, month, title)
	if err != nil {
		return nil, err
	}

	var key string
	for _, it := range e.Items() {
		if it.ID == id {
			key = it.Key
			break
		}
	}

	var ch editor.Change
	err = s.sync.Exclusive(func() error {
		var derr error
		ch, derr = e.Delete(ctx, id)
		if derr == nil {
			s.sync.DropItem(year, month, key, id)
		}
		return derr
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete budget item",
			applog.NewFields().
				WithMonth(year, month).
				WithItem(title, key, id).
				WithError(err).
				WithOperation(applog.OpDelete).ToSlice()...)
		return ch.Items, err
	}
	s.apply(b, ch)
	s.logger.InfoContext(ctx, "Budget item deleted",
		applog.NewFields().WithMonth(year, month).WithItem(title, key, id).ToSlice()...)
	return ch.Items, nil
}

// Summary asks the summarizer for a review of the month.
func (s *BoardService) Summary(ctx context.Context, year, month int) (string, error) {
	if s.summarizer == nil {
		return "", ai.ErrMissingAPIKey
	}
	v, err := s.MonthView(ctx, year, month)
	if err != nil {
		return "", err
	}
	return s.summarizer.Summarize(ctx, v.Month)
}

// assignIDs is the synchronizer's write-back hook.
func (s *BoardService) assignIDs(year, month int, ids map[string]string) {
	s.mu.Lock()
	b, ok := s.boards[monthKey(year, month)]
	s.mu.Unlock()
	if !ok {
		return
	}
	n := 0
	for _, e := range b.editors {
		n += e.AssignIDs(ids)
	}
	if n > 0 {
		s.invalidate(b)
	}
}

// adoptLabels is the synchronizer's hook for labels the backfill worker
// stored while the board had none.
func (s *BoardService) adoptLabels(year, month int, labels map[string]string) {
	s.mu.Lock()
	b, ok := s.boards[monthKey(year, month)]
	s.mu.Unlock()
	if !ok {
		return
	}
	changed := false
	for _, e := range b.editors {
		for key, label := range labels {
			if e.FillIcon(key, label).Changed {
				changed = true
			}
		}
	}
	if changed {
		s.invalidate(b)
	}
}

// Close waits for background classification, then flushes pending saves.
func (s *BoardService) Close() {
	s.bg.Wait()
	s.sync.Close()
}
