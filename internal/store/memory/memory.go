// Package memory is an in-process row store used for local runs and tests.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"budgetcards/internal/core"
	"budgetcards/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu   sync.Mutex
	rows []core.Row
	now  func() time.Time
}

func New(seed ...core.Row) *Store {
	s := &Store{now: time.Now}
	for _, r := range seed {
		s.rows = append(s.rows, s.stamp(r))
	}
	return s
}

// NewFromFile seeds the store from a JSON-lines file of rows. Blank lines and
// lines starting with '#' are skipped; a missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, err
	}
	defer f.Close()

	var seed []core.Row
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var r core.Row
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		seed = append(seed, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return New(seed...), nil
}

// stamp fills id and created_at. Callers hold mu or own s exclusively.
func (s *Store) stamp(r core.Row) core.Row {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	return r
}

func (s *Store) ListRows(_ context.Context) ([]core.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Row(nil), s.rows...), nil
}

func (s *Store) GetRow(_ context.Context, id string) (core.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.rows[i], nil
	}
	return core.Row{}, store.ErrNotFound
}

func (s *Store) index(id string) int {
	for i := range s.rows {
		if s.rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) InsertRows(_ context.Context, rows []core.Row) ([]core.Row, error) {
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Row, 0, len(rows))
	for _, r := range rows {
		if r.ID != "" && s.index(r.ID) >= 0 {
			return nil, fmt.Errorf("duplicate id %s", r.ID)
		}
		r = s.stamp(r)
		s.rows = append(s.rows, r)
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) UpsertRows(_ context.Context, rows []core.Row) ([]core.Row, error) {
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Row, 0, len(rows))
	for _, r := range rows {
		if i := s.index(r.ID); r.ID != "" && i >= 0 {
			r.CreatedAt = s.rows[i].CreatedAt
			s.rows[i] = r
		} else {
			r = s.stamp(r)
			s.rows = append(s.rows, r)
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteRow is idempotent: a missing id is not an error.
func (s *Store) DeleteRow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return nil
}

func (s *Store) DeleteMonth(_ context.Context, year, month int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.Year != year || r.Month != month {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

var _ store.Store = (*Store)(nil)
