package memory

import (
	"context"
	"sync"

	"quotesheet/internal/core"
	"quotesheet/internal/sheets"
)

var _ sheets.RowStore = (*Store)(nil)

// Store keeps a sheet's rows in process memory.
type Store struct {
	mu   sync.Mutex
	rows []core.Row
}

func New() *Store {
	return &Store{}
}

// Snapshot returns a copy of the rows in insertion order.
func (s *Store) Snapshot(_ context.Context) ([]core.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Row(nil), s.rows...), nil
}

// Replace installs a copy of rows as the new list.
func (s *Store) Replace(_ context.Context, rows []core.Row) error {
	next := append([]core.Row(nil), rows...)
	s.mu.Lock()
	s.rows = next
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
