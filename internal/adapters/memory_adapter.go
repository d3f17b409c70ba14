package adapters

import (
	"context"
	"sync"

	"quotesheet/internal/sheets"
	"quotesheet/internal/sheets/memory"
)

// MemoryAdapter keeps every sheet in process memory.
type MemoryAdapter struct {
	mu     sync.Mutex
	stores map[string]*memory.Store
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{stores: make(map[string]*memory.Store)}
}

func (a *MemoryAdapter) NewStore(sheetID string) sheets.RowStore {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.stores[sheetID]
	if !ok {
		s = memory.New()
		a.stores[sheetID] = s
	}
	return s
}

func (a *MemoryAdapter) Release(_ context.Context, sheetID string) error {
	a.mu.Lock()
	delete(a.stores, sheetID)
	a.mu.Unlock()
	return nil
}

func (a *MemoryAdapter) Ping(context.Context) error { return nil }

// Len returns the number of sheets currently held.
func (a *MemoryAdapter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.stores)
}
