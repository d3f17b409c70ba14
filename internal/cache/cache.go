package cache

import (
	"context"
	"time"

	"quotesheet/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

var _ Cache[int] = (*LRUCache[int])(nil)

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps expired entries out of registered caches.
type Manager struct {
	caches []Cleaner
}

// NewManager creates a new cache manager
func NewManager(caches ...Cleaner) *Manager {
	return &Manager{caches: caches}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// Sweep runs one cleanup pass and returns the number of removed entries.
func (m *Manager) Sweep() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.FromContext(ctx).WithComponent(log.ComponentCache)
	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.DebugContext(ctx, "Cache cleanup completed", "entries_removed", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
