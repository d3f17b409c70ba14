package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictFunc is called, outside the cache lock, for every entry that leaves
// the cache because of capacity, expiry or Delete. Overwriting a key with
// Set does not count as a removal.
type EvictFunc[T any] func(key string, data T)

// LRUCache is a size-bounded cache whose entries expire after a period of
// inactivity. Every Get that hits pushes the expiry forward.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	onEvict EvictFunc[T]
	now     func() time.Time
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with a sliding TTL.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

// OnEvict registers fn to be told about removed entries.
func (c *LRUCache[T]) OnEvict(fn EvictFunc[T]) *LRUCache[T] {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
	return c
}

// Get retrieves a live value and refreshes its expiry.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	now := c.now()
	if now.After(item.expiresAt) {
		c.removeElement(elem)
		fn := c.onEvict
		c.mu.Unlock()
		if fn != nil {
			fn(item.key, item.data)
		}
		return zero, false
	}
	item.expiresAt = now.Add(c.ttl)
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return item.data, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	item := &cacheItem[T]{key: key, data: data, expiresAt: c.now().Add(c.ttl)}

	var evicted []*cacheItem[T]
	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
	} else {
		c.items[key] = c.lru.PushFront(item)
		for c.lru.Len() > c.maxSize {
			oldest := c.lru.Back()
			evicted = append(evicted, oldest.Value.(*cacheItem[T]))
			c.removeElement(oldest)
		}
	}
	fn := c.onEvict
	c.mu.Unlock()

	if fn != nil {
		for _, it := range evicted {
			fn(it.key, it.data)
		}
	}
}

// Delete removes a key from the cache
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return
	}
	item := elem.Value.(*cacheItem[T])
	c.removeElement(elem)
	fn := c.onEvict
	c.mu.Unlock()
	if fn != nil {
		fn(item.key, item.data)
	}
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns how many went.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	now := c.now()
	var expired []*cacheItem[T]
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		item := elem.Value.(*cacheItem[T])
		if now.After(item.expiresAt) {
			expired = append(expired, item)
			c.removeElement(elem)
		}
		elem = next
	}
	fn := c.onEvict
	c.mu.Unlock()

	if fn != nil {
		for _, it := range expired {
			fn(it.key, it.data)
		}
	}
	return len(expired)
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
