package memorycache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/asakaida/junban/pkg/cache"
)

// entryOverhead approximates the bookkeeping cost of one entry in bytes.
const entryOverhead = 64

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *entry) size() int64 {
	return int64(entryOverhead + len(e.key) + len(e.value))
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a size-bounded LRU cache with per-entry TTL.
// Get promotes the entry, so a single mutex guards both the index and the list.
type Cache struct {
	mu sync.Mutex

	items     map[string]*list.Element
	evictList *list.List // front = most recently used

	maxSize     int64
	currentSize int64
	now         func() time.Time

	metrics *cache.Metrics
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes is the budget for keys, values and per-entry overhead.
	// Least recently used entries are evicted past this limit.
	MaxSizeBytes int64

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New(config *Config) *Cache {
	c := &Cache{
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		maxSize:   config.MaxSizeBytes,
		now:       time.Now,
	}
	if config.EnableMetrics {
		c.metrics = &cache.Metrics{}
	}
	return c
}

var _ cache.Cache = (*Cache)(nil)

// Get returns a copy of the cached value.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.recordMiss()
		return nil, cache.ErrMiss
	}

	ent := elem.Value.(*entry)
	if ent.expired(c.now()) {
		c.removeElement(elem)
		c.recordMiss()
		return nil, cache.ErrMiss
	}

	c.evictList.MoveToFront(elem)
	if c.metrics != nil {
		c.metrics.Hits++
	}
	return append([]byte(nil), ent.value...), nil
}

// Set stores a copy of value.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	ent := &entry{key: key, value: append([]byte(nil), value...), expiresAt: expiresAt}

	if elem, ok := c.items[key]; ok {
		c.currentSize -= elem.Value.(*entry).size()
		elem.Value = ent
		c.evictList.MoveToFront(elem)
	} else {
		c.items[key] = c.evictList.PushFront(ent)
		if c.metrics != nil {
			c.metrics.KeysAdded++
		}
	}
	c.currentSize += ent.size()

	for c.currentSize > c.maxSize && c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
		if c.metrics != nil {
			c.metrics.KeysEvicted++
		}
	}
	return nil
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if elem, ok := c.items[key]; ok {
			c.removeElement(elem)
		}
	}
	return nil
}

// Clear removes all entries from cache.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.currentSize = 0
	return nil
}

// Close is a no-op for the memory cache.
func (c *Cache) Close() error {
	return nil
}

// Metrics returns a snapshot of cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.metrics == nil {
		return &cache.Metrics{}
	}
	snapshot := *c.metrics
	return &snapshot
}

// Len returns the current number of items in cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the current accounted size in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

func (c *Cache) recordMiss() {
	if c.metrics != nil {
		c.metrics.Misses++
	}
}

// removeElement must be called with the lock held.
func (c *Cache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.currentSize -= ent.size()
}
