// ABOUTME: Read-through TTL cache over a knowledge Store, size-bounded with
// ABOUTME: oldest-first eviction, so repeated fan-out queries hit memory once.

package knowledge

import (
	"container/list"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// cacheEntry holds one cached result with its fill time and eviction handle.
type cacheEntry struct {
	records   []*Record
	single    *Record
	err       error
	timestamp time.Time
	element   *list.Element
}

// CachingStore wraps a Store with a TTL-based, size-limited result cache.
// Keys age out lazily on read and in a periodic sweep; a doubly-linked list
// keeps fill order for O(1) eviction at capacity. Safe because the wrapped
// store is read-only after startup.
type CachingStore struct {
	inner   Store
	mu      sync.Mutex
	results map[string]*cacheEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
	logger  *slog.Logger
}

// NewCachingStore wraps inner with a cache. A background goroutine sweeps
// expired entries until Close is called.
func NewCachingStore(inner Store, ttl time.Duration, maxSize int, logger *slog.Logger) *CachingStore {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CachingStore{
		inner:   inner,
		results: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
		logger:  logger.With("component", "knowledge-cache"),
	}
	go c.cleanup()
	return c
}

// Lookup serves from cache when fresh, otherwise queries the wrapped store
// and caches the outcome, misses included.
func (c *CachingStore) Lookup(ctx context.Context, kind Kind, name string) (*Record, error) {
	key := "lookup|" + string(kind) + "|" + strings.ToLower(name)
	if entry, ok := c.fresh(key); ok {
		return entry.single, entry.err
	}

	rec, err := c.inner.Lookup(ctx, kind, name)
	if ctx.Err() != nil {
		return rec, err
	}
	c.put(key, &cacheEntry{single: rec, err: err})
	return rec, err
}

// Find serves from cache when fresh, otherwise queries the wrapped store.
func (c *CachingStore) Find(ctx context.Context, q Query) ([]*Record, error) {
	key := findKey(q)
	if entry, ok := c.fresh(key); ok {
		return entry.records, entry.err
	}

	recs, err := c.inner.Find(ctx, q)
	if ctx.Err() != nil {
		return recs, err
	}
	c.put(key, &cacheEntry{records: recs, err: err})
	return recs, err
}

// fresh returns the cached entry for key if present and inside the TTL,
// refreshing its position in the eviction order.
func (c *CachingStore) fresh(key string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.results[key]
	if !ok || time.Since(entry.timestamp) >= c.ttl {
		return nil, false
	}
	c.order.MoveToBack(entry.element)
	return entry, true
}

// put stores a result, evicting the oldest entry at capacity.
func (c *CachingStore) put(key string, entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.results[key]; ok {
		entry.element = existing.element
		entry.timestamp = time.Now()
		c.results[key] = entry
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.results) >= c.maxSize {
		front := c.order.Front()
		if front != nil {
			oldKey, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.results, oldKey)
		}
	}

	entry.timestamp = time.Now()
	entry.element = c.order.PushBack(key)
	c.results[key] = entry
}

// cleanup sweeps expired entries once a minute until Close.
func (c *CachingStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes every expired entry.
func (c *CachingStore) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.results {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.results, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("swept expired cache entries", "removed", removed, "remaining", len(c.results))
	}
}

// Len returns the number of cached results.
func (c *CachingStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *CachingStore) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

// findKey canonicalizes a query into a cache key.
func findKey(q Query) string {
	kinds := make([]string, len(q.Kinds))
	for i, k := range q.Kinds {
		kinds[i] = string(k)
	}
	return strings.Join([]string{
		"find",
		strings.Join(kinds, ","),
		strings.ToLower(q.Dimension),
		strings.ToLower(q.Keyword),
		strings.ToLower(q.Capability),
	}, "|")
}
