package pipeline

import (
	"context"
	"sync"

	"github.com/couchcryptid/hadley-cell/internal/domain"
	"github.com/couchcryptid/hadley-cell/internal/observability"
)

// CachedTransformer wraps a Transformer with an in-memory LRU cache keyed by
// job fingerprint, so replayed or duplicate jobs skip the grid computation.
// Grid files are assumed not to change under a given path.
type CachedTransformer struct {
	inner   Transformer
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedTransformer creates a cache decorator around a transformer.
func NewCachedTransformer(inner Transformer, maxEntries int, metrics *observability.Metrics) *CachedTransformer {
	return &CachedTransformer{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedTransformer) Transform(ctx context.Context, raw domain.RawJob) (domain.HadleyResult, error) {
	job, err := domain.ParseRawJob(raw)
	if err != nil {
		return domain.HadleyResult{}, err
	}
	key := job.Fingerprint()
	if result, ok := c.cache.get(key); ok {
		c.metrics.ResultCache.WithLabelValues("hit").Inc()
		result.JobID = job.ID
		return result, nil
	}
	c.metrics.ResultCache.WithLabelValues("miss").Inc()

	result, err := c.inner.Transform(ctx, raw)
	if err != nil {
		return result, err
	}
	c.cache.put(key, result)
	return result, nil
}

// lruCache is a simple thread-safe LRU cache for results.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.HadleyResult
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.HadleyResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.HadleyResult{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.HadleyResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
