package registry

import (
	"container/list"
	"sync"
	"time"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// templateCache is a bounded LRU cache with per-entry TTL. Entries hold
// template pointers owned by the registry; callers receive clones from the
// registry layer, never the cached pointer.
type templateCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	// entries maps template ID to its recency-list element.
	entries map[string]*list.Element
	// recency orders elements most-recently-used first.
	recency *list.List
	// now is swappable for tests.
	now func() time.Time
}

// cacheEntry is the payload stored in the recency list.
type cacheEntry struct {
	id       string
	template *models.ValidationTemplate
	storedAt time.Time
}

// newTemplateCache creates a cache bounded by maxSize entries and ttl age.
func newTemplateCache(maxSize int, ttl time.Duration) *templateCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &templateCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		recency: list.New(),
		now:     time.Now,
	}
}

// get returns the cached template and refreshes its recency. Expired entries
// are evicted on access and reported as a miss.
func (c *templateCache) get(id string) (*models.ValidationTemplate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		c.recency.Remove(elem)
		delete(c.entries, id)
		return nil, false
	}

	c.recency.MoveToFront(elem)
	return entry.template, true
}

// put stores a template, evicting the least-recently-used entry past the cap.
func (c *templateCache) put(id string, t *models.ValidationTemplate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[id]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.template = t
		entry.storedAt = c.now()
		c.recency.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.recency.Back()
		if oldest == nil {
			break
		}
		c.recency.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).id)
	}

	elem := c.recency.PushFront(&cacheEntry{id: id, template: t, storedAt: c.now()})
	c.entries[id] = elem
}

// invalidate drops a single entry.
func (c *templateCache) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[id]; ok {
		c.recency.Remove(elem)
		delete(c.entries, id)
	}
}

// len returns the number of cached entries.
func (c *templateCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
