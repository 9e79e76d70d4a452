package backend

import "sync"

// infoCache is a bounded in-memory cache of decoded metadata records.
// Records are immutable once stored, so a shared pointer is safe to hand out.
type infoCache struct {
	maxSize int
	mu      sync.RWMutex
	items   map[string]*Info
}

func newInfoCache(maxSize int) *infoCache {
	return &infoCache{
		maxSize: maxSize,
		items:   make(map[string]*Info),
	}
}

func (c *infoCache) get(key string) (*Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.items[key]
	return info, ok
}

func (c *infoCache) add(key string, info *Info) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple eviction: if full, remove one arbitrary entry.
	if len(c.items) >= c.maxSize {
		for k := range c.items {
			delete(c.items, k)
			break
		}
	}

	c.items[key] = info
}

func (c *infoCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}
