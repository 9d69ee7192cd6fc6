package media

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"orgmedia/internal/model"
)

// Cache keeps normalized item lists per upload target (e.g. "album:12").
type Cache struct {
	lru *expirable.LRU[string, []model.MediaItem]
}

// NewCache creates a cache holding at most size targets for ttl each.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{
		lru: expirable.NewLRU[string, []model.MediaItem](size, nil, ttl),
	}
}

// Get returns a copy of the cached list for target.
func (c *Cache) Get(target string) ([]model.MediaItem, bool) {
	items, ok := c.lru.Get(target)
	if !ok {
		return nil, false
	}
	return append([]model.MediaItem(nil), items...), true
}

// Put replaces the list for target.
func (c *Cache) Put(target string, items []model.MediaItem) {
	c.lru.Add(target, append([]model.MediaItem(nil), items...))
}

// Append adds freshly uploaded items to a cached list. Targets that are not
// cached stay uncached; a partial list would hide existing items.
func (c *Cache) Append(target string, items []model.MediaItem) bool {
	current, ok := c.lru.Get(target)
	if !ok {
		return false
	}
	merged := make([]model.MediaItem, 0, len(current)+len(items))
	merged = append(merged, current...)
	merged = append(merged, items...)
	c.lru.Add(target, merged)
	return true
}

// Invalidate drops target.
func (c *Cache) Invalidate(target string) {
	c.lru.Remove(target)
}

// Len returns the number of cached targets.
func (c *Cache) Len() int {
	return c.lru.Len()
}
