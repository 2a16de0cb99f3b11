package remote

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheTTL  = time.Minute
	defaultCacheSize = 256
)

// cacheEntry remembers the validator the remote sent with a calendar so the
// next fetch can be conditional.
type cacheEntry struct {
	validator string
	calendar  *Calendar
}

// Cache holds recently fetched calendars keyed by remote URL.
type Cache struct {
	lru *expirable.LRU[string, cacheEntry]
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		lru: expirable.NewLRU[string, cacheEntry](defaultCacheSize, nil, ttl),
	}
}

func (c *Cache) get(url string) (cacheEntry, bool) {
	return c.lru.Get(url)
}

func (c *Cache) put(url, validator string, cal *Calendar) {
	if validator == "" {
		return
	}
	c.lru.Add(url, cacheEntry{validator: validator, calendar: cal})
}

// Invalidate drops the cached calendar for url, typically after a push.
func (c *Cache) Invalidate(url string) {
	c.lru.Remove(url)
}

func (c *Cache) Len() int {
	return c.lru.Len()
}
