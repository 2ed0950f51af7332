package pinfetch

import (
	"time"

	"github.com/docutag/pinfetch/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache memoizes resolutions by raw input URL.
// Entries expire after the configured TTL and can be dropped early with Invalidate.
type Cache struct {
	lru *expirable.LRU[string, models.ResolvedAsset]
}

// NewCache creates a cache holding at most size entries for ttl each.
// A ttl of zero keeps entries until they are evicted by size.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1
	}
	return &Cache{lru: expirable.NewLRU[string, models.ResolvedAsset](size, nil, ttl)}
}

func (c *Cache) Get(rawURL string) (models.ResolvedAsset, bool) {
	return c.lru.Get(rawURL)
}

func (c *Cache) Add(rawURL string, asset models.ResolvedAsset) {
	c.lru.Add(rawURL, asset)
}

// Invalidate removes a single entry and reports whether it was present
func (c *Cache) Invalidate(rawURL string) bool {
	return c.lru.Remove(rawURL)
}

// Purge removes every entry
func (c *Cache) Purge() {
	c.lru.Purge()
}

func (c *Cache) Len() int {
	return c.lru.Len()
}
