package style

import (
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wegman-software/airspace-go/internal/airspace"
)

// DefaultCacheSize is the number of resolved styles kept per resolver
const DefaultCacheSize = 4096

// CachedResolver memoizes another resolver by airspace ID
type CachedResolver struct {
	next  Resolver
	cache *expirable.LRU[string, Style]
}

// NewCachedResolver wraps next with an LRU of the given size
func NewCachedResolver(next Resolver, size int) *CachedResolver {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &CachedResolver{
		next:  next,
		cache: expirable.NewLRU[string, Style](size, nil, 0),
	}
}

// Resolve implements Resolver
func (c *CachedResolver) Resolve(a *airspace.Airspace) Style {
	if s, ok := c.cache.Get(a.ID); ok {
		return s
	}
	s := c.next.Resolve(a)
	c.cache.Add(a.ID, s)
	return s
}

// Purge drops every cached style
func (c *CachedResolver) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached styles
func (c *CachedResolver) Len() int {
	return c.cache.Len()
}
