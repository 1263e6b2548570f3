package core

import (
	"github.com/dosco/pipejin/core/internal/mql"
	lru "github.com/hashicorp/golang-lru/v2"
)

type Cache struct {
	cache *lru.TwoQueueCache[string, *Compiled]
}

// initCache initializes the cache
func (e *engine) initCache() (err error) {
	if e.conf.DisableCache {
		return
	}
	size := e.conf.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New2Q[string, *Compiled](size)
	if err != nil {
		return
	}
	e.cache = &Cache{cache: c}
	return
}

// Get returns a copy of the cached value, callers are free to modify the
// pipeline they get back
func (c *Cache) Get(key string) (val *Compiled, fromCache bool) {
	v, fromCache := c.cache.Get(key)
	if !fromCache {
		return
	}
	val = &Compiled{Query: v.Query, Pipeline: mql.Clone(v.Pipeline)}
	return
}

// Set sets the value in the cache
func (c *Cache) Set(key string, val *Compiled) {
	c.cache.Add(key, &Compiled{Query: val.Query, Pipeline: mql.Clone(val.Pipeline)})
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	return c.cache.Len()
}
