package embedding

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a thread-safe LRU cache of embeddings keyed by text.
type Cache struct {
	lru *lru.Cache[string, []float32]
}

// NewCache creates a cache holding up to capacity embeddings. A non-positive capacity disables caching.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		return &Cache{}
	}
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		return &Cache{}
	}
	return &Cache{lru: c}
}

// Get returns the cached embedding for text if present.
func (c *Cache) Get(text string) ([]float32, bool) {
	if c == nil || c.lru == nil {
		return nil, false
	}
	return c.lru.Get(text)
}

// Set stores the embedding for text, evicting the least recently used entry if at capacity.
func (c *Cache) Set(text string, vec []float32) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Add(text, vec)
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
