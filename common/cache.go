// Package common holds small bounded-size bookkeeping structures shared
// by the sync core and the idle dispatcher: an LRU-backed cache wrapping
// hashicorp/golang-lru, used where a value only needs to survive long
// enough to dedupe or batch-track, not to persist.
package common

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// Cache is a fixed-capacity, least-recently-used bookkeeping map. Unlike
// the chain/UTXO checkpoints, values here are never the source of truth
// and evicting one early only costs a re-request or a re-check, never
// correctness of the committed chain state.
type Cache struct {
	inner *lru.Cache
}

// NewCache builds a cache holding at most size entries.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, errors.New("common: cache size must be positive")
	}
	inner, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "constructing lru cache")
	}
	return &Cache{inner: inner}, nil
}

func (c *Cache) Add(key, value interface{}) (evicted bool) { return c.inner.Add(key, value) }
func (c *Cache) Get(key interface{}) (interface{}, bool)   { return c.inner.Get(key) }
func (c *Cache) Contains(key interface{}) bool              { return c.inner.Contains(key) }
func (c *Cache) Remove(key interface{})                     { c.inner.Remove(key) }
func (c *Cache) Len() int                                   { return c.inner.Len() }
func (c *Cache) Purge()                                     { c.inner.Purge() }
