package store

import (
	"container/list"
	"strings"
	"sync"
)

// LRU is a bounded key/value cache with least-recently-used eviction. Reads
// promote; inserts beyond capacity evict the coldest entry. Safe for
// concurrent use by the world goroutine and the store's writer goroutine.
type LRU[V any] struct {
	mu  sync.Mutex
	cap int
	ll  *list.List // front = most recently used
	idx map[string]*list.Element
}

type lruEntry[V any] struct {
	key string
	val V
}

func NewLRU[V any](capacity int) *LRU[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[V]{
		cap: capacity,
		ll:  list.New(),
		idx: make(map[string]*list.Element, capacity/4),
	}
}

func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.idx[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry[V]).val, true
}

// Contains reports presence and promotes, matching access-ordered recency.
func (c *LRU[V]) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *LRU[V]) Put(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.idx[key]; ok {
		el.Value.(*lruEntry[V]).val = val
		c.ll.MoveToFront(el)
		return
	}
	c.idx[key] = c.ll.PushFront(&lruEntry[V]{key: key, val: val})
	if c.ll.Len() > c.cap {
		c.evictOldest()
	}
}

func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.idx[key]; ok {
		c.ll.Remove(el)
		delete(c.idx, key)
	}
}

// DeletePrefix drops every entry whose key starts with prefix. Used by
// scope-wide administrative resets.
func (c *LRU[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*lruEntry[V])
		if strings.HasPrefix(e.key, prefix) {
			c.ll.Remove(el)
			delete(c.idx, e.key)
			n++
		}
		el = next
	}
	return n
}

func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.idx)
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU[V]) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.idx, el.Value.(*lruEntry[V]).key)
}
