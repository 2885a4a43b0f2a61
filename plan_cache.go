package kgraph

import (
	"container/list"
	"sync"
)

// planCache is a bounded LRU of compiled plans keyed by query text. Plans
// are immutable, so a cached plan is shared freely across executions.
type planCache struct {
	mu      sync.Mutex
	cap     int
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type planCacheEntry struct {
	text string
	plan *CompiledPlan
}

// newPlanCache returns a cache holding up to cap plans; cap <= 0 disables
// caching entirely.
func newPlanCache(cap int) *planCache {
	if cap <= 0 {
		return nil
	}
	return &planCache{
		cap:     cap,
		entries: make(map[string]*list.Element, cap),
		order:   list.New(),
	}
}

func (c *planCache) get(text string) *CompiledPlan {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[text]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*planCacheEntry).plan
}

func (c *planCache) put(text string, plan *CompiledPlan) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[text]; ok {
		el.Value.(*planCacheEntry).plan = plan
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.cap {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*planCacheEntry).text)
		}
	}
	c.entries[text] = c.order.PushFront(&planCacheEntry{text: text, plan: plan})
}

// purge empties the cache, used when index definitions change and cached
// access paths may be stale.
func (c *planCache) purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element, c.cap)
	c.order.Init()
}

func (c *planCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
