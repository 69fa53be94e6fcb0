package cache

import (
	"container/list"
	"sync"
	"time"
)

type boundedItem[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// BoundedStats is a point-in-time snapshot of a BoundedCache.
type BoundedStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	Capacity  int
}

// BoundedOption configures a BoundedCache.
type BoundedOption func(*boundedOptions)

type boundedOptions struct {
	now           func() time.Time
	refreshOnHit  bool
	sweepInterval time.Duration
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) BoundedOption {
	return func(o *boundedOptions) { o.now = now }
}

// WithRefreshOnHit resets an entry's age each time it is returned as a hit.
// Without it the TTL runs from the last Set.
func WithRefreshOnHit() BoundedOption {
	return func(o *boundedOptions) { o.refreshOnHit = true }
}

// WithSweepInterval starts a goroutine that drops expired entries every d.
// Close stops it.
func WithSweepInterval(d time.Duration) BoundedOption {
	return func(o *boundedOptions) { o.sweepInterval = d }
}

// BoundedCache is an in-process LRU cache with a per-entry TTL. All access
// goes through one mutex, held only for the map and list update.
type BoundedCache[V any] struct {
	capacity int
	ttl      time.Duration
	opts     boundedOptions

	mu        sync.Mutex
	items     map[string]*list.Element
	lru       *list.List // front is most recently used
	hits      int64
	misses    int64
	evictions int64

	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewBoundedCache creates a cache holding at most capacity entries, each
// valid for ttl.
func NewBoundedCache[V any](capacity int, ttl time.Duration, opts ...BoundedOption) *BoundedCache[V] {
	if capacity <= 0 {
		capacity = 100
	}
	if ttl <= 0 {
		ttl = 300 * time.Second
	}

	o := boundedOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &BoundedCache[V]{
		capacity: capacity,
		ttl:      ttl,
		opts:     o,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
		stopCh:   make(chan struct{}),
	}

	if o.sweepInterval > 0 {
		go c.sweep(o.sweepInterval)
	}

	return c
}

// Get returns the value for key if present and younger than the TTL.
// An expired entry is removed and counted as an eviction.
func (c *BoundedCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	element, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	item := element.Value.(*boundedItem[V])
	now := c.opts.now()
	if now.Sub(item.storedAt) >= c.ttl {
		c.removeElement(element)
		c.evictions++
		return zero, false
	}

	c.lru.MoveToFront(element)
	if c.opts.refreshOnHit {
		item.storedAt = now
	}
	c.hits++
	return item.value, true
}

// Set inserts or replaces key and marks it most recently used, evicting the
// least recently used entries while over capacity.
func (c *BoundedCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.now()
	if element, ok := c.items[key]; ok {
		item := element.Value.(*boundedItem[V])
		item.value = value
		item.storedAt = now
		c.lru.MoveToFront(element)
		return
	}

	c.items[key] = c.lru.PushFront(&boundedItem[V]{key: key, value: value, storedAt: now})

	for c.lru.Len() > c.capacity {
		c.removeElement(c.lru.Back())
		c.evictions++
	}
}

// Delete removes key if present.
func (c *BoundedCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		c.removeElement(element)
	}
}

// Contains reports whether key holds an unexpired entry. It does not touch
// recency or the counters.
func (c *BoundedCache[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}
	return c.opts.now().Sub(element.Value.(*boundedItem[V]).storedAt) < c.ttl
}

// Capacity returns the entry limit.
func (c *BoundedCache[V]) Capacity() int {
	return c.capacity
}

// Purge drops every entry. Counters are kept.
func (c *BoundedCache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.capacity)
	c.lru.Init()
}

// Len returns the number of entries, expired ones included until touched.
func (c *BoundedCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the counters.
func (c *BoundedCache[V]) Stats() BoundedStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return BoundedStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.lru.Len(),
		Capacity:  c.capacity,
	}
}

// Close stops the sweeper, if any.
func (c *BoundedCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })
	return nil
}

// caller holds mu
func (c *BoundedCache[V]) removeElement(element *list.Element) {
	item := element.Value.(*boundedItem[V])
	c.lru.Remove(element)
	delete(c.items, item.key)
}

func (c *BoundedCache[V]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *BoundedCache[V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.now()
	// ages are not ordered by recency
	for element := c.lru.Back(); element != nil; {
		prev := element.Prev()
		if now.Sub(element.Value.(*boundedItem[V]).storedAt) >= c.ttl {
			c.removeElement(element)
			c.evictions++
		}
		element = prev
	}
}
