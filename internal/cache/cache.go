// Package cache memoizes generation results by content key and deduplicates
// in-flight work.
//
// A [Cache] maps a key to a [Handle]. The first [Cache.Submit] for a key
// inserts the handle atomically and starts the producer; every later Submit
// for the same key returns that handle, so the producer never runs twice while
// an entry is live. A failed entry is evicted, letting the next submission
// retry. Successful entries are kept until the cache is discarded.
package cache

import (
	"context"
	"sync"
)

// Producer computes the value for one key.
type Producer[V any] func() (V, error)

// Handle is a future for one cache entry.
type Handle[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Wait blocks until the entry is resolved or ctx is done. Every waiter on the
// same handle observes the same value and error.
func (h *Handle[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the entry resolves.
func (h *Handle[V]) Done() <-chan struct{} { return h.done }

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is a concurrent key to future map. The zero value is not usable; call
// [New].
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*Handle[V]
	stats   Stats

	run     func(func())
	onEvent func(hit bool)
}

// Option configures a [Cache].
type Option func(*options)

type options struct {
	run     func(func())
	onEvent func(hit bool)
}

// WithRunner sets how producers are started. The runner must eventually call
// the function it receives. The default starts a goroutine.
func WithRunner(run func(func())) Option {
	return func(o *options) { o.run = run }
}

// WithObserver registers fn to be called on every Submit with whether the key
// was already present. fn must not call back into the cache.
func WithObserver(fn func(hit bool)) Option {
	return func(o *options) { o.onEvent = fn }
}

// New returns an empty cache.
func New[V any](opts ...Option) *Cache[V] {
	o := options{run: func(f func()) { go f() }}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		entries: make(map[string]*Handle[V]),
		run:     o.run,
		onEvent: o.onEvent,
	}
}

// Submit returns the handle for key, starting produce if no live entry exists.
func (c *Cache[V]) Submit(key string, produce Producer[V]) *Handle[V] {
	return c.SubmitPrepared(key, func() Producer[V] { return produce })
}

// SubmitPrepared is Submit for producers that claim resources in submission
// order. prepare runs in the calling goroutine, and only when key has no live
// entry; the producer it returns is then started by the runner.
func (c *Cache[V]) SubmitPrepared(key string, prepare func() Producer[V]) *Handle[V] {
	c.mu.Lock()
	if h, ok := c.entries[key]; ok {
		c.stats.Hits++
		c.mu.Unlock()
		c.observe(true)
		return h
	}
	h := &Handle[V]{done: make(chan struct{})}
	c.entries[key] = h
	c.stats.Misses++
	c.mu.Unlock()
	c.observe(false)

	produce := prepare()
	c.run(func() {
		v, err := produce()
		if err != nil {
			c.evict(key, h)
		}
		h.value, h.err = v, err
		close(h.done)
	})
	return h
}

// Get returns the live handle for key, if any.
func (c *Cache[V]) Get(key string) (*Handle[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.entries[key]
	return h, ok
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the hit, miss and eviction counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// evict removes key only if it still maps to h. A newer entry inserted after
// h failed is left alone.
func (c *Cache[V]) evict(key string, h *Handle[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[key] == h {
		delete(c.entries, key)
		c.stats.Evictions++
	}
}

func (c *Cache[V]) observe(hit bool) {
	if c.onEvent != nil {
		c.onEvent(hit)
	}
}
