// ABOUTME: Thread-safe TTL cache with request coalescing for expensive lookups
// ABOUTME: Concurrent callers for the same key share one in-flight fetch

package cache

import (
	"context"
	"sync"
	"time"
)

// entry stores a cached value and its expiry.
type entry[V any] struct {
	value   V
	expires time.Time
}

// inflight tracks one shared fetch. Waiters block on done and then read
// value/err.
type inflight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Cache provides a thread-safe, TTL-based cache with request coalescing:
// concurrent Get calls for the same missing key trigger exactly one fetch,
// and every caller receives its result. Fetch errors are not cached.
type Cache[V any] struct {
	mu       sync.Mutex
	entries  map[string]entry[V]
	inflight map[string]*inflight[V]
	ttl      time.Duration
	done     chan struct{}
	closed   bool
}

// New creates a cache whose entries live for ttl. A background goroutine
// periodically removes expired entries.
func New[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		entries:  make(map[string]entry[V]),
		inflight: make(map[string]*inflight[V]),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the cached value for key, or runs fetch to populate it. When a
// fetch for the same key is already running, the caller waits for that fetch
// instead of starting another.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	c.mu.Lock()

	if e, ok := c.entries[key]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		return e.value, nil
	}

	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.value, f.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	f := &inflight[V]{done: make(chan struct{})}
	c.inflight[key] = f
	c.mu.Unlock()

	f.value, f.err = fetch(ctx)
	close(f.done)

	c.mu.Lock()
	delete(c.inflight, key)
	if f.err == nil {
		c.entries[key] = entry[V]{value: f.value, expires: time.Now().Add(c.ttl)}
	}
	c.mu.Unlock()

	return f.value, f.err
}

// Invalidate removes a key from the cache.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache[V]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
