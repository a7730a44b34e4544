// Package cache provides a simple in-memory TTL cache and the locally
// persisted price cache built on top of it.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value    T
	storedAt time.Time
}

// Entry is an exported snapshot of a cached value.
type Entry[T any] struct {
	Value    T
	StoredAt time.Time
}

type config struct {
	now     func() time.Time
	cleanup bool
}

// Option configures an InMemory cache.
type Option func(*config)

// WithClock replaces time.Now as the cache's notion of the current time.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithoutCleanup disables the background eviction goroutine.
func WithoutCleanup() Option {
	return func(c *config) {
		c.cleanup = false
	}
}

// InMemory is a thread-safe in-memory cache with TTL.
// An entry is fresh while now - storedAt < ttl.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

// New creates a new in-memory cache with the given TTL.
func New[T any](ttl time.Duration, opts ...Option) *InMemory[T] {
	cfg := config{now: time.Now, cleanup: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
		now:   cfg.now,
		done:  make(chan struct{}),
	}
	if cfg.cleanup && ttl > 0 {
		go c.cleanup()
	}
	return c
}

// TTL returns the freshness window.
func (c *InMemory[T]) TTL() time.Duration {
	return c.ttl
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || c.expired(e, c.now()) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores a value in the cache, stamped with the current time.
func (c *InMemory[T]) Set(key string, value T) {
	c.SetAt(key, value, c.now())
}

// SetAt stores a value as if it had been stored at storedAt.
func (c *InMemory[T]) SetAt(key string, value T, storedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{value: value, storedAt: storedAt}
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Fresh returns a snapshot of every unexpired entry.
func (c *InMemory[T]) Fresh() map[string]Entry[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make(map[string]Entry[T], len(c.items))
	for k, e := range c.items {
		if !c.expired(e, now) {
			out[k] = Entry[T]{Value: e.value, StoredAt: e.storedAt}
		}
	}
	return out
}

// Close stops the background cleanup goroutine.
func (c *InMemory[T]) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *InMemory[T]) expired(e entry[T], now time.Time) bool {
	return now.Sub(e.storedAt) >= c.ttl
}

// cleanup periodically removes expired entries.
func (c *InMemory[T]) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for k, v := range c.items {
				if c.expired(v, now) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
