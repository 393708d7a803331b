package cache

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// Cache provides thread-safe in-memory storage with an idle TTL. Reading an
// entry through Get refreshes its deadline.
type Cache[V any] struct {
	entries map[string]*Entry[V]
	mutex   sync.RWMutex
	ttl     time.Duration
	onEvict func(key string, value V)
	now     func() time.Time
}

// Entry represents a cached item with metadata
type Entry[V any] struct {
	Key        string
	Value      V
	CreatedAt  time.Time
	LastAccess time.Time
	ExpiresAt  time.Time
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithEvictCallback is invoked, outside the cache lock, for every entry removed
// by expiry, Delete or Clear.
func WithEvictCallback[V any](fn func(key string, value V)) Option[V] {
	return func(c *Cache[V]) {
		c.onEvict = fn
	}
}

// WithClock overrides time.Now, for tests
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// NewCache creates a new in-memory cache whose entries expire after ttl of inactivity
func NewCache[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]*Entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key, replacing any previous entry
func (c *Cache[V]) Set(key string, value V) {
	now := c.now()
	entry := &Entry[V]{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		LastAccess: now,
		ExpiresAt:  now.Add(c.ttl),
	}

	c.mutex.Lock()
	old, replaced := c.entries[key]
	c.entries[key] = entry
	c.mutex.Unlock()

	if replaced {
		c.evicted(old)
	}
}

// SetBounded stores value under key unless the cache already holds max
// entries. Expired entries are swept first so they do not count against the
// bound. A max of zero or less means unbounded. Reports whether value was stored.
func (c *Cache[V]) SetBounded(key string, value V, max int) bool {
	now := c.now()
	entry := &Entry[V]{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		LastAccess: now,
		ExpiresAt:  now.Add(c.ttl),
	}

	c.mutex.Lock()
	var removed []*Entry[V]
	if max > 0 && len(c.entries) >= max {
		for k, e := range c.entries {
			if now.After(e.ExpiresAt) {
				delete(c.entries, k)
				removed = append(removed, e)
			}
		}
	}
	old, replaced := c.entries[key]
	stored := max <= 0 || replaced || len(c.entries) < max
	if stored {
		c.entries[key] = entry
	}
	c.mutex.Unlock()

	for _, e := range removed {
		c.evicted(e)
	}
	if stored && replaced {
		c.evicted(old)
	}
	return stored
}

// Get returns the value for key if present and not expired, and extends its deadline
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	now := c.now()
	if !exists || now.After(entry.ExpiresAt) {
		var zero V
		return zero, false
	}

	entry.LastAccess = now
	entry.ExpiresAt = now.Add(c.ttl)
	return entry.Value, true
}

// Delete removes an entry from cache
func (c *Cache[V]) Delete(key string) bool {
	c.mutex.Lock()
	entry, exists := c.entries[key]
	delete(c.entries, key)
	c.mutex.Unlock()

	if exists {
		c.evicted(entry)
	}
	return exists
}

// Clear removes all entries from cache
func (c *Cache[V]) Clear() {
	c.mutex.Lock()
	old := c.entries
	c.entries = make(map[string]*Entry[V])
	c.mutex.Unlock()

	for _, entry := range old {
		c.evicted(entry)
	}
}

// Values returns the live values
func (c *Cache[V]) Values() []V {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	values := make([]V, 0, len(c.entries))
	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			continue
		}
		values = append(values, entry.Value)
	}
	return values
}

// Len returns the number of stored entries
func (c *Cache[V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() Stats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	stats := Stats{
		TotalEntries: len(c.entries),
	}

	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			stats.StaleEntries++
		} else {
			stats.FreshEntries++
		}

		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.CreatedAt
		}
	}

	return stats
}

// CleanupStale removes all expired entries and returns how many were removed
func (c *Cache[V]) CleanupStale() int {
	c.mutex.Lock()
	now := c.now()
	var removed []*Entry[V]
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			removed = append(removed, entry)
		}
	}
	c.mutex.Unlock()

	for _, entry := range removed {
		c.evicted(entry)
	}
	return len(removed)
}

// StartPeriodicCleanup starts a goroutine that periodically cleans up stale
// entries until ctx is cancelled. report, if non-nil, receives each non-zero
// sweep count. A panic during one sweep is logged and the next sweep still runs.
func (c *Cache[V]) StartPeriodicCleanup(ctx context.Context, interval time.Duration, report func(removed int)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(ctx, report)
			}
		}
	}()
}

func (c *Cache[V]) sweep(ctx context.Context, report func(removed int)) {
	defer func() {
		// Recover from any panics in the cache cleanup goroutine
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Cache cleanup: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	if removed := c.CleanupStale(); removed > 0 && report != nil {
		report(removed)
	}
}

func (c *Cache[V]) evicted(entry *Entry[V]) {
	if c.onEvict != nil {
		c.onEvict(entry.Key, entry.Value)
	}
}

// Stats provides cache usage statistics
type Stats struct {
	TotalEntries int       `json:"total_entries"`
	FreshEntries int       `json:"fresh_entries"`
	StaleEntries int       `json:"stale_entries"`
	OldestEntry  time.Time `json:"oldest_entry,omitzero"`
	NewestEntry  time.Time `json:"newest_entry,omitzero"`
}
