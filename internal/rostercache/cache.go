// Package rostercache holds fetched rosters for the duration of a
// reconciliation run so that matching many candidates against one platform
// costs a single network fetch. It is not a persistent cache: every run
// starts cold unless explicitly warmed.
package rostercache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
)

// FetchFunc retrieves a roster on a cache miss.
type FetchFunc func(ctx context.Context) ([]roster.Member, error)

type entry struct {
	members   []roster.Member
	fetchedAt time.Time
}

// Cache is a read-through roster cache keyed by scope key
// (e.g. "org-uuid/jira"). Safe for concurrent use; concurrent misses on the
// same key share one fetch.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Get returns the cached roster for key, if present.
func (c *Cache) Get(key string) ([]roster.Member, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.members, ok
}

// GetOrFetch returns the cached roster for key, fetching and storing it on a
// miss. Failed fetches are not cached; the next call retries.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) ([]roster.Member, error) {
	if members, ok := c.Get(key); ok {
		return members, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if members, ok := c.Get(key); ok {
			return members, nil
		}

		members, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.Warm(key, members)
		return members, nil
	})

	if err != nil {
		return nil, err
	}
	return v.([]roster.Member), nil
}

// Warm stores a roster for key, replacing any existing entry.
func (c *Cache) Warm(key string, members []roster.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{members: members, fetchedAt: time.Now()}
}

// FetchedAt returns when the roster for key was stored.
func (c *Cache) FetchedAt(key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.fetchedAt, ok
}

// Invalidate removes the entry for key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll removes every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of cached rosters.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
