package config

import (
	"encoding/json"
	"sync"
	"time"
)

// Cached wraps a Store with a small read cache. Entries expire after ttl and every write through
// the wrapper invalidates the whole cache. Writes made behind the wrapper's back become visible
// after at most ttl.
type Cached struct {
	next Store
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	gen     uint64 // bumped by Invalidate
	entries map[string]cacheEntry
}

type cacheEntry struct {
	raw     json.RawMessage
	present bool
	at      time.Time
}

var _ Store = (*Cached)(nil)

// NewCached returns a caching wrapper around next.
func NewCached(next Store, ttl time.Duration) *Cached {
	return &Cached{next: next, ttl: ttl, now: time.Now, entries: map[string]cacheEntry{}}
}

// Get implements Store. A value read from the underlying store is cached only if no write went
// through the wrapper while it was being read.
func (c *Cached) Get(key string, dst any) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	gen := c.gen
	c.mu.Unlock()
	if ok && c.now().Sub(e.at) < c.ttl {
		if !e.present {
			return false, nil
		}
		return true, json.Unmarshal(e.raw, dst)
	}

	var raw json.RawMessage
	present, err := c.next.Get(key, &raw)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.entries[key] = cacheEntry{raw: raw, present: present, at: c.now()}
	}
	c.mu.Unlock()
	if !present {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

// Set implements Store.
func (c *Cached) Set(key string, v any) error {
	defer c.Invalidate()
	return c.next.Set(key, v)
}

// SetMany implements Store.
func (c *Cached) SetMany(kv map[string]any) error {
	defer c.Invalidate()
	return c.next.SetMany(kv)
}

// Delete implements Store.
func (c *Cached) Delete(keys ...string) error {
	defer c.Invalidate()
	return c.next.Delete(keys...)
}

// Invalidate drops every cached entry.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.entries = map[string]cacheEntry{}
	c.mu.Unlock()
}
