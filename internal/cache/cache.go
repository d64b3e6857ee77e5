// Package cache implements the response cache for analysis results: a
// two-tier store (in-memory LRU plus a persistent backend) keyed by request
// fingerprint, with lazy TTL enforcement on lookup.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// Entry is a cached analysis result with expiry metadata.
type Entry struct {
	Body      []byte    `json:"body"`
	Endpoint  string    `json:"endpoint"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired returns true if the entry has passed its expiration time.
func (e *Entry) Expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Backend is the persistence interface for cached responses. The SQLite
// implementation lives in the store package.
type Backend interface {
	GetCache(fingerprint string) (*Entry, error)
	SetCache(fingerprint string, entry *Entry) error
	DeleteExpired() (int64, error)
}

// Stats is a snapshot of the cache hit/miss counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// HitRate returns hits/(hits+misses), or 0 when the cache has not been
// consulted yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// ResponseCache maps request fingerprints to previously computed analysis
// results. Lookups past an entry's TTL miss and evict; concurrent misses
// for the same fingerprint may each invoke the expensive path, which is
// accepted: the provider call is idempotent and the second writer simply
// overwrites the first with an equivalent value.
type ResponseCache struct {
	memory  *lru.Cache[string, *Entry]
	backend Backend
	ttl     time.Duration
	enabled bool

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a ResponseCache.
//
//   - backend is the persistent tier (may be nil for memory-only).
//   - ttlSeconds is the time-to-live for new entries.
//   - maxMemoryEntries bounds the in-memory LRU tier.
//   - enabled controls whether the cache is active; a disabled cache
//     always misses and never stores.
func New(backend Backend, ttlSeconds, maxMemoryEntries int, enabled bool) (*ResponseCache, error) {
	if maxMemoryEntries <= 0 {
		maxMemoryEntries = 1000
	}

	memCache, err := lru.New[string, *Entry](maxMemoryEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: creating LRU: %w", err)
	}

	return &ResponseCache{
		memory:  memCache,
		backend: backend,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: enabled,
	}, nil
}

// Enabled reports whether the cache is active.
func (c *ResponseCache) Enabled() bool {
	return c.enabled
}

// TTL returns the configured time-to-live for new entries.
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// Get looks up a fingerprint. An entry whose age exceeds its TTL is
// treated as a miss and evicted. Hits and misses update the counters
// exposed through CacheStats.
func (c *ResponseCache) Get(fingerprint string) (*Entry, bool) {
	if !c.enabled {
		return nil, false
	}

	// Tier 1: in-memory LRU.
	if entry, ok := c.memory.Get(fingerprint); ok {
		if !entry.Expired() {
			c.hits.Add(1)
			return entry, true
		}
		c.memory.Remove(fingerprint)
	}

	// Tier 2: persistent backend.
	if c.backend != nil {
		entry, err := c.backend.GetCache(fingerprint)
		if err == nil && entry != nil && !entry.Expired() {
			// Promote to the memory tier.
			c.memory.Add(fingerprint, entry)
			c.hits.Add(1)
			return entry, true
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Put stores a result under the fingerprint with the configured TTL.
func (c *ResponseCache) Put(fingerprint, endpoint, model string, body []byte) {
	if !c.enabled {
		return
	}

	now := time.Now()
	entry := &Entry{
		Body:      body,
		Endpoint:  endpoint,
		Model:     model,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.memory.Add(fingerprint, entry)

	if c.backend != nil {
		if err := c.backend.SetCache(fingerprint, entry); err != nil {
			log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("cache: persistent store write failed")
		}
	}
}

// CacheStats returns the current hit/miss counters.
func (c *ResponseCache) CacheStats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// StartPurger starts a background goroutine that periodically purges
// expired entries from the persistent backend and the memory tier. It
// runs every 5 minutes until the context is cancelled. The returned
// channel is closed when the goroutine exits, so callers can synchronize
// shutdown before closing the backend.
func (c *ResponseCache) StartPurger(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Msg("cache purger: recovered from panic")
						}
					}()
					c.purge()
				}()
			}
		}
	}()
	return done
}

// purge removes expired entries from both tiers.
func (c *ResponseCache) purge() {
	if c.backend != nil {
		if _, err := c.backend.DeleteExpired(); err != nil {
			log.Warn().Err(err).Msg("cache purger: backend purge failed")
		}
	}

	for _, key := range c.memory.Keys() {
		if entry, ok := c.memory.Peek(key); ok && entry.Expired() {
			c.memory.Remove(key)
		}
	}
}
