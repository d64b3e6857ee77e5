package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/notefolio/metagen/internal/fingerprint"
)

type dedupEntry struct {
	body      []byte
	recorded  time.Time
	expiresAt time.Time
}

// Deduplicator suppresses identical requests from the same client within
// a short horizon, returning the previously computed result instead of
// repeating the provider call. Keys combine the client identity with the
// normalized request content, so two clients sending the same article are
// not deduplicated against each other.
type Deduplicator struct {
	mu      sync.Mutex
	entries map[string]*dedupEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewDeduplicator creates a Deduplicator with the given TTL.
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		entries: make(map[string]*dedupEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key derives the dedup key for a client's request against an endpoint.
func (d *Deduplicator) Key(clientID, endpoint, payload string) string {
	h := sha256.New()
	h.Write([]byte(clientID))
	h.Write([]byte{0})
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint.Normalize(payload)))
	return hex.EncodeToString(h.Sum(nil))
}

// Check returns the stored result for the key if an identical request
// completed within the TTL. Expired entries are evicted on lookup.
func (d *Deduplicator) Check(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[key]
	if !ok {
		return nil, false
	}
	if d.now().After(e.expiresAt) {
		delete(d.entries, key)
		return nil, false
	}
	return e.body, true
}

// Record stores a completed result under the key for the dedup horizon.
// Only successful responses should be recorded; failures must stay
// retryable immediately.
func (d *Deduplicator) Record(key string, body []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.entries[key] = &dedupEntry{
		body:      body,
		recorded:  now,
		expiresAt: now.Add(d.ttl),
	}
}

// Prune evicts expired entries.
func (d *Deduplicator) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for k, e := range d.entries {
		if now.After(e.expiresAt) {
			delete(d.entries, k)
			removed++
		}
	}
	return removed
}
