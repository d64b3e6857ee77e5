package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CacheEntry represents a cached analysis response stored in the cache table.
type CacheEntry struct {
	Fingerprint  string
	Endpoint     string
	Model        string
	ResponseBody []byte
	CreatedAt    string
	ExpiresAt    string
	HitCount     int64
	LastHit      sql.NullString
}

// GetCache retrieves a cache entry by its fingerprint.
// Returns sql.ErrNoRows (wrapped) if the fingerprint does not exist.
func (s *Store) GetCache(fingerprint string) (*CacheEntry, error) {
	c := &CacheEntry{}
	err := s.reader.QueryRow(`
		SELECT fingerprint, endpoint, model, response_body,
		       created_at, expires_at, hit_count, last_hit
		FROM cache WHERE fingerprint = ?`, fingerprint,
	).Scan(
		&c.Fingerprint, &c.Endpoint, &c.Model, &c.ResponseBody,
		&c.CreatedAt, &c.ExpiresAt, &c.HitCount, &c.LastHit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get cache %s: %w", fingerprint, err)
	}
	return c, nil
}

// SetCache inserts or replaces a cache entry. If an entry with the same
// fingerprint already exists it is overwritten.
func (s *Store) SetCache(c *CacheEntry) error {
	_, err := s.writer.Exec(`
		INSERT OR REPLACE INTO cache (
			fingerprint, endpoint, model, response_body,
			created_at, expires_at, hit_count, last_hit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Fingerprint, c.Endpoint, c.Model, c.ResponseBody,
		c.CreatedAt, c.ExpiresAt, c.HitCount, c.LastHit,
	)
	if err != nil {
		return fmt.Errorf("store: set cache: %w", err)
	}
	return nil
}

// DeleteExpiredCache removes all cache entries whose expires_at timestamp
// is in the past. It returns the number of rows deleted.
func (s *Store) DeleteExpiredCache() (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.writer.Exec("DELETE FROM cache WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("store: delete expired cache: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete expired rows affected: %w", err)
	}
	return n, nil
}

// IncrementCacheHit atomically increments the hit_count for a cache
// entry and updates last_hit to the current time.
func (s *Store) IncrementCacheHit(fingerprint string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.writer.Exec(`
		UPDATE cache SET hit_count = hit_count + 1, last_hit = ?
		WHERE fingerprint = ?`, now, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("store: increment cache hit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: increment cache hit rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: increment cache hit: %w", sql.ErrNoRows)
	}
	return nil
}
