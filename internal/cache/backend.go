package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notefolio/metagen/internal/store"
)

// StoreBackend adapts a SQLite store to the Backend interface, converting
// between the cache's time.Time fields and the store's RFC3339 columns.
type StoreBackend struct {
	db *store.Store
}

var _ Backend = (*StoreBackend)(nil)

// NewStoreBackend wraps a store as a cache backend.
func NewStoreBackend(db *store.Store) *StoreBackend {
	return &StoreBackend{db: db}
}

func (b *StoreBackend) GetCache(fingerprint string) (*Entry, error) {
	row, err := b.db.GetCache(fingerprint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("cache: parsing created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339, row.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("cache: parsing expires_at: %w", err)
	}

	// Hit accounting on the row is best-effort; a failed update does not
	// invalidate the read.
	_ = b.db.IncrementCacheHit(fingerprint)

	return &Entry{
		Body:      row.ResponseBody,
		Endpoint:  row.Endpoint,
		Model:     row.Model,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (b *StoreBackend) SetCache(fingerprint string, entry *Entry) error {
	return b.db.SetCache(&store.CacheEntry{
		Fingerprint:  fingerprint,
		Endpoint:     entry.Endpoint,
		Model:        entry.Model,
		ResponseBody: entry.Body,
		CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:    entry.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (b *StoreBackend) DeleteExpired() (int64, error) {
	return b.db.DeleteExpiredCache()
}
