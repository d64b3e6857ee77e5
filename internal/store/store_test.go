package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesToLatest(t *testing.T) {
	s := openTestStore(t)
	v, err := s.currentVersion()
	if err != nil {
		t.Fatalf("currentVersion: %v", err)
	}
	if v != migrations[len(migrations)-1].Version {
		t.Errorf("version = %d, want %d", v, migrations[len(migrations)-1].Version)
	}
}

func TestCache_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	entry := &CacheEntry{
		Fingerprint:  "abc123",
		Endpoint:     "analyze-article",
		Model:        "claude-sonnet-4-20250514",
		ResponseBody: []byte(`{"titles":["t"]}`),
		CreatedAt:    now.Format(time.RFC3339),
		ExpiresAt:    now.Add(time.Hour).Format(time.RFC3339),
	}
	if err := s.SetCache(entry); err != nil {
		t.Fatalf("SetCache: %v", err)
	}

	got, err := s.GetCache("abc123")
	if err != nil {
		t.Fatalf("GetCache: %v", err)
	}
	if string(got.ResponseBody) != `{"titles":["t"]}` {
		t.Errorf("unexpected body: %s", got.ResponseBody)
	}
	if got.Endpoint != "analyze-article" {
		t.Errorf("endpoint = %q", got.Endpoint)
	}
}

func TestCache_MissingFingerprint(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetCache("nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestCache_DeleteExpired(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	expired := &CacheEntry{
		Fingerprint:  "old",
		Endpoint:     "analyze-article",
		Model:        "m",
		ResponseBody: []byte("{}"),
		CreatedAt:    now.Add(-2 * time.Hour).Format(time.RFC3339),
		ExpiresAt:    now.Add(-time.Hour).Format(time.RFC3339),
	}
	fresh := &CacheEntry{
		Fingerprint:  "new",
		Endpoint:     "analyze-article",
		Model:        "m",
		ResponseBody: []byte("{}"),
		CreatedAt:    now.Format(time.RFC3339),
		ExpiresAt:    now.Add(time.Hour).Format(time.RFC3339),
	}
	if err := s.SetCache(expired); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCache(fresh); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteExpiredCache()
	if err != nil {
		t.Fatalf("DeleteExpiredCache: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d rows, want 1", n)
	}
	if _, err := s.GetCache("new"); err != nil {
		t.Errorf("fresh entry should survive: %v", err)
	}
}

func TestCache_IncrementHit(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	entry := &CacheEntry{
		Fingerprint:  "hit",
		Endpoint:     "analyze-article",
		Model:        "m",
		ResponseBody: []byte("{}"),
		CreatedAt:    now.Format(time.RFC3339),
		ExpiresAt:    now.Add(time.Hour).Format(time.RFC3339),
	}
	if err := s.SetCache(entry); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrementCacheHit("hit"); err != nil {
		t.Fatalf("IncrementCacheHit: %v", err)
	}
	got, err := s.GetCache("hit")
	if err != nil {
		t.Fatal(err)
	}
	if got.HitCount != 1 {
		t.Errorf("hit_count = %d, want 1", got.HitCount)
	}
	if !got.LastHit.Valid {
		t.Error("last_hit should be set")
	}
}

func TestRequests_InsertAndStats(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	reqs := []*Request{
		{
			ID: "r1", Timestamp: now.Format(time.RFC3339), Endpoint: "analyze-article",
			ClientID: "1.2.3.4", Model: "claude-sonnet-4-20250514",
			InputTokens: 1000, OutputTokens: 500, ActualCostUSD: 0.0105,
			EstimatedCostUSD: 0.011, LatencyMs: 850, StatusCode: 200,
		},
		{
			ID: "r2", Timestamp: now.Format(time.RFC3339), Endpoint: "analyze-article-full",
			ClientID: "1.2.3.4", Model: "claude-sonnet-4-20250514",
			CacheHit: true, StatusCode: 200,
		},
	}
	for _, r := range reqs {
		if err := s.InsertRequest(r); err != nil {
			t.Fatalf("InsertRequest: %v", err)
		}
	}

	stats, err := s.GetRequestStats(now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("GetRequestStats: %v", err)
	}
	if stats.TotalRequests != 2 {
		t.Errorf("total = %d, want 2", stats.TotalRequests)
	}
	if stats.TotalInputTokens != 1000 {
		t.Errorf("input tokens = %d, want 1000", stats.TotalInputTokens)
	}
	if stats.CacheHits != 1 {
		t.Errorf("cache hits = %d, want 1", stats.CacheHits)
	}
	if stats.ByEndpoint["analyze-article"] != 1 {
		t.Errorf("endpoint counts = %v", stats.ByEndpoint)
	}
}

func TestRequests_StatsSinceExcludesOld(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().UTC().Add(-48 * time.Hour)

	if err := s.InsertRequest(&Request{
		ID: "old1", Timestamp: old.Format(time.RFC3339), Endpoint: "analyze-article",
		Model: "m", StatusCode: 200,
	}); err != nil {
		t.Fatal(err)
	}

	stats, err := s.GetRequestStats(time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRequests != 0 {
		t.Errorf("expected old record excluded, got %d", stats.TotalRequests)
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().UTC().AddDate(0, 0, -120)

	if err := s.InsertRequest(&Request{
		ID: "ancient", Timestamp: old.Format(time.RFC3339), Endpoint: "analyze-article",
		Model: "m", StatusCode: 200,
	}); err != nil {
		t.Fatal(err)
	}

	n, err := s.Prune(90)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
}
