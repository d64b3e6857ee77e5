package metrics

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/notefolio/metagen/internal/tokenbudget"
)

func TestNewCollector_Defaults(t *testing.T) {
	c := NewCollector()

	stats := c.Stats()
	if stats.TotalRequests != 0 {
		t.Errorf("TotalRequests: got %d, want 0", stats.TotalRequests)
	}
	if stats.CostUSD != 0 {
		t.Errorf("CostUSD: got %f, want 0", stats.CostUSD)
	}
	if stats.ActiveRequests != 0 {
		t.Errorf("ActiveRequests: got %d, want 0", stats.ActiveRequests)
	}
}

func TestCollector_RecordCall(t *testing.T) {
	c := NewCollector()

	c.RecordCall(&tokenbudget.Usage{
		InputTokens:              100,
		OutputTokens:             200,
		CacheCreationInputTokens: 30,
		CacheReadInputTokens:     70,
		TotalCostUSD:             0.0125,
	})

	stats := c.Stats()
	if stats.TotalRequests != 1 {
		t.Errorf("TotalRequests: got %d, want 1", stats.TotalRequests)
	}
	if stats.TokensIn != 100 {
		t.Errorf("TokensIn: got %d, want 100", stats.TokensIn)
	}
	if stats.TokensOut != 200 {
		t.Errorf("TokensOut: got %d, want 200", stats.TokensOut)
	}
	if stats.CacheWriteTokens != 30 || stats.CacheReadTokens != 70 {
		t.Errorf("cache tokens: got %d/%d, want 30/70", stats.CacheWriteTokens, stats.CacheReadTokens)
	}
	if math.Abs(stats.CostUSD-0.0125) > 1e-12 {
		t.Errorf("CostUSD: got %v, want 0.0125", stats.CostUSD)
	}
}

func TestCollector_CacheAndDedupHits(t *testing.T) {
	c := NewCollector()

	c.RecordCacheHit(0.01)
	c.RecordCacheMiss()
	c.RecordDedupHit(0.02)

	stats := c.Stats()
	if stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Errorf("cache counters: got %d/%d, want 1/1", stats.CacheHits, stats.CacheMisses)
	}
	if stats.CacheHitRate != 50 {
		t.Errorf("CacheHitRate: got %v, want 50", stats.CacheHitRate)
	}
	if stats.DedupHits != 1 {
		t.Errorf("DedupHits: got %d, want 1", stats.DedupHits)
	}
	if math.Abs(stats.SavedCostUSD-0.03) > 1e-12 {
		t.Errorf("SavedCostUSD: got %v, want 0.03", stats.SavedCostUSD)
	}
}

func TestCollector_ActiveRequests(t *testing.T) {
	c := NewCollector()

	c.IncrementActive()
	c.IncrementActive()
	c.DecrementActive()

	if got := c.Stats().ActiveRequests; got != 1 {
		t.Errorf("ActiveRequests: got %d, want 1", got)
	}
}

func TestCollector_ConcurrentUpdates(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordCall(&tokenbudget.Usage{InputTokens: 1, OutputTokens: 1, TotalCostUSD: 0.001})
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	if stats.TotalRequests != 5000 {
		t.Errorf("TotalRequests: got %d, want 5000", stats.TotalRequests)
	}
	if math.Abs(stats.CostUSD-5.0) > 1e-6 {
		t.Errorf("CostUSD: got %v, want 5.0", stats.CostUSD)
	}
}

func TestPrometheusHandler(t *testing.T) {
	c := NewCollector()
	c.RecordCall(&tokenbudget.Usage{InputTokens: 10, OutputTokens: 5, TotalCostUSD: 0.001})
	c.RecordCacheHit(0.001)

	rec := httptest.NewRecorder()
	PrometheusHandler(c)(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type: %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"metagen_requests_total 2",
		"metagen_tokens_in_total 10",
		"metagen_cache_hits_total 1",
		"# TYPE metagen_cache_hit_rate gauge",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
