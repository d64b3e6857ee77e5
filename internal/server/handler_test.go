package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/notefolio/metagen/internal/cache"
	"github.com/notefolio/metagen/internal/config"
	"github.com/notefolio/metagen/internal/experiment"
	"github.com/notefolio/metagen/internal/gateway"
	"github.com/notefolio/metagen/internal/metrics"
	"github.com/notefolio/metagen/internal/prompt"
	"github.com/notefolio/metagen/internal/ratelimit"
	"github.com/notefolio/metagen/internal/testutil"
	"github.com/notefolio/metagen/internal/tokenbudget"
)

// mockProvider returns a canned completion and counts invocations.
type mockProvider struct {
	mu      sync.Mutex
	calls   int
	content string
	err     error
}

func (m *mockProvider) GenerateCompletion(ctx context.Context, req *gateway.Request) (*gateway.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &gateway.Response{
		Content: m.content,
		Usage:   tokenbudget.NewUsage(req.Model, 1000, 200, 0, 0),
		Metadata: gateway.Metadata{
			RequestID:  "msg_mock",
			Model:      req.Model,
			StopReason: "end_turn",
		},
	}, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func fullResultJSON() string {
	tags := make([]string, 20)
	for i := range tags {
		tags[i] = fmt.Sprintf("#tag%d", i+1)
	}
	body, _ := json.Marshal(map[string]any{
		"titles":          []string{"Title A", "Title B"},
		"hashtags":        tags,
		"summary":         "A short summary.",
		"eyecatchPrompts": []string{"p1", "p2", "p3"},
		"seoScore":        70,
		"viralityScore":   55,
	})
	return string(body)
}

func newTestHandler(t *testing.T, provider gateway.Provider) (*AnalyzeHandler, *config.Config) {
	t.Helper()
	cfg := testutil.NewTestConfig(t)

	respCache, err := cache.New(nil, cfg.Cache.TTLSeconds, cfg.Cache.MaxMemoryEntries, cfg.Cache.Enabled)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}

	h := NewAnalyzeHandler(
		respCache,
		ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMs)*time.Millisecond),
		ratelimit.NewDeduplicator(time.Duration(cfg.Dedup.TTLSeconds)*time.Second),
		tokenbudget.NewAllocator(cfg.Limits.MinOutputTokens, cfg.Limits.MaxTokensPerRequest),
		tokenbudget.NewEstimator(),
		prompt.NewRegistry(cfg.Prompts.Profile, cfg.Prompts.DefaultVersion, cfg.Prompts.DefaultLanguage),
		experiment.NewManager(),
		provider,
		metrics.NewCollector(),
		nil,
		zerolog.Nop(),
	)
	return h, cfg
}

func analyzeReq(t *testing.T, article, clientID string) *http.Request {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"articleText": article})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze-article-full", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	return req
}

func TestHandleAnalyzeSuccess(t *testing.T) {
	provider := &mockProvider{content: fullResultJSON()}
	h, _ := newTestHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, "A long enough article body about Go services.", "c1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Titles   []string `json:"titles"`
		Hashtags []string `json:"hashtags"`
		Meta     struct {
			Cached     bool    `json:"cached"`
			ActualCost float64 `json:"actualCost"`
			TokensUsed int     `json:"tokensUsed"`
		} `json:"_metadata"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Hashtags) != 20 {
		t.Errorf("hashtags = %d, want 20", len(resp.Hashtags))
	}
	if resp.Meta.Cached {
		t.Error("fresh response tagged cached")
	}
	if resp.Meta.ActualCost <= 0 {
		t.Error("actual cost missing from metadata")
	}
	if resp.Meta.TokensUsed != 1200 {
		t.Errorf("tokensUsed = %d, want 1200", resp.Meta.TokensUsed)
	}
}

func TestHandleAnalyzeRejectsMissingText(t *testing.T) {
	h, _ := newTestHandler(t, &mockProvider{content: fullResultJSON()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze-article-full", strings.NewReader(`{}`))
	h.HandleAnalyze(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleAnalyzeRejectsOversizeArticle(t *testing.T) {
	provider := &mockProvider{content: fullResultJSON()}
	h, cfg := newTestHandler(t, provider)

	article := strings.Repeat("a", cfg.Limits.MaxArticleLength+1)
	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, article, "c1"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if provider.callCount() != 0 {
		t.Error("provider called for oversize article")
	}
}

func TestHandleAnalyzeRateLimited(t *testing.T) {
	provider := &mockProvider{content: fullResultJSON()}
	h, cfg := newTestHandler(t, provider)
	cfg.RateLimit.MaxRequests = 5
	h.limiter = ratelimit.NewLimiter(5, time.Minute)

	// Distinct articles so neither cache nor dedup absorbs the calls.
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeReq(t, fmt.Sprintf("article number %d", i), "heavy-user"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, "article number 6", "heavy-user"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 missing Retry-After")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}

	// Other clients are unaffected.
	rec = httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, "another article", "other-user"))
	if rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", rec.Code)
	}
}

func TestHandleAnalyzeDeduplicates(t *testing.T) {
	provider := &mockProvider{content: fullResultJSON()}
	h, _ := newTestHandler(t, provider)

	first := httptest.NewRecorder()
	h.HandleAnalyze(first, analyzeReq(t, "the same article", "dupe-client"))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.HandleAnalyze(second, analyzeReq(t, "the same article", "dupe-client"))
	if second.Code != http.StatusOK {
		t.Fatalf("second request: status = %d", second.Code)
	}

	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount())
	}

	var resp struct {
		Meta struct {
			Cached        bool `json:"cached"`
			Deduplication bool `json:"deduplication"`
		} `json:"_metadata"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Meta.Cached || !resp.Meta.Deduplication {
		t.Errorf("metadata = %+v, want cached and deduplication", resp.Meta)
	}
}

func TestHandleAnalyzeCacheIsGlobal(t *testing.T) {
	provider := &mockProvider{content: fullResultJSON()}
	h, _ := newTestHandler(t, provider)

	first := httptest.NewRecorder()
	h.HandleAnalyze(first, analyzeReq(t, "a widely shared article", "client-a"))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", first.Code)
	}

	// A different client sending the same article hits the cache, so
	// dedup (client-scoped) cannot be what absorbed it.
	second := httptest.NewRecorder()
	h.HandleAnalyze(second, analyzeReq(t, "a widely shared article", "client-b"))
	if second.Code != http.StatusOK {
		t.Fatalf("second request: status = %d", second.Code)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount())
	}

	var resp struct {
		Meta struct {
			Cached        bool `json:"cached"`
			Deduplication bool `json:"deduplication"`
		} `json:"_metadata"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Meta.Cached || resp.Meta.Deduplication {
		t.Errorf("metadata = %+v, want cache hit without dedup", resp.Meta)
	}
}

func TestHandleAnalyzeNormalizesCosmeticDifferences(t *testing.T) {
	provider := &mockProvider{content: fullResultJSON()}
	h, _ := newTestHandler(t, provider)

	first := httptest.NewRecorder()
	h.HandleAnalyze(first, analyzeReq(t, "Some article   with spacing", "c1"))

	second := httptest.NewRecorder()
	h.HandleAnalyze(second, analyzeReq(t, "  Some article with spacing  ", "c2"))

	if provider.callCount() != 1 {
		t.Errorf("provider called %d times for cosmetically identical inputs, want 1", provider.callCount())
	}
}

func TestHandleAnalyzeProviderRateLimit(t *testing.T) {
	provider := &mockProvider{err: &gateway.RateLimitError{RetryAfter: 9 * time.Second, Err: fmt.Errorf("429")}}
	h, _ := newTestHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, "an article", "c1"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "9" {
		t.Errorf("Retry-After = %q, want 9", rec.Header().Get("Retry-After"))
	}
}

func TestHandleAnalyzeParseFailure(t *testing.T) {
	provider := &mockProvider{content: "Sorry, I cannot analyze this."}
	h, _ := newTestHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, "an article", "c1"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Sorry, I cannot") {
		t.Error("raw model output leaked to the caller")
	}
}

func TestHandleAnalyzeLenientNormalization(t *testing.T) {
	// Model under-produces hashtags; lenient mode pads to the contract.
	body, _ := json.Marshal(map[string]any{
		"titles":          []string{"One"},
		"hashtags":        []string{"#only", "#two"},
		"summary":         strings.Repeat("x", 300),
		"eyecatchPrompts": []string{"p"},
		"seoScore":        50,
		"viralityScore":   50,
	})
	provider := &mockProvider{content: string(body)}
	h, _ := newTestHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, "an article", "c1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Hashtags []string `json:"hashtags"`
		Summary  string   `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Hashtags) != 20 {
		t.Errorf("hashtags = %d, want padded to 20", len(resp.Hashtags))
	}
	if got := len([]rune(resp.Summary)); got > 100 {
		t.Errorf("summary runes = %d, want at most 100", got)
	}
}

func TestHandleAnalyzeStrictNormalization(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"titles":   []string{"One"},
		"hashtags": []string{"#only"},
	})
	provider := &mockProvider{content: string(body)}
	h, cfg := newTestHandler(t, provider)
	cfg.Prompts.LenientOutput = false

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, "an article", "c1"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 in strict mode", rec.Code)
	}
}

func TestHandleUsageStatsInvalidPeriod(t *testing.T) {
	h, _ := newTestHandler(t, &mockProvider{content: fullResultJSON()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/usage-stats?period=year", nil)
	h.HandleUsageStats(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleUsageStatsMarkdown(t *testing.T) {
	provider := &mockProvider{content: fullResultJSON()}
	h, _ := newTestHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, "an article", "c1"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/usage-stats?period=all&format=markdown", nil)
	h.HandleUsageStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "| Requests | 1 |") {
		t.Errorf("markdown missing request count:\n%s", rec.Body.String())
	}
}

func TestHandleUsageStatsWithStore(t *testing.T) {
	provider := &mockProvider{content: fullResultJSON()}
	h, _ := newTestHandler(t, provider)
	h.store = testutil.NewTestStore(t)

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, analyzeReq(t, "an article", "c1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleUsageStats(rec, httptest.NewRequest(http.MethodGet, "/api/usage-stats?period=today", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}

	var stats usageStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", stats.TotalRequests)
	}
	if stats.ActualCostUSD <= 0 {
		t.Error("ActualCostUSD missing from persisted stats")
	}
}

func TestServerRoutes(t *testing.T) {
	provider := &mockProvider{content: fullResultJSON()}
	h, _ := newTestHandler(t, provider)
	srv := NewServer(h, metrics.NewCollector(), "127.0.0.1:0", 0, 0, 0, false)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
}
