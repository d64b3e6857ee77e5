// Package metrics tracks live service counters and exposes them in
// Prometheus text format and as a JSON snapshot.
package metrics

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/notefolio/metagen/internal/tokenbudget"
)

// Collector tracks live metrics using atomic counters for lock-free,
// concurrent-safe updates. It provides an in-memory real-time view of
// request throughput, token usage by tier, cost, and cache performance.
type Collector struct {
	totalRequests       int64
	totalTokensIn       int64
	totalTokensOut      int64
	totalCacheWriteToks int64
	totalCacheReadToks  int64

	// Float64 counters stored as uint64 via math.Float64bits/Float64frombits.
	totalCostUSD uint64
	savedCostUSD uint64

	cacheHits   int64
	cacheMisses int64
	dedupHits   int64

	providerErrors int64

	activeRequests int64

	startTime time.Time
}

// Stats is a point-in-time snapshot of the collector's counters,
// suitable for JSON serialisation.
type Stats struct {
	Uptime           string  `json:"uptime"`
	TotalRequests    int64   `json:"total_requests"`
	TokensIn         int64   `json:"tokens_in"`
	TokensOut        int64   `json:"tokens_out"`
	CacheWriteTokens int64   `json:"cache_write_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	SavedCostUSD     float64 `json:"saved_cost_usd"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	DedupHits        int64   `json:"dedup_hits"`
	ProviderErrors   int64   `json:"provider_errors"`
	ActiveRequests   int64   `json:"active_requests"`
}

// NewCollector creates a Collector with all counters at zero and the
// start time set to now.
func NewCollector() *Collector {
	return &Collector{
		startTime:    time.Now(),
		totalCostUSD: math.Float64bits(0),
		savedCostUSD: math.Float64bits(0),
	}
}

// RecordCall atomically updates the counters from a completed provider
// call's usage record.
func (c *Collector) RecordCall(usage *tokenbudget.Usage) {
	atomic.AddInt64(&c.totalRequests, 1)
	if usage == nil {
		return
	}
	atomic.AddInt64(&c.totalTokensIn, int64(usage.InputTokens))
	atomic.AddInt64(&c.totalTokensOut, int64(usage.OutputTokens))
	atomic.AddInt64(&c.totalCacheWriteToks, int64(usage.CacheCreationInputTokens))
	atomic.AddInt64(&c.totalCacheReadToks, int64(usage.CacheReadInputTokens))
	addFloat64(&c.totalCostUSD, usage.TotalCostUSD)
}

// RecordCacheHit counts a response served from the response cache.
// avoidedCostUSD is the estimated provider cost the hit avoided.
func (c *Collector) RecordCacheHit(avoidedCostUSD float64) {
	atomic.AddInt64(&c.totalRequests, 1)
	atomic.AddInt64(&c.cacheHits, 1)
	addFloat64(&c.savedCostUSD, avoidedCostUSD)
}

// RecordCacheMiss counts a cache lookup that missed.
func (c *Collector) RecordCacheMiss() {
	atomic.AddInt64(&c.cacheMisses, 1)
}

// RecordDedupHit counts a response served from the deduplicator.
func (c *Collector) RecordDedupHit(avoidedCostUSD float64) {
	atomic.AddInt64(&c.totalRequests, 1)
	atomic.AddInt64(&c.dedupHits, 1)
	addFloat64(&c.savedCostUSD, avoidedCostUSD)
}

// RecordProviderError counts a failed provider call.
func (c *Collector) RecordProviderError() {
	atomic.AddInt64(&c.totalRequests, 1)
	atomic.AddInt64(&c.providerErrors, 1)
}

// IncrementActive marks a request entering the handler.
func (c *Collector) IncrementActive() {
	atomic.AddInt64(&c.activeRequests, 1)
}

// DecrementActive marks a request leaving the handler, regardless of
// outcome.
func (c *Collector) DecrementActive() {
	atomic.AddInt64(&c.activeRequests, -1)
}

// Stats returns a point-in-time snapshot of all metrics.
func (c *Collector) Stats() *Stats {
	hits := atomic.LoadInt64(&c.cacheHits)
	misses := atomic.LoadInt64(&c.cacheMisses)

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return &Stats{
		Uptime:           formatDuration(time.Since(c.startTime)),
		TotalRequests:    atomic.LoadInt64(&c.totalRequests),
		TokensIn:         atomic.LoadInt64(&c.totalTokensIn),
		TokensOut:        atomic.LoadInt64(&c.totalTokensOut),
		CacheWriteTokens: atomic.LoadInt64(&c.totalCacheWriteToks),
		CacheReadTokens:  atomic.LoadInt64(&c.totalCacheReadToks),
		CostUSD:          loadFloat64(&c.totalCostUSD),
		SavedCostUSD:     loadFloat64(&c.savedCostUSD),
		CacheHitRate:     hitRate,
		CacheHits:        hits,
		CacheMisses:      misses,
		DedupHits:        atomic.LoadInt64(&c.dedupHits),
		ProviderErrors:   atomic.LoadInt64(&c.providerErrors),
		ActiveRequests:   atomic.LoadInt64(&c.activeRequests),
	}
}

// addFloat64 atomically adds delta to the float64 stored in addr using a CAS loop.
func addFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		newVal := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(newVal)) {
			return
		}
	}
}

// loadFloat64 atomically loads a float64 stored in addr.
func loadFloat64(addr *uint64) float64 {
	return math.Float64frombits(atomic.LoadUint64(addr))
}

// formatDuration produces a human-readable duration string like "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%dm", minutes))
	return strings.Join(parts, " ")
}
