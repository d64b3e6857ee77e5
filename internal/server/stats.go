package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// usageStats is the payload for GET /api/usage-stats.
type usageStats struct {
	Period           string           `json:"period"`
	TotalRequests    int64            `json:"totalRequests"`
	InputTokens      int64            `json:"inputTokens"`
	OutputTokens     int64            `json:"outputTokens"`
	CacheWriteTokens int64            `json:"cacheWriteTokens"`
	CacheReadTokens  int64            `json:"cacheReadTokens"`
	EstimatedCostUSD float64          `json:"estimatedCostUSD"`
	ActualCostUSD    float64          `json:"actualCostUSD"`
	CacheHits        int64            `json:"cacheHits"`
	DedupHits        int64            `json:"dedupHits"`
	CacheHitRate     float64          `json:"cacheHitRate"`
	AverageLatencyMs float64          `json:"averageLatencyMs"`
	RequestsByRoute  map[string]int64 `json:"requestsByRoute,omitempty"`
}

// HandleUsageStats serves GET /api/usage-stats?period=&format=.
func (h *AnalyzeHandler) HandleUsageStats(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "all"
	}
	since, ok := periodStart(period, time.Now().UTC())
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid period (want today, week, month, or all)")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "markdown" {
		writeJSONError(w, http.StatusBadRequest, "invalid format (want json or markdown)")
		return
	}

	stats := h.gatherStats(period, since)

	if format == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(renderMarkdown(stats)))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// gatherStats aggregates from the persistent usage log when available,
// falling back to the in-memory collector for storeless deployments.
func (h *AnalyzeHandler) gatherStats(period string, since time.Time) *usageStats {
	out := &usageStats{Period: period}

	if h.store != nil {
		if agg, err := h.store.GetRequestStats(since); err == nil {
			out.TotalRequests = agg.TotalRequests
			out.InputTokens = agg.TotalInputTokens
			out.OutputTokens = agg.TotalOutputTokens
			out.CacheWriteTokens = agg.TotalCacheCreation
			out.CacheReadTokens = agg.TotalCacheRead
			out.EstimatedCostUSD = agg.TotalEstimatedCost
			out.ActualCostUSD = agg.TotalActualCost
			out.CacheHits = agg.CacheHits
			out.DedupHits = agg.DedupHits
			out.AverageLatencyMs = agg.AverageLatencyMs
			out.RequestsByRoute = agg.ByEndpoint
			if out.TotalRequests > 0 {
				out.CacheHitRate = float64(out.CacheHits) / float64(out.TotalRequests) * 100
			}
			return out
		}
		h.logger.Warn().Msg("usage-stats aggregation query failed, using in-memory counters")
	}

	snap := h.collector.Stats()
	out.TotalRequests = snap.TotalRequests
	out.InputTokens = snap.TokensIn
	out.OutputTokens = snap.TokensOut
	out.CacheWriteTokens = snap.CacheWriteTokens
	out.CacheReadTokens = snap.CacheReadTokens
	out.ActualCostUSD = snap.CostUSD
	out.CacheHits = snap.CacheHits
	out.DedupHits = snap.DedupHits
	out.CacheHitRate = snap.CacheHitRate
	return out
}

// periodStart maps a period name to its lower time bound. The zero time
// means no bound.
func periodStart(period string, now time.Time) (time.Time, bool) {
	switch period {
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, 0, -30), true
	case "all":
		return time.Time{}, true
	default:
		return time.Time{}, false
	}
}

func renderMarkdown(s *usageStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Usage statistics (%s)\n\n", s.Period)
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Requests | %d |\n", s.TotalRequests)
	fmt.Fprintf(&b, "| Input tokens | %d |\n", s.InputTokens)
	fmt.Fprintf(&b, "| Output tokens | %d |\n", s.OutputTokens)
	fmt.Fprintf(&b, "| Cache write tokens | %d |\n", s.CacheWriteTokens)
	fmt.Fprintf(&b, "| Cache read tokens | %d |\n", s.CacheReadTokens)
	fmt.Fprintf(&b, "| Estimated cost (USD) | %.6f |\n", s.EstimatedCostUSD)
	fmt.Fprintf(&b, "| Actual cost (USD) | %.6f |\n", s.ActualCostUSD)
	fmt.Fprintf(&b, "| Cache hits | %d |\n", s.CacheHits)
	fmt.Fprintf(&b, "| Dedup hits | %d |\n", s.DedupHits)
	fmt.Fprintf(&b, "| Cache hit rate | %.1f%% |\n", s.CacheHitRate)
	fmt.Fprintf(&b, "| Average latency (ms) | %.1f |\n", s.AverageLatencyMs)

	if len(s.RequestsByRoute) > 0 {
		b.WriteString("\n## Requests by endpoint\n\n| Endpoint | Requests |\n|---|---|\n")
		for endpoint, count := range s.RequestsByRoute {
			fmt.Fprintf(&b, "| %s | %d |\n", endpoint, count)
		}
	}
	return b.String()
}
