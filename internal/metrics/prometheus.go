package metrics

import (
	"fmt"
	"net/http"
	"time"
)

// PrometheusHandler returns an http.HandlerFunc that writes metrics in
// Prometheus text exposition format (version 0.0.4). It does not require
// the Prometheus client library; metrics are formatted manually.
func PrometheusHandler(collector *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := collector.Stats()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		uptimeSeconds := time.Since(collector.startTime).Seconds()

		writeMetric(w, "metagen_requests_total",
			"Total number of analysis requests handled.",
			"counter", stats.TotalRequests)

		writeMetric(w, "metagen_tokens_in_total",
			"Total number of regular input tokens sent to the provider.",
			"counter", stats.TokensIn)

		writeMetric(w, "metagen_tokens_out_total",
			"Total number of output tokens received from the provider.",
			"counter", stats.TokensOut)

		writeMetric(w, "metagen_cache_write_tokens_total",
			"Total number of prompt-cache write tokens.",
			"counter", stats.CacheWriteTokens)

		writeMetric(w, "metagen_cache_read_tokens_total",
			"Total number of prompt-cache read tokens.",
			"counter", stats.CacheReadTokens)

		writeMetricFloat(w, "metagen_cost_usd_total",
			"Total provider cost in USD.",
			"counter", stats.CostUSD)

		writeMetricFloat(w, "metagen_saved_cost_usd_total",
			"Estimated provider cost avoided by caching and deduplication, in USD.",
			"counter", stats.SavedCostUSD)

		writeMetric(w, "metagen_cache_hits_total",
			"Total number of response cache hits.",
			"counter", stats.CacheHits)

		writeMetric(w, "metagen_cache_misses_total",
			"Total number of response cache misses.",
			"counter", stats.CacheMisses)

		writeMetricFloat(w, "metagen_cache_hit_rate",
			"Response cache hit rate percentage.",
			"gauge", stats.CacheHitRate)

		writeMetric(w, "metagen_dedup_hits_total",
			"Total number of requests absorbed by the deduplicator.",
			"counter", stats.DedupHits)

		writeMetric(w, "metagen_provider_errors_total",
			"Total number of failed provider calls.",
			"counter", stats.ProviderErrors)

		writeMetric(w, "metagen_active_requests",
			"Number of requests currently being processed.",
			"gauge", stats.ActiveRequests)

		writeMetricFloat(w, "metagen_uptime_seconds",
			"Number of seconds since the service started.",
			"gauge", uptimeSeconds)
	}
}

// writeMetric writes a single integer metric in Prometheus text format.
func writeMetric(w http.ResponseWriter, name, help, metricType string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

// writeMetricFloat writes a single float64 metric in Prometheus text format.
func writeMetricFloat(w http.ResponseWriter, name, help, metricType string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %g\n", name, value)
}
