package store

import (
	"fmt"
	"time"
)

// Request is a single usage-log record for an analysis request.
type Request struct {
	ID                  string
	Timestamp           string
	Endpoint            string
	ClientID            string
	Model               string
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
	EstimatedCostUSD    float64
	ActualCostUSD       float64
	LatencyMs           int64
	StatusCode          int
	CacheHit            bool
	DedupHit            bool
	ErrorMessage        string
	PromptID            string
	ExperimentID        string
	VariantID           string
}

// RequestStats holds aggregate usage statistics for a time range.
type RequestStats struct {
	TotalRequests       int64
	TotalInputTokens    int64
	TotalOutputTokens   int64
	TotalCacheCreation  int64
	TotalCacheRead      int64
	TotalEstimatedCost  float64
	TotalActualCost     float64
	CacheHits           int64
	DedupHits           int64
	AverageLatencyMs    float64
	ByEndpoint          map[string]int64
}

// InsertRequest stores a new usage record. The caller provides a unique
// ID (typically a UUID).
func (s *Store) InsertRequest(r *Request) error {
	_, err := s.writer.Exec(`
		INSERT INTO requests (
			id, timestamp, endpoint, client_id, model,
			input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens,
			estimated_cost_usd, actual_cost_usd, latency_ms, status_code,
			cache_hit, dedup_hit, error_message,
			prompt_id, experiment_id, variant_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp, r.Endpoint, r.ClientID, r.Model,
		r.InputTokens, r.OutputTokens, r.CacheCreationTokens, r.CacheReadTokens,
		r.EstimatedCostUSD, r.ActualCostUSD, r.LatencyMs, r.StatusCode,
		boolToInt(r.CacheHit), boolToInt(r.DedupHit), r.ErrorMessage,
		r.PromptID, r.ExperimentID, r.VariantID,
	)
	if err != nil {
		return fmt.Errorf("store: insert request: %w", err)
	}
	return nil
}

// GetRequest retrieves a single usage record by its ID.
func (s *Store) GetRequest(id string) (*Request, error) {
	r := &Request{}
	var cacheHitInt, dedupHitInt int

	err := s.reader.QueryRow(`
		SELECT id, timestamp, endpoint, client_id, model,
		       input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens,
		       estimated_cost_usd, actual_cost_usd, latency_ms, status_code,
		       cache_hit, dedup_hit, error_message,
		       prompt_id, experiment_id, variant_id
		FROM requests WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.Timestamp, &r.Endpoint, &r.ClientID, &r.Model,
		&r.InputTokens, &r.OutputTokens, &r.CacheCreationTokens, &r.CacheReadTokens,
		&r.EstimatedCostUSD, &r.ActualCostUSD, &r.LatencyMs, &r.StatusCode,
		&cacheHitInt, &dedupHitInt, &r.ErrorMessage,
		&r.PromptID, &r.ExperimentID, &r.VariantID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get request %s: %w", id, err)
	}

	r.CacheHit = cacheHitInt != 0
	r.DedupHit = dedupHitInt != 0
	return r, nil
}

// GetRequestStats computes aggregate statistics for all requests whose
// timestamp is >= since. Pass the zero time to aggregate everything.
func (s *Store) GetRequestStats(since time.Time) (*RequestStats, error) {
	sinceStr := since.UTC().Format(time.RFC3339)
	stats := &RequestStats{ByEndpoint: make(map[string]int64)}

	err := s.reader.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cache_creation_tokens), 0),
			COALESCE(SUM(cache_read_tokens), 0),
			COALESCE(SUM(estimated_cost_usd), 0),
			COALESCE(SUM(actual_cost_usd), 0),
			COALESCE(SUM(cache_hit), 0),
			COALESCE(SUM(dedup_hit), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM requests WHERE timestamp >= ?`, sinceStr,
	).Scan(
		&stats.TotalRequests,
		&stats.TotalInputTokens,
		&stats.TotalOutputTokens,
		&stats.TotalCacheCreation,
		&stats.TotalCacheRead,
		&stats.TotalEstimatedCost,
		&stats.TotalActualCost,
		&stats.CacheHits,
		&stats.DedupHits,
		&stats.AverageLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("store: request stats: %w", err)
	}

	rows, err := s.reader.Query(`
		SELECT endpoint, COUNT(*)
		FROM requests WHERE timestamp >= ?
		GROUP BY endpoint`, sinceStr,
	)
	if err != nil {
		return nil, fmt.Errorf("store: request stats by endpoint: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var endpoint string
		var count int64
		if err := rows.Scan(&endpoint, &count); err != nil {
			return nil, fmt.Errorf("store: scan endpoint stats: %w", err)
		}
		stats.ByEndpoint[endpoint] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: endpoint stats iteration: %w", err)
	}

	return stats, nil
}

// ListRequests returns a page of usage records ordered by timestamp
// descending.
func (s *Store) ListRequests(limit, offset int) ([]*Request, error) {
	rows, err := s.reader.Query(`
		SELECT id, timestamp, endpoint, client_id, model,
		       input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens,
		       estimated_cost_usd, actual_cost_usd, latency_ms, status_code,
		       cache_hit, dedup_hit, error_message,
		       prompt_id, experiment_id, variant_id
		FROM requests
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list requests: %w", err)
	}
	defer rows.Close()

	var results []*Request
	for rows.Next() {
		r := &Request{}
		var cacheHitInt, dedupHitInt int
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Endpoint, &r.ClientID, &r.Model,
			&r.InputTokens, &r.OutputTokens, &r.CacheCreationTokens, &r.CacheReadTokens,
			&r.EstimatedCostUSD, &r.ActualCostUSD, &r.LatencyMs, &r.StatusCode,
			&cacheHitInt, &dedupHitInt, &r.ErrorMessage,
			&r.PromptID, &r.ExperimentID, &r.VariantID,
		); err != nil {
			return nil, fmt.Errorf("store: scan request row: %w", err)
		}
		r.CacheHit = cacheHitInt != 0
		r.DedupHit = dedupHitInt != 0
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list requests iteration: %w", err)
	}
	return results, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
