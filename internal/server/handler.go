package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/notefolio/metagen/internal/analysis"
	"github.com/notefolio/metagen/internal/cache"
	"github.com/notefolio/metagen/internal/config"
	"github.com/notefolio/metagen/internal/experiment"
	"github.com/notefolio/metagen/internal/fingerprint"
	"github.com/notefolio/metagen/internal/gateway"
	"github.com/notefolio/metagen/internal/metrics"
	"github.com/notefolio/metagen/internal/prompt"
	"github.com/notefolio/metagen/internal/ratelimit"
	"github.com/notefolio/metagen/internal/store"
	"github.com/notefolio/metagen/internal/tokenbudget"
	"github.com/notefolio/metagen/internal/tracing"
)

// endpointSpec binds a route to its prompt category and the result
// fields it contracts to produce.
type endpointSpec struct {
	category string
	fields   analysis.Fields
}

var endpoints = map[string]endpointSpec{
	"analyze-article": {
		category: "full",
		fields:   analysis.Fields{Titles: true, Hashtags: true, Summary: true},
	},
	"analyze-article-full": {
		category: "full",
		fields:   analysis.FullFields,
	},
}

// AnalyzeHandler orchestrates one analysis request through validation,
// rate limiting, deduplication, caching, token budgeting, prompt
// resolution, the provider call, and output normalization.
type AnalyzeHandler struct {
	cache       *cache.ResponseCache
	limiter     *ratelimit.Limiter
	dedup       *ratelimit.Deduplicator
	allocator   *tokenbudget.Allocator
	estimator   *tokenbudget.Estimator
	registry    *prompt.Registry
	experiments *experiment.Manager
	provider    gateway.Provider
	collector   *metrics.Collector
	store       *store.Store
	logger      zerolog.Logger
}

// NewAnalyzeHandler wires the handler's collaborators. store may be nil
// when analytics are disabled.
func NewAnalyzeHandler(
	respCache *cache.ResponseCache,
	limiter *ratelimit.Limiter,
	dedup *ratelimit.Deduplicator,
	allocator *tokenbudget.Allocator,
	estimator *tokenbudget.Estimator,
	registry *prompt.Registry,
	experiments *experiment.Manager,
	provider gateway.Provider,
	collector *metrics.Collector,
	db *store.Store,
	logger zerolog.Logger,
) *AnalyzeHandler {
	return &AnalyzeHandler{
		cache:       respCache,
		limiter:     limiter,
		dedup:       dedup,
		allocator:   allocator,
		estimator:   estimator,
		registry:    registry,
		experiments: experiments,
		provider:    provider,
		collector:   collector,
		store:       db,
		logger:      logger,
	}
}

type analyzeRequest struct {
	ArticleText string `json:"articleText"`
}

type responseMeta struct {
	Cached        bool    `json:"cached"`
	Deduplication bool    `json:"deduplication,omitempty"`
	EstimatedCost float64 `json:"estimatedCost"`
	ActualCost    float64 `json:"actualCost"`
	TokensUsed    int     `json:"tokensUsed"`
}

type analyzeResponse struct {
	*analysis.Result
	Meta responseMeta `json:"_metadata"`
}

// HandleAnalyze serves POST /api/analyze-article and
// /api/analyze-article-full.
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	h.collector.IncrementActive()
	defer h.collector.DecrementActive()

	cfg := config.Get()
	endpoint := endpointName(r.URL.Path)
	spec, ok := endpoints[endpoint]
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown endpoint")
		return
	}

	requestID := uuid.NewString()
	clientID := clientIdentity(r)
	start := time.Now()
	logger := h.logger.With().
		Str("request_id", requestID).
		Str("endpoint", endpoint).
		Str("client_id", clientID).
		Logger()

	ctx := r.Context()
	tracing.SetRequestAttributes(ctx, requestID, endpoint, clientID, 0)

	// Validating.
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ArticleText == "" {
		writeJSONError(w, http.StatusBadRequest, "articleText is required")
		return
	}
	if max := cfg.Limits.MaxArticleLength; max > 0 && len(req.ArticleText) > max {
		writeJSONError(w, http.StatusBadRequest, "article text too long")
		return
	}

	// RateLimiting.
	if cfg.RateLimit.Enabled {
		decision := h.limiter.Check(clientID)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(decision.ResetSeconds()))
		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(decision.ResetSeconds()))
			logger.Warn().Msg("rate limit exceeded")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	model := cfg.Provider.Model
	maxTokens := h.allocator.MaxTokensFor(len(req.ArticleText), endpoint)
	estCost := h.estimateCost(model, req.ArticleText, maxTokens)

	// Deduplicating.
	var dedupKey string
	if cfg.Dedup.Enabled {
		dedupKey = h.dedup.Key(clientID, endpoint, req.ArticleText)
		if body, hit := h.dedup.Check(dedupKey); hit {
			logger.Info().Msg("served from deduplicator")
			h.collector.RecordDedupHit(estCost)
			h.logRequest(logger, &store.Request{
				ID: requestID, Timestamp: start.UTC().Format(time.RFC3339),
				Endpoint: endpoint, ClientID: clientID, Model: model,
				LatencyMs: time.Since(start).Milliseconds(),
				StatusCode: http.StatusOK, DedupHit: true,
			}, cfg)
			writeStoredResult(w, body, responseMeta{Cached: true, Deduplication: true})
			return
		}
	}

	// CacheChecking.
	fp := fingerprint.Hash(endpoint, req.ArticleText)
	if entry, hit := h.cache.Get(fp); hit {
		logger.Info().Str("fingerprint", fp).Msg("served from cache")
		h.collector.RecordCacheHit(estCost)
		h.logRequest(logger, &store.Request{
			ID: requestID, Timestamp: start.UTC().Format(time.RFC3339),
			Endpoint: endpoint, ClientID: clientID, Model: model,
			LatencyMs: time.Since(start).Milliseconds(),
			StatusCode: http.StatusOK, CacheHit: true,
		}, cfg)
		writeStoredResult(w, entry.Body, responseMeta{Cached: true})
		return
	}
	if h.cache.Enabled() {
		h.collector.RecordCacheMiss()
	}

	// PromptResolving.
	tpl, expID, variantID, err := h.resolvePrompt(spec.category, clientID, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("prompt resolution failed")
		writeJSONError(w, http.StatusInternalServerError, "no prompt available for this endpoint")
		return
	}
	if tpl.MaxTokens > 0 && tpl.MaxTokens < maxTokens {
		maxTokens = tpl.MaxTokens
	}

	// Calling.
	callCtx, span := tracing.StartProviderSpan(ctx, model)
	resp, err := h.provider.GenerateCompletion(callCtx, &gateway.Request{
		SystemPrompt: tpl.SystemPrompt,
		UserPrompt:   tpl.Render(map[string]string{"articleText": req.ArticleText}),
		Model:        model,
		MaxTokens:    maxTokens,
		Temperature:  tpl.Temperature,
	})
	if err != nil {
		tracing.RecordError(callCtx, err)
		span.End()
		h.collector.RecordProviderError()
		status, message := providerErrorStatus(w, err)
		logger.Error().Err(err).Int("status", status).Msg("provider call failed")
		h.logRequest(logger, &store.Request{
			ID: requestID, Timestamp: start.UTC().Format(time.RFC3339),
			Endpoint: endpoint, ClientID: clientID, Model: model,
			EstimatedCostUSD: estCost,
			LatencyMs:        time.Since(start).Milliseconds(),
			StatusCode:       status, ErrorMessage: err.Error(),
			PromptID: tpl.ID, ExperimentID: expID, VariantID: variantID,
		}, cfg)
		writeJSONError(w, status, message)
		return
	}
	span.End()

	// Parsing.
	result, err := analysis.Parse(resp.Content)
	if err != nil {
		var pe *analysis.ParseError
		if errors.As(err, &pe) {
			logger.Error().Err(err).Str("raw_output", pe.Raw).Msg("model output parse failed")
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to parse analysis output")
		return
	}

	// Validating-Output.
	if err := analysis.Normalize(result, spec.fields, cfg.Prompts.LenientOutput); err != nil {
		logger.Error().Err(err).Msg("model output failed validation")
		writeJSONError(w, http.StatusInternalServerError, "analysis output failed validation")
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode analysis result")
		return
	}

	// Caching.
	h.cache.Put(fp, endpoint, model, body)
	if cfg.Dedup.Enabled {
		h.dedup.Record(dedupKey, body)
	}

	usage := resp.Usage
	h.collector.RecordCall(&usage)
	tracing.SetOutcomeAttributes(ctx, http.StatusOK,
		int64(usage.InputTokens), int64(usage.OutputTokens), false, false)

	h.logRequest(logger, &store.Request{
		ID: requestID, Timestamp: start.UTC().Format(time.RFC3339),
		Endpoint: endpoint, ClientID: clientID, Model: model,
		InputTokens:         int64(usage.InputTokens),
		OutputTokens:        int64(usage.OutputTokens),
		CacheCreationTokens: int64(usage.CacheCreationInputTokens),
		CacheReadTokens:     int64(usage.CacheReadInputTokens),
		EstimatedCostUSD:    estCost,
		ActualCostUSD:       usage.TotalCostUSD,
		LatencyMs:           time.Since(start).Milliseconds(),
		StatusCode:          http.StatusOK,
		PromptID:            tpl.ID, ExperimentID: expID, VariantID: variantID,
	}, cfg)

	logger.Info().
		Int("tokens_in", usage.InputTokens).
		Int("tokens_out", usage.OutputTokens).
		Float64("cost_usd", usage.TotalCostUSD).
		Dur("latency", time.Since(start)).
		Msg("analysis completed")

	// Responding.
	writeJSON(w, http.StatusOK, analyzeResponse{
		Result: result,
		Meta: responseMeta{
			EstimatedCost: estCost,
			ActualCost:    usage.TotalCostUSD,
			TokensUsed:    usage.TotalTokens(),
		},
	})
}

// resolvePrompt picks the template for a category, preferring an active
// experiment's variant assignment for this client.
func (h *AnalyzeHandler) resolvePrompt(category, clientID string, cfg *config.Config) (*prompt.Template, string, string, error) {
	if h.experiments != nil {
		if exp := h.experiments.ActiveForCategory(category); exp != nil {
			variant, err := h.experiments.SelectVariant(exp.ID, clientID)
			if err == nil {
				return variant.Prompt, exp.ID, variant.ID, nil
			}
			h.logger.Warn().Err(err).Str("experiment_id", exp.ID).Msg("variant selection failed, using registry")
		}
	}

	tpl, err := h.registry.Get(category, prompt.GetOptions{
		Version:  cfg.Prompts.DefaultVersion,
		Language: cfg.Prompts.DefaultLanguage,
	})
	if err != nil {
		return nil, "", "", err
	}
	return tpl, "", "", nil
}

// estimateCost predicts the provider cost of a call before making it,
// assuming the full output budget is consumed and no prompt caching.
func (h *AnalyzeHandler) estimateCost(model, article string, maxTokens int) float64 {
	tokensIn := h.estimator.CountTokens(model, article)
	return tokenbudget.EstimateCost(model, tokensIn, maxTokens)
}

// logRequest persists a usage record when analytics are enabled.
func (h *AnalyzeHandler) logRequest(logger zerolog.Logger, rec *store.Request, cfg *config.Config) {
	if h.store == nil || !cfg.Analytics.Enabled {
		return
	}
	if err := h.store.InsertRequest(rec); err != nil {
		logger.Warn().Err(err).Msg("failed to persist usage record")
	}
}

// HandleHealth serves liveness probes.
func (h *AnalyzeHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// HandleReady serves readiness probes: the service is ready when its
// store (if configured) answers a ping.
func (h *AnalyzeHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// providerErrorStatus maps a gateway error to an HTTP status and caller
// message, setting Retry-After for provider rate limits.
func providerErrorStatus(w http.ResponseWriter, err error) (int, string) {
	var rle *gateway.RateLimitError
	if errors.As(err, &rle) {
		if rle.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter/time.Second)))
		}
		return http.StatusTooManyRequests, "provider rate limit exceeded"
	}
	if errors.Is(err, gateway.ErrCircuitOpen) {
		return http.StatusServiceUnavailable, "provider temporarily unavailable"
	}
	var pe *gateway.ProviderError
	if errors.As(err, &pe) && pe.StatusCode > 0 {
		return pe.StatusCode, "provider request failed"
	}
	return http.StatusInternalServerError, "provider request failed"
}

func endpointName(path string) string {
	const prefix = "/api/"
	if len(path) > len(prefix) {
		return path[len(prefix):]
	}
	return path
}

// clientIdentity derives the rate-limit/dedup identity for a request:
// an explicit X-Client-ID header when present, the remote address
// otherwise.
func clientIdentity(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	return r.RemoteAddr
}

// writeStoredResult replays a cached analysis body with fresh metadata.
func writeStoredResult(w http.ResponseWriter, body []byte, meta responseMeta) {
	var result analysis.Result
	if err := json.Unmarshal(body, &result); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "corrupt cached result")
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Result: &result, Meta: meta})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	data, _ := json.Marshal(v)
	_, _ = w.Write(data)
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "analysis_error",
		},
	}
	data, _ := json.Marshal(resp)
	_, _ = w.Write(data)
}
