// Package gateway wraps the Anthropic Messages API behind a validated,
// retried, circuit-broken completion call, and normalizes provider
// usage into four-tier cost records.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"

	"github.com/notefolio/metagen/internal/config"
	"github.com/notefolio/metagen/internal/tokenbudget"
)

// Request describes one completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Metadata carries per-call provider details attached to a Response.
type Metadata struct {
	RequestID  string `json:"request_id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	LatencyMs  int64  `json:"latency_ms"`
}

// Response is a completed provider call.
type Response struct {
	Content  string
	Usage    tokenbudget.Usage
	Metadata Metadata
}

// Provider is the completion interface the orchestrator depends on.
type Provider interface {
	GenerateCompletion(ctx context.Context, req *Request) (*Response, error)
}

// Service calls the Anthropic Messages API. Retries and the circuit
// breaker are handled here; the SDK's own retry loop is disabled so the
// breaker sees every failure.
type Service struct {
	cfg     config.ProviderConfig
	breaker *CircuitBreaker

	// newMessage issues one Messages API call. Swapped in tests.
	newMessage func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

var _ Provider = (*Service)(nil)

// New creates a Service from the provider configuration.
func New(cfg config.ProviderConfig) *Service {
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	)
	return &Service{
		cfg: cfg,
		breaker: NewCircuitBreaker(
			cfg.CBFailureThreshold,
			time.Duration(cfg.CBResetTimeoutSec)*time.Second,
			cfg.CBHalfOpenMax,
		),
		newMessage: func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
			return client.Messages.New(ctx, params)
		},
	}
}

// BreakerState returns the current circuit breaker state.
func (s *Service) BreakerState() CBState {
	return s.breaker.State()
}

// GenerateCompletion validates the request, then calls the provider with
// retry and circuit breaking. A deadline derived from the configured
// provider timeout bounds each attempt.
func (s *Service) GenerateCompletion(ctx context.Context, req *Request) (*Response, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	params := s.buildParams(req)

	var lastErr error
	attempts := s.cfg.RetryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt, lastErr)
			log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("gateway: retrying provider call")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("gateway: waiting to retry: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if !s.breaker.Allow() {
			return nil, ErrCircuitOpen
		}

		resp, err := s.attempt(ctx, params, req.Model)
		if err == nil {
			s.breaker.RecordSuccess()
			return resp, nil
		}

		s.breaker.RecordFailure()
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (s *Service) validate(req *Request) error {
	if req.UserPrompt == "" {
		return &ValidationError{Field: "prompt", Err: errors.New("user prompt is empty")}
	}
	if req.MaxTokens <= 0 || req.MaxTokens > tokenbudget.ProviderMaxOutputTokens {
		return &ValidationError{
			Field: "max_tokens",
			Err:   fmt.Errorf("%d outside (0, %d]", req.MaxTokens, tokenbudget.ProviderMaxOutputTokens),
		}
	}
	if req.Temperature < 0 || req.Temperature > 1 {
		return &ValidationError{
			Field: "temperature",
			Err:   fmt.Errorf("%g outside [0, 1]", req.Temperature),
		}
	}
	if _, ok := tokenbudget.GetPricing(req.Model); !ok {
		return &ValidationError{Field: "model", Err: fmt.Errorf("unknown model %q", req.Model)}
	}
	return nil
}

func (s *Service) buildParams(req *Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		block := anthropic.TextBlockParam{Text: req.SystemPrompt}
		if s.cfg.PromptCaching {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}
	return params
}

// attempt runs a single provider call under the configured timeout.
func (s *Service) attempt(ctx context.Context, params anthropic.MessageNewParams, model string) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.TimeoutDuration())
	defer cancel()

	start := time.Now()
	msg, err := s.newMessage(callCtx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, classify(err)
	}

	if len(msg.Content) == 0 {
		return nil, &ProviderError{Err: errors.New("empty content in provider response")}
	}
	block := msg.Content[0]
	if block.Type != "text" {
		return nil, &ProviderError{Err: fmt.Errorf("unexpected content block type %q", block.Type)}
	}

	usage := tokenbudget.NewUsage(
		model,
		int(msg.Usage.InputTokens),
		int(msg.Usage.OutputTokens),
		int(msg.Usage.CacheCreationInputTokens),
		int(msg.Usage.CacheReadInputTokens),
	)

	return &Response{
		Content: block.Text,
		Usage:   usage,
		Metadata: Metadata{
			RequestID:  msg.ID,
			Model:      model,
			StopReason: string(msg.StopReason),
			LatencyMs:  latency.Milliseconds(),
		},
	}, nil
}

// backoff computes the delay before the given retry attempt, using
// exponential backoff from the configured base, capped at the configured
// maximum. A provider Retry-After larger than the computed delay wins.
func (s *Service) backoff(attempt int, lastErr error) time.Duration {
	base := time.Duration(s.cfg.RetryBaseDelayMs) * time.Millisecond
	maxDelay := time.Duration(s.cfg.RetryMaxDelayMs) * time.Millisecond

	delay := base << (attempt - 1)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	var rle *RateLimitError
	if errors.As(lastErr, &rle) && rle.RetryAfter > delay {
		delay = rle.RetryAfter
		if maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
		}
	}
	return delay
}

// classify maps an SDK error into the gateway error taxonomy.
func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 {
			return &RateLimitError{RetryAfter: retryAfter(apierr), Err: err}
		}
		return &ProviderError{StatusCode: apierr.StatusCode, Err: err}
	}
	// Timeouts and transport failures carry no provider status.
	return &ProviderError{Err: err}
}

// retryAfter extracts a Retry-After delay in seconds from the provider
// response, when present.
func retryAfter(apierr *anthropic.Error) time.Duration {
	if apierr.Response == nil {
		return 0
	}
	header := apierr.Response.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryable reports whether an error is worth another attempt: provider
// rate limits, 5xx responses, and transport failures. Client-side 4xx
// errors are final.
func retryable(err error) bool {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode == 0 || pe.StatusCode >= 500
	}
	return false
}
