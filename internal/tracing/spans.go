package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartStageSpan creates a child span for one orchestration stage
// (cache lookup, prompt resolution, output validation, and so on).
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "analyze."+stage,
		trace.WithAttributes(attribute.String("analyze.stage", stage)),
	)
}

// StartProviderSpan creates a client span around the outbound LLM call.
func StartProviderSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "provider.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider.model", model)),
	)
}

// SetRequestAttributes adds request-level attributes to the current span.
func SetRequestAttributes(ctx context.Context, requestID, endpoint, clientID string, articleLen int) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.endpoint", endpoint),
		attribute.String("request.client_id", clientID),
		attribute.Int("request.article_length", articleLen),
	)
}

// SetOutcomeAttributes adds outcome attributes to the current span.
func SetOutcomeAttributes(ctx context.Context, statusCode int, tokensIn, tokensOut int64, cacheHit, dedupHit bool) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("response.status_code", statusCode),
		attribute.Int64("response.tokens_in", tokensIn),
		attribute.Int64("response.tokens_out", tokensOut),
		attribute.Bool("response.cache_hit", cacheHit),
		attribute.Bool("response.dedup_hit", dedupHit),
	)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
