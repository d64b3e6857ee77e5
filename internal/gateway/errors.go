package gateway

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned when the provider rejects a call with 429.
// RetryAfter carries the provider's requested backoff when available,
// zero otherwise.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("gateway: provider rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("gateway: provider rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ProviderError is any non-429 provider failure, with the provider's
// HTTP status attached. StatusCode is 0 for transport-level failures
// that never produced a response.
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway: provider error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway: provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError is a pre-flight rejection: the request never reached
// the provider.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gateway: invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrCircuitOpen is returned when the circuit breaker rejects a call
// without contacting the provider.
var ErrCircuitOpen = errors.New("gateway: circuit breaker open")
