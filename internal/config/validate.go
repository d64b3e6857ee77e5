package config

import (
	"fmt"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}

	// Provider validation
	if cfg.Provider.Model == "" {
		errs = append(errs, "provider.model must not be empty")
	}
	if cfg.Provider.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("provider.timeout must be non-negative, got %d", cfg.Provider.Timeout))
	}
	if cfg.Provider.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("provider.retry_max_attempts must be at least 1, got %d", cfg.Provider.RetryMaxAttempts))
	}
	if cfg.Provider.RetryBaseDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("provider.retry_base_delay_ms must be non-negative, got %d", cfg.Provider.RetryBaseDelayMs))
	}
	if cfg.Provider.RetryMaxDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("provider.retry_max_delay_ms must be non-negative, got %d", cfg.Provider.RetryMaxDelayMs))
	}
	if cfg.Provider.CBFailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("provider.cb_failure_threshold must be at least 1, got %d", cfg.Provider.CBFailureThreshold))
	}
	if cfg.Provider.CBResetTimeoutSec <= 0 {
		errs = append(errs, fmt.Sprintf("provider.cb_reset_timeout_seconds must be positive, got %d", cfg.Provider.CBResetTimeoutSec))
	}
	if cfg.Provider.CBHalfOpenMax < 1 {
		errs = append(errs, fmt.Sprintf("provider.cb_half_open_max_calls must be at least 1, got %d", cfg.Provider.CBHalfOpenMax))
	}

	// Limits validation
	if cfg.Limits.MaxArticleLength < 1 {
		errs = append(errs, fmt.Sprintf("limits.max_article_length must be positive, got %d", cfg.Limits.MaxArticleLength))
	}
	if cfg.Limits.MaxTokensPerRequest < 1 {
		errs = append(errs, fmt.Sprintf("limits.max_tokens_per_request must be positive, got %d", cfg.Limits.MaxTokensPerRequest))
	}
	if cfg.Limits.MinOutputTokens < 1 {
		errs = append(errs, fmt.Sprintf("limits.min_output_tokens must be positive, got %d", cfg.Limits.MinOutputTokens))
	}
	if cfg.Limits.MinOutputTokens > cfg.Limits.MaxTokensPerRequest {
		errs = append(errs, fmt.Sprintf("limits.min_output_tokens (%d) must not exceed limits.max_tokens_per_request (%d)",
			cfg.Limits.MinOutputTokens, cfg.Limits.MaxTokensPerRequest))
	}

	// Rate limit validation
	if cfg.RateLimit.MaxRequests < 1 {
		errs = append(errs, fmt.Sprintf("rate_limit.max_requests must be at least 1, got %d", cfg.RateLimit.MaxRequests))
	}
	if cfg.RateLimit.WindowMs < 1 {
		errs = append(errs, fmt.Sprintf("rate_limit.window_ms must be positive, got %d", cfg.RateLimit.WindowMs))
	}

	// Dedup validation
	if cfg.Dedup.TTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("dedup.ttl_seconds must be non-negative, got %d", cfg.Dedup.TTLSeconds))
	}

	// Cache validation
	if cfg.Cache.TTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("cache.ttl_seconds must be non-negative, got %d", cfg.Cache.TTLSeconds))
	}
	if cfg.Cache.MaxMemoryEntries < 0 {
		errs = append(errs, fmt.Sprintf("cache.max_memory_entries must be non-negative, got %d", cfg.Cache.MaxMemoryEntries))
	}

	// Prompts validation
	if !isValidEnum(cfg.Prompts.Profile, ValidProfiles) {
		errs = append(errs, fmt.Sprintf("prompts.profile must be one of %v, got %q", ValidProfiles, cfg.Prompts.Profile))
	}
	if cfg.Prompts.DefaultLanguage == "" {
		errs = append(errs, "prompts.default_language must not be empty")
	}

	// Analytics validation
	if cfg.Analytics.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("analytics.retention_days must be at least 1, got %d", cfg.Analytics.RetentionDays))
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		validExporters := []string{"stdout", "otlp-grpc", "otlp-http"}
		if !isValidEnum(cfg.Tracing.Exporter, validExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", validExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
