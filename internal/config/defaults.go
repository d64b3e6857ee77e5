package config

// DefaultBindAddress is the default bind address.
const DefaultBindAddress = "0.0.0.0"

// DefaultPort is the default port for the API server.
const DefaultPort = 8787

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.metagen"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "metagen.toml"

// DefaultModel is the Claude model used for analysis.
const DefaultModel = "claude-sonnet-4-20250514"

// DefaultMaxArticleLength is the maximum accepted article length in characters.
const DefaultMaxArticleLength = 30000

// DefaultMaxTokensPerRequest caps the output budget of any single request.
const DefaultMaxTokensPerRequest = 8192

// DefaultMinOutputTokens is the output budget floor.
const DefaultMinOutputTokens = 300

// DefaultRateLimitMaxRequests is the fixed-window request quota per client.
const DefaultRateLimitMaxRequests = 20

// DefaultRateLimitWindowMs is the fixed-window size in milliseconds.
const DefaultRateLimitWindowMs = 60000

// DefaultDedupTTL is the request deduplication window in seconds.
const DefaultDedupTTL = 30

// DefaultCacheTTL is the response cache TTL in seconds.
const DefaultCacheTTL = 3600

// DefaultCacheMaxMemoryEntries bounds the in-memory cache tier.
const DefaultCacheMaxMemoryEntries = 1000

// DefaultRetentionDays is the default usage-log retention in days.
const DefaultRetentionDays = 90

// DefaultProviderTimeout is the default provider call timeout in seconds.
const DefaultProviderTimeout = 60

// DefaultRetryMaxAttempts is the default maximum number of provider call attempts.
const DefaultRetryMaxAttempts = 3

// DefaultRetryBaseDelayMs is the default base delay for exponential backoff in milliseconds.
const DefaultRetryBaseDelayMs = 500

// DefaultRetryMaxDelayMs is the default maximum delay for exponential backoff in milliseconds.
const DefaultRetryMaxDelayMs = 30000

// DefaultCBFailureThreshold is the default number of consecutive failures before opening the circuit.
const DefaultCBFailureThreshold = 5

// DefaultCBResetTimeout is the default circuit breaker reset timeout in seconds.
const DefaultCBResetTimeout = 60

// DefaultCBHalfOpenMax is the default number of successful calls in half-open state to close the circuit.
const DefaultCBHalfOpenMax = 1

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// Set high to accommodate slow provider calls on the analysis endpoints.
const DefaultWriteTimeout = 120

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (1 MB).
const DefaultMaxBodySize int64 = 1 << 20

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "metagen"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidProfiles lists the allowed prompt registry profiles.
var ValidProfiles = []string{"production", "development"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:  DefaultBindAddress,
			Port:         DefaultPort,
			LogLevel:     DefaultLogLevel,
			DataDir:      DefaultDataDir,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Provider: ProviderConfig{
			Model:              DefaultModel,
			APIKey:             "",
			Timeout:            DefaultProviderTimeout,
			RetryMaxAttempts:   DefaultRetryMaxAttempts,
			RetryBaseDelayMs:   DefaultRetryBaseDelayMs,
			RetryMaxDelayMs:    DefaultRetryMaxDelayMs,
			CBFailureThreshold: DefaultCBFailureThreshold,
			CBResetTimeoutSec:  DefaultCBResetTimeout,
			CBHalfOpenMax:      DefaultCBHalfOpenMax,
			PromptCaching:      true,
		},
		Limits: LimitsConfig{
			MaxArticleLength:    DefaultMaxArticleLength,
			MaxTokensPerRequest: DefaultMaxTokensPerRequest,
			MinOutputTokens:     DefaultMinOutputTokens,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxRequests: DefaultRateLimitMaxRequests,
			WindowMs:    DefaultRateLimitWindowMs,
		},
		Dedup: DedupConfig{
			Enabled:    true,
			TTLSeconds: DefaultDedupTTL,
		},
		Cache: CacheConfig{
			Enabled:          true,
			TTLSeconds:       DefaultCacheTTL,
			MaxMemoryEntries: DefaultCacheMaxMemoryEntries,
		},
		Prompts: PromptsConfig{
			Profile:         "production",
			DefaultLanguage: "ja",
			DefaultVersion:  "v2",
			LenientOutput:   true,
		},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			RetentionDays: DefaultRetentionDays,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
	}
}
