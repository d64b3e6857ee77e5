package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Set replaces the current Config. Intended for tests and for callers
// that assemble a Config programmatically instead of via Load.
func Set(cfg *Config) {
	set(cfg)
}

// Config is the top-level configuration for metagen.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    toml:"server"`
	Provider  ProviderConfig  `mapstructure:"provider"  toml:"provider"`
	Limits    LimitsConfig    `mapstructure:"limits"    toml:"limits"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" toml:"rate_limit"`
	Dedup     DedupConfig     `mapstructure:"dedup"     toml:"dedup"`
	Cache     CacheConfig     `mapstructure:"cache"     toml:"cache"`
	Prompts   PromptsConfig   `mapstructure:"prompts"   toml:"prompts"`
	Analytics AnalyticsConfig `mapstructure:"analytics" toml:"analytics"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	BindAddress  string `mapstructure:"bind_address" toml:"bind_address"`
	Port         int    `mapstructure:"port"         toml:"port"`
	LogLevel     string `mapstructure:"log_level"    toml:"log_level"`
	DataDir      string `mapstructure:"data_dir"     toml:"data_dir"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"` // seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`  // seconds
	MaxBodySize  int64  `mapstructure:"max_body_size" toml:"max_body_size"`
}

// ProviderConfig describes the Anthropic provider settings.
type ProviderConfig struct {
	Model              string `mapstructure:"model"                toml:"model"`
	APIKey             string `mapstructure:"api_key"              toml:"api_key"` // prefer env or keychain over file
	Timeout            int    `mapstructure:"timeout"              toml:"timeout"` // seconds
	RetryMaxAttempts   int    `mapstructure:"retry_max_attempts"   toml:"retry_max_attempts"`
	RetryBaseDelayMs   int    `mapstructure:"retry_base_delay_ms"  toml:"retry_base_delay_ms"`
	RetryMaxDelayMs    int    `mapstructure:"retry_max_delay_ms"   toml:"retry_max_delay_ms"`
	CBFailureThreshold int    `mapstructure:"cb_failure_threshold" toml:"cb_failure_threshold"`
	CBResetTimeoutSec  int    `mapstructure:"cb_reset_timeout_seconds" toml:"cb_reset_timeout_seconds"`
	CBHalfOpenMax      int    `mapstructure:"cb_half_open_max_calls"   toml:"cb_half_open_max_calls"`
	PromptCaching      bool   `mapstructure:"prompt_caching"       toml:"prompt_caching"`
}

// TimeoutDuration returns the provider call timeout as a time.Duration.
func (p ProviderConfig) TimeoutDuration() time.Duration {
	if p.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.Timeout) * time.Second
}

// LimitsConfig bounds request payloads and generated output.
type LimitsConfig struct {
	MaxArticleLength    int `mapstructure:"max_article_length"     toml:"max_article_length"`
	MaxTokensPerRequest int `mapstructure:"max_tokens_per_request" toml:"max_tokens_per_request"`
	MinOutputTokens     int `mapstructure:"min_output_tokens"      toml:"min_output_tokens"`
}

// RateLimitConfig controls the per-client fixed-window rate limiter.
type RateLimitConfig struct {
	Enabled     bool `mapstructure:"enabled"      toml:"enabled"`
	MaxRequests int  `mapstructure:"max_requests" toml:"max_requests"`
	WindowMs    int  `mapstructure:"window_ms"    toml:"window_ms"`
}

// DedupConfig controls the short-window request deduplicator.
type DedupConfig struct {
	Enabled    bool `mapstructure:"enabled"     toml:"enabled"`
	TTLSeconds int  `mapstructure:"ttl_seconds" toml:"ttl_seconds"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled          bool `mapstructure:"enabled"            toml:"enabled"`
	TTLSeconds       int  `mapstructure:"ttl_seconds"        toml:"ttl_seconds"`
	MaxMemoryEntries int  `mapstructure:"max_memory_entries" toml:"max_memory_entries"`
}

// PromptsConfig controls the prompt registry and output policy.
type PromptsConfig struct {
	Profile         string `mapstructure:"profile"          toml:"profile"` // "production" or "development"
	DefaultLanguage string `mapstructure:"default_language" toml:"default_language"`
	DefaultVersion  string `mapstructure:"default_version"  toml:"default_version"`
	LenientOutput   bool   `mapstructure:"lenient_output"   toml:"lenient_output"`
}

// AnalyticsConfig controls usage/cost logging.
type AnalyticsConfig struct {
	Enabled       bool `mapstructure:"enabled"        toml:"enabled"`
	RetentionDays int  `mapstructure:"retention_days" toml:"retention_days"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "metagen"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (METAGEN_ prefix, plus the legacy unprefixed
//     names listed in bindLegacyEnv)
//  2. The file at explicitPath if non-empty
//  3. ~/.metagen/metagen.toml
//  4. ./metagen.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults from the default config so viper knows every key.
	setViperDefaults(v)

	// Environment variable overlay: METAGEN_SERVER_PORT etc.
	v.SetEnvPrefix("METAGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindLegacyEnv(v)

	// Determine which file(s) to read.
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".metagen"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("metagen")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Store the resolved config file path.
	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Expand ~ in data_dir.
	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// bindLegacyEnv binds the environment variable names carried over from the
// original deployment so existing setups keep working without a config file.
func bindLegacyEnv(v *viper.Viper) {
	// BindEnv(key, names...) checks names in order; keep the METAGEN_
	// prefixed form first so it wins over the legacy name.
	_ = v.BindEnv("provider.api_key", "METAGEN_PROVIDER_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("limits.max_article_length", "METAGEN_LIMITS_MAX_ARTICLE_LENGTH", "MAX_ARTICLE_LENGTH")
	_ = v.BindEnv("limits.max_tokens_per_request", "METAGEN_LIMITS_MAX_TOKENS_PER_REQUEST", "MAX_TOKENS_PER_REQUEST")
	_ = v.BindEnv("rate_limit.max_requests", "METAGEN_RATE_LIMIT_MAX_REQUESTS", "API_RATE_LIMIT_MAX_REQUESTS")
	_ = v.BindEnv("rate_limit.window_ms", "METAGEN_RATE_LIMIT_WINDOW_MS", "API_RATE_LIMIT_WINDOW_MS")
	_ = v.BindEnv("cache.ttl_seconds", "METAGEN_CACHE_TTL_SECONDS", "API_CACHE_TTL")
	_ = v.BindEnv("analytics.enabled", "METAGEN_ANALYTICS_ENABLED", "ENABLE_USAGE_ANALYTICS")
	_ = v.BindEnv("prompts.profile", "METAGEN_PROMPTS_PROFILE", "METAGEN_ENV")
}

// InitConfig writes the default configuration file to ~/.metagen/metagen.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".metagen")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var
// binding works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	v.SetDefault("provider.model", d.Provider.Model)
	v.SetDefault("provider.api_key", d.Provider.APIKey)
	v.SetDefault("provider.timeout", d.Provider.Timeout)
	v.SetDefault("provider.retry_max_attempts", d.Provider.RetryMaxAttempts)
	v.SetDefault("provider.retry_base_delay_ms", d.Provider.RetryBaseDelayMs)
	v.SetDefault("provider.retry_max_delay_ms", d.Provider.RetryMaxDelayMs)
	v.SetDefault("provider.cb_failure_threshold", d.Provider.CBFailureThreshold)
	v.SetDefault("provider.cb_reset_timeout_seconds", d.Provider.CBResetTimeoutSec)
	v.SetDefault("provider.cb_half_open_max_calls", d.Provider.CBHalfOpenMax)
	v.SetDefault("provider.prompt_caching", d.Provider.PromptCaching)

	v.SetDefault("limits.max_article_length", d.Limits.MaxArticleLength)
	v.SetDefault("limits.max_tokens_per_request", d.Limits.MaxTokensPerRequest)
	v.SetDefault("limits.min_output_tokens", d.Limits.MinOutputTokens)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.max_requests", d.RateLimit.MaxRequests)
	v.SetDefault("rate_limit.window_ms", d.RateLimit.WindowMs)

	v.SetDefault("dedup.enabled", d.Dedup.Enabled)
	v.SetDefault("dedup.ttl_seconds", d.Dedup.TTLSeconds)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)
	v.SetDefault("cache.max_memory_entries", d.Cache.MaxMemoryEntries)

	v.SetDefault("prompts.profile", d.Prompts.Profile)
	v.SetDefault("prompts.default_language", d.Prompts.DefaultLanguage)
	v.SetDefault("prompts.default_version", d.Prompts.DefaultVersion)
	v.SetDefault("prompts.lenient_output", d.Prompts.LenientOutput)

	v.SetDefault("analytics.enabled", d.Analytics.Enabled)
	v.SetDefault("analytics.retention_days", d.Analytics.RetentionDays)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
