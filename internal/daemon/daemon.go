package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/notefolio/metagen/internal/cache"
	"github.com/notefolio/metagen/internal/config"
	"github.com/notefolio/metagen/internal/experiment"
	"github.com/notefolio/metagen/internal/gateway"
	"github.com/notefolio/metagen/internal/metrics"
	"github.com/notefolio/metagen/internal/prompt"
	"github.com/notefolio/metagen/internal/ratelimit"
	"github.com/notefolio/metagen/internal/server"
	"github.com/notefolio/metagen/internal/store"
	"github.com/notefolio/metagen/internal/tokenbudget"
	"github.com/notefolio/metagen/internal/tracing"
	"github.com/notefolio/metagen/internal/vault"
	"github.com/notefolio/metagen/internal/version"
)

// Run is the main daemon orchestrator. It initialises all subsystems,
// starts the analysis server, and blocks until a shutdown signal is
// received.
func Run(cfg *config.Config, foreground bool) error {
	// 1. Set up zerolog logger.
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	zerolog.SetGlobalLevel(logLevel)

	writers := []io.Writer{}

	// Always log to file.
	logPath := filepath.Join(dataDir, "metagen.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()
	writers = append(writers, logFile)

	// If foreground, also write to stdout with console formatting.
	if foreground {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
		writers = append(writers, consoleWriter)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "metagen").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("metagen starting")

	// 2. Check if already running.
	if IsRunning(dataDir) {
		return fmt.Errorf("metagen is already running (PID file exists at %s)", filepath.Join(dataDir, pidFilename))
	}

	// 3. Open store.
	var st *store.Store
	if cfg.Analytics.Enabled {
		dbPath := filepath.Join(dataDir, "metagen.db")
		st, err = store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()
		log.Info().Str("db_path", dbPath).Msg("store opened")
	} else {
		log.Info().Msg("analytics disabled; request log and persistent cache unavailable")
	}

	// 4. Create metrics collector.
	collector := metrics.NewCollector()

	// 5. Write PID file.
	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	// 6. Start config watcher.
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}

	var watcher *config.Watcher
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func(old, newCfg *config.Config) {
				log.Info().Msg("configuration reloaded")
				newLevel := parseLogLevel(newCfg.Server.LogLevel)
				zerolog.SetGlobalLevel(newLevel)
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	// 7. Initialise tracing if enabled.
	if cfg.Tracing.Enabled {
		serviceName := cfg.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "metagen"
		}
		shutdown, traceErr := tracing.Init(
			context.Background(),
			serviceName,
			version.Version,
			cfg.Tracing.Exporter,
			cfg.Tracing.Endpoint,
			cfg.Tracing.SampleRate,
			cfg.Tracing.Insecure,
		)
		if traceErr != nil {
			log.Warn().Err(traceErr).Msg("failed to initialise tracing; continuing without it")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("tracer shutdown error")
				}
			}()
			log.Info().Str("exporter", cfg.Tracing.Exporter).Msg("tracing initialised")
		}
	}

	// 8. Resolve the provider API key.
	providerCfg := cfg.Provider
	if providerCfg.APIKey == "" {
		v := vault.New()
		key, keyErr := v.Get(vault.DefaultAccount)
		if keyErr != nil {
			return fmt.Errorf("no API key configured: set provider.api_key, store one with 'metagen keys set', or export ANTHROPIC_API_KEY: %w", keyErr)
		}
		providerCfg.APIKey = key
	}

	// 9. Wire up the analysis stack.
	var backend cache.Backend
	if st != nil {
		backend = cache.NewStoreBackend(st)
	}
	respCache, err := cache.New(backend, cfg.Cache.TTLSeconds, cfg.Cache.MaxMemoryEntries, cfg.Cache.Enabled)
	if err != nil {
		return fmt.Errorf("creating response cache: %w", err)
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMs)*time.Millisecond)
	dedup := ratelimit.NewDeduplicator(time.Duration(cfg.Dedup.TTLSeconds) * time.Second)
	allocator := tokenbudget.NewAllocator(cfg.Limits.MinOutputTokens, cfg.Limits.MaxTokensPerRequest)
	estimator := tokenbudget.NewEstimator()
	registry := prompt.NewRegistry(cfg.Prompts.Profile, cfg.Prompts.DefaultVersion, cfg.Prompts.DefaultLanguage)
	experiments := experiment.NewManager()
	provider := gateway.New(providerCfg)

	log.Info().
		Int("prompt_templates", registry.Len()).
		Str("model", providerCfg.Model).
		Bool("cache", cfg.Cache.Enabled).
		Msg("analysis stack wired")

	// 10. Start background maintenance.
	maintCtx, maintCancel := context.WithCancel(context.Background())
	defer maintCancel()

	purgerDone := respCache.StartPurger(maintCtx)

	prunerDone := make(chan struct{})
	go func() {
		defer close(prunerDone)
		runPruner(maintCtx, st, limiter, dedup, cfg.Analytics.RetentionDays)
	}()

	// 11. Create and start the HTTP server.
	handler := server.NewAnalyzeHandler(
		respCache, limiter, dedup, allocator, estimator,
		registry, experiments, provider, collector, st, log.Logger,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Server.IdleTimeout) * time.Second
	srv := server.NewServer(handler, collector, addr, readTimeout, writeTimeout, idleTimeout, cfg.Tracing.Enabled)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	log.Info().
		Str("addr", addr).
		Msg("metagen is ready")

	if foreground {
		fmt.Printf("\n  metagen is running!\n")
		fmt.Printf("  API: http://%s/api/analyze-article\n\n", addr)
	}

	// 12. Wait for shutdown signal or fatal error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	// 13. Graceful shutdown with 30-second timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	// 14. Wait for background goroutines before closing the store.
	maintCancel()
	<-purgerDone
	<-prunerDone
	if st != nil {
		st.Close()
	}
	if err := RemovePID(dataDir); err != nil {
		log.Error().Err(err).Msg("failed to remove PID file during shutdown")
	}

	log.Info().Msg("metagen stopped")
	return nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("metagen does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		// Stale PID file; clean it up.
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("metagen is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to metagen (PID %d)\n", pid)

	// Wait briefly for the process to exit.
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}

	return nil
}

// Status checks if the daemon is running and prints a summary.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("metagen is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("metagen is running (PID %d)\n", pid)

	// Try to fetch usage stats from the running daemon.
	statsURL := fmt.Sprintf("http://localhost:%d/api/usage-stats?period=all", cfg.Server.Port)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(statsURL)
	if err != nil {
		fmt.Println("  (stats endpoint unreachable)")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	var stats struct {
		TotalRequests    int64   `json:"totalRequests"`
		InputTokens      int64   `json:"inputTokens"`
		OutputTokens     int64   `json:"outputTokens"`
		EstimatedCostUSD float64 `json:"estimatedCostUSD"`
		ActualCostUSD    float64 `json:"actualCostUSD"`
		CacheHits        int64   `json:"cacheHits"`
		DedupHits        int64   `json:"dedupHits"`
		CacheHitRate     float64 `json:"cacheHitRate"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil
	}

	fmt.Printf("\n  Total Requests: %d\n", stats.TotalRequests)
	fmt.Printf("  Tokens In:      %d\n", stats.InputTokens)
	fmt.Printf("  Tokens Out:     %d\n", stats.OutputTokens)
	fmt.Printf("  Estimated Cost: $%.4f\n", stats.EstimatedCostUSD)
	fmt.Printf("  Actual Cost:    $%.4f\n", stats.ActualCostUSD)
	fmt.Printf("  Cache Hit Rate: %.1f%% (%d hits, %d dedup)\n", stats.CacheHitRate, stats.CacheHits, stats.DedupHits)

	return nil
}

// runPruner periodically prunes old request rows and expired limiter and
// dedup entries. st may be nil when analytics are disabled.
func runPruner(ctx context.Context, st *store.Store, limiter *ratelimit.Limiter, dedup *ratelimit.Deduplicator, retentionDays int) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("data pruner: recovered from panic")
					}
				}()
				limiter.Prune()
				dedup.Prune()
				if st == nil || retentionDays <= 0 {
					return
				}
				n, err := st.Prune(retentionDays)
				if err != nil {
					log.Error().Err(err).Msg("data pruning failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned old data")
				}
			}()
		}
	}
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
