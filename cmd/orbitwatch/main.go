// Command orbitwatch serves the simulated satellite and debris picture over
// HTTP: catalog positions, user satellites, collision alerts and an SSE
// snapshot stream.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/orbitwatch/internal/api"
	"github.com/star/orbitwatch/internal/metrics"
	"github.com/star/orbitwatch/internal/orbit"
	"github.com/star/orbitwatch/internal/sim"
	"github.com/star/orbitwatch/internal/stream"
	"github.com/star/orbitwatch/internal/tle"
	"github.com/star/orbitwatch/internal/tracing"
)

func main() {
	level, ok := parseLogLevel(os.Getenv("ORBITWATCH_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	if !ok {
		logger.Warn("invalid ORBITWATCH_LOG_LEVEL value, using info", "value", os.Getenv("ORBITWATCH_LOG_LEVEL"))
	}

	addr := os.Getenv("ORBITWATCH_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	trustProxy := envBool(logger, "ORBITWATCH_TRUST_PROXY", false)

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.ConfigFromEnv(logger), logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer tracing.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	tleCfg := loadTLEConfig(logger)
	store := tle.NewStore()
	loader := &tle.Loader{
		Store:      store,
		SourceURL:  tleCfg.SourceURL,
		Cache:      tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles),
		MaxRecords: tleCfg.MaxRecords,
		Logger:     logger,
	}
	if tleCfg.EnableFetch {
		loader.Fetcher = tle.NewFetcher(tleCfg.SourceURL, logger, tleCfg.ExtraSourceURLs...)
	}

	// Start from the disk cache, then try the network.
	if _, err := loader.LoadCached(tleCfg.Category); err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	}
	if loader.Fetcher != nil {
		if _, err := loader.Refresh(ctx, tleCfg.Category); err != nil {
			logger.Warn("initial TLE fetch failed", "category", tleCfg.Category, "error", err)
		}
	}

	simCfg := loadSimConfig(logger)
	catalog := orbit.NewCatalog(store, orbit.Config{Workers: simCfg.Workers}, logger)
	metrics.SetPropagationWorkers(simCfg.Workers)
	simulator := sim.New(catalog, simCfg, logger)

	streamHandler := stream.NewHandler(simulator, loadStreamConfig(logger, trustProxy), logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Simulator:  simulator,
		Loader:     loader,
		Stream:     streamHandler,
		Category:   tleCfg.Category,
		TrustProxy: trustProxy,
	})

	go simulator.Run(ctx, simCfg.Step)
	go refreshLoop(ctx, loader, tleCfg, logger)

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "tle_fetch_enabled", tleCfg.EnableFetch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// refetchBackoff spaces out refresh attempts after a failure.
const refetchBackoff = time.Minute

// refreshLoop keeps the dataset age gauge current and refetches the feed
// once the dataset is older than cfg.MaxAge.
func refreshLoop(ctx context.Context, loader *tle.Loader, cfg tleConfig, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var lastAttempt time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			age := loader.Store.AgeSeconds()
			if age >= 0 {
				metrics.SetTLEDatasetAge(age)
			}
			if loader.Fetcher == nil || (age >= 0 && age < cfg.MaxAge.Seconds()) {
				continue
			}
			if time.Since(lastAttempt) < refetchBackoff {
				continue
			}
			lastAttempt = time.Now()
			if _, err := loader.Refresh(ctx, cfg.Category); err != nil && ctx.Err() == nil {
				logger.Warn("TLE refresh failed", "category", cfg.Category, "error", err)
			}
		}
	}
}
