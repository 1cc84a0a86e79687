package main

import (
	"errors"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitwatch/internal/auth"
	"github.com/star/orbitwatch/internal/sim"
	"github.com/star/orbitwatch/internal/stream"
	"github.com/star/orbitwatch/internal/tle"
)

// tleConfig holds feed and cache configuration.
type tleConfig struct {
	EnableFetch     bool
	Category        string
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxRecords      int
	MaxAge          time.Duration // refresh once the dataset is older than this
}

func parseLogLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// envPositiveInt reads a positive integer, warning and returning def on a bad value.
func envPositiveInt(logger *slog.Logger, name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+name+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

// envBool reads a boolean, warning and returning def on a bad value.
func envBool(logger *slog.Logger, name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+name+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("ORBITWATCH_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("ORBITWATCH_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("ORBITWATCH_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("ORBITWATCH_AUTH_TOKEN is required when auth is enabled")
		}
		cfg.PublicReads = envBool(logger, "ORBITWATCH_AUTH_PUBLIC_READS", false)
		logger.Info("auth enabled", "public_reads", cfg.PublicReads)
	}

	return cfg, nil
}

func loadSimConfig(logger *slog.Logger) sim.Config {
	cfg := sim.Config{
		Step:           time.Duration(envPositiveInt(logger, "ORBITWATCH_SIM_TICK", 1)) * time.Second,
		HorizonSeconds: float64(envPositiveInt(logger, "ORBITWATCH_SIM_HORIZON", 7200)),
		MaxAlerts:      envPositiveInt(logger, "ORBITWATCH_SIM_MAX_ALERTS", 20),
		Workers:        envPositiveInt(logger, "ORBITWATCH_SIM_WORKERS", runtime.NumCPU()),
		HistoryLength:  envPositiveInt(logger, "ORBITWATCH_HISTORY_LENGTH", 120),
	}

	if v := os.Getenv("ORBITWATCH_SIM_START"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			logger.Warn("invalid ORBITWATCH_SIM_START value, starting at wall-clock time", "value", v)
		} else {
			cfg.Start = t
		}
	}

	logger.Info("simulation config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.HorizonSeconds,
		"max_alerts", cfg.MaxAlerts,
		"workers", cfg.Workers,
		"history_length", cfg.HistoryLength,
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger, trustProxy bool) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: envPositiveInt(logger, "ORBITWATCH_STREAM_MAX_CONCURRENT", 10),
		MaxTotal:           envPositiveInt(logger, "ORBITWATCH_STREAM_MAX_TOTAL", stream.DefaultMaxTotal),
		KeepaliveInterval:  time.Duration(envPositiveInt(logger, "ORBITWATCH_STREAM_KEEPALIVE_INTERVAL", 30)) * time.Second,
		TrustProxy:         trustProxy,
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_total", cfg.MaxTotal,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
	)

	return cfg
}

func loadTLEConfig(logger *slog.Logger) tleConfig {
	cfg := tleConfig{
		EnableFetch: envBool(logger, "ORBITWATCH_ENABLE_TLE_FETCH", true),
		Category:    tle.DefaultCategory,
		CacheDir:    "/tmp/orbitwatch/tle",
		MaxFiles:    envPositiveInt(logger, "ORBITWATCH_TLE_CACHE_FILES", 5),
		MaxRecords:  envPositiveInt(logger, "ORBITWATCH_TLE_MAX_RECORDS", tle.DefaultMaxRecords),
		MaxAge:      time.Duration(envPositiveInt(logger, "ORBITWATCH_TLE_MAX_AGE", 6*3600)) * time.Second,
	}

	if v := os.Getenv("ORBITWATCH_TLE_CATEGORY"); v != "" {
		want := strings.ToLower(strings.TrimSpace(v))
		cfg.Category = tle.NormalizeCategory(want)
		if want != cfg.Category {
			logger.Warn("unknown ORBITWATCH_TLE_CATEGORY value, using default", "value", v, "default", cfg.Category, "known", tle.Categories())
		}
	}

	if v := os.Getenv("ORBITWATCH_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("ORBITWATCH_TLE_EXTRA_URLS"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
		cfg.ExtraSourceURLs = urls
	}

	if v := os.Getenv("ORBITWATCH_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	logger.Info("TLE config",
		"fetch_enabled", cfg.EnableFetch,
		"category", cfg.Category,
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"cache_dir", cfg.CacheDir,
		"max_records", cfg.MaxRecords,
		"max_age_seconds", cfg.MaxAge.Seconds(),
	)

	return cfg
}
