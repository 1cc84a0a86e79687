// Command orbitwatch-tui runs the simulator in-process and shows it as a
// terminal dashboard. When stdout is not a terminal, or a headless flag is
// given, it prints text or JSON snapshots instead.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/star/orbitwatch/internal/orbit"
	"github.com/star/orbitwatch/internal/sim"
	"github.com/star/orbitwatch/internal/tle"
	"github.com/star/orbitwatch/internal/ui"
)

const (
	minRefresh = 100 * time.Millisecond
	maxRefresh = time.Minute
)

func main() {
	tlePath := flag.String("tle", "", "Read elements from a local TLE file instead of the feed")
	category := flag.String("category", tle.DefaultCategory, "Feed category (stations, starlink, active, weather, gps)")
	fetch := flag.Bool("fetch", true, "Fetch the feed when no -tle file is given")
	cacheDir := flag.String("cache-dir", "/tmp/orbitwatch/tle", "TLE cache directory")
	maxRecords := flag.Int("max-records", tle.DefaultMaxRecords, "Maximum records kept from the feed")
	refresh := flag.Duration("refresh", time.Second, "Wall-clock interval between ticks")
	step := flag.Duration("step", time.Second, "Simulated time per tick")
	horizon := flag.Float64("horizon", 7200, "Collision look-ahead in seconds")
	start := flag.String("start", "", "Simulation start time (RFC 3339, default now)")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "Write logs to this file in TUI mode")
	summaryMode := flag.Bool("summary", false, "Print a text summary instead of the TUI")
	jsonMode := flag.Bool("json", false, "Print snapshots as JSON instead of the TUI")
	ticks := flag.Int("ticks", 1, "Ticks to run in headless mode (0 runs until interrupted)")
	flag.Parse()

	if *refresh < minRefresh {
		*refresh = minRefresh
	} else if *refresh > maxRefresh {
		*refresh = maxRefresh
	}

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	headless := *summaryMode || *jsonMode || !isTTY

	logger, closeLog, err := newLogger(*logLevel, *logFile, headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	cfg := sim.Config{
		Step:           *step,
		HorizonSeconds: *horizon,
		Workers:        runtime.NumCPU(),
	}
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -start: %v\n", err)
			os.Exit(2)
		}
		cfg.Start = t
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := tle.NewStore()
	if err := loadElements(ctx, store, *tlePath, *category, *fetch, *cacheDir, *maxRecords, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading elements: %v\n", err)
		os.Exit(1)
	}

	catalog := orbit.NewCatalog(store, orbit.Config{Workers: cfg.Workers}, logger)
	simulator := sim.New(catalog, cfg, logger)

	if headless {
		if err := runHeadless(ctx, simulator, *ticks, *refresh, *jsonMode, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(ui.New(simulator, *refresh), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes to stderr in headless mode, and to logFile (or nowhere)
// while the TUI owns the terminal.
func newLogger(level, logFile string, headless bool) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}

	var w io.Writer = io.Discard
	closeFn := func() {}
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w, closeFn = f, func() { f.Close() }
	case headless:
		w = os.Stderr
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}

// loadElements fills store from a local file, or from the cache and feed.
func loadElements(ctx context.Context, store *tle.Store, path, category string, fetch bool, cacheDir string, maxRecords int, logger *slog.Logger) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries, err := tle.ParseLimit(bytes.NewReader(data), logger, maxRecords)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%s: %w", path, tle.ErrNoRecords)
		}
		info, _ := os.Stat(path)
		fetchedAt := time.Now().UTC()
		if info != nil {
			fetchedAt = info.ModTime().UTC()
		}
		store.Set(tle.NewDataset(path, "file", fetchedAt, entries))
		return nil
	}

	loader := &tle.Loader{
		Store:      store,
		Cache:      tle.NewCache(cacheDir, 5),
		MaxRecords: maxRecords,
		Logger:     logger,
	}
	if fetch {
		loader.Fetcher = tle.NewFetcher("", logger)
		_, err := loader.Refresh(ctx, category)
		if err == nil {
			return nil
		}
		logger.Warn("feed fetch failed, trying cache", "category", category, "error", err)
	}
	if _, err := loader.LoadCached(category); err != nil {
		// User satellites still work without a catalog.
		logger.Warn("no elements loaded", "category", category, "error", err)
	}
	return nil
}

// runHeadless ticks n times (forever when n is 0), writing each snapshot.
func runHeadless(ctx context.Context, s *sim.Simulator, n int, interval time.Duration, asJSON bool, out io.Writer) error {
	enc := json.NewEncoder(out)
	for i := 0; n == 0 || i < n; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}

		snap, err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if asJSON {
			if err := enc.Encode(snap); err != nil {
				return fmt.Errorf("write JSON: %w", err)
			}
			continue
		}
		fmt.Fprintln(out, ui.Summary(snap))
	}
	return nil
}
