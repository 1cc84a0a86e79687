package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxRecords caps how many records one feed load keeps.
const DefaultMaxRecords = 50

// Loader fills a Store from the network or from the disk cache.
type Loader struct {
	Store      *Store
	Fetcher    *Fetcher // nil disables network refresh
	SourceURL  string   // when set, replaces the category feed URL
	Cache      *Cache   // nil disables the disk cache
	MaxRecords int
	Logger     *slog.Logger
}

// ErrFetchDisabled is returned by Refresh when the loader has no fetcher.
var ErrFetchDisabled = errors.New("TLE fetch disabled")

// ErrNoRecords is returned when a feed yields no usable records.
var ErrNoRecords = errors.New("no TLE records in feed")

func (l *Loader) maxRecords() int {
	if l.MaxRecords <= 0 {
		return DefaultMaxRecords
	}
	return l.MaxRecords
}

// LoadCached installs the newest cached feed for category, if any.
func (l *Loader) LoadCached(category string) (*TLEDataset, error) {
	if l.Cache == nil {
		return nil, errors.New("no cache configured")
	}
	category = NormalizeCategory(category)

	data, ts, err := l.Cache.LoadLatest(category)
	if err != nil {
		return nil, err
	}

	ds, err := l.install("cache", category, ts, data)
	if err != nil {
		return nil, fmt.Errorf("loading cached %s feed: %w", category, err)
	}
	l.Logger.Info("loaded TLE data from cache",
		"category", category,
		"count", len(ds.Satellites),
		"cached_at", ts.UTC().Format(time.RFC3339),
	)
	return ds, nil
}

// Refresh downloads the feed for category, stores it, and writes it to the
// disk cache. Concurrent refreshes are serialized on the store.
func (l *Loader) Refresh(ctx context.Context, category string) (*TLEDataset, error) {
	if l.Fetcher == nil {
		return nil, ErrFetchDisabled
	}
	category = NormalizeCategory(category)

	url := l.SourceURL
	if url == "" {
		url = CategoryURL(category)
	}
	fetcher := l.Fetcher.WithSource(url)

	var ds *TLEDataset
	err := l.Store.Exclusive(func() error {
		start := time.Now()
		data, err := fetcher.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("fetching %s feed: %w", category, err)
		}

		now := time.Now().UTC()
		ds, err = l.install(url, category, now, data)
		if err != nil {
			return err
		}

		if l.Cache != nil {
			if err := l.Cache.Write(category, data, now); err != nil {
				l.Logger.Warn("failed to write TLE cache", "category", category, "error", err)
			}
		}

		l.Logger.Info("TLE data refreshed",
			"category", category,
			"count", len(ds.Satellites),
			"generation", l.Store.Generation(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (l *Loader) install(source, category string, ts time.Time, data []byte) (*TLEDataset, error) {
	entries, err := ParseLimit(bytes.NewReader(data), l.Logger, l.maxRecords())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoRecords
	}
	ds := NewDataset(source, category, ts, entries)
	l.Store.Set(ds)
	return ds, nil
}
