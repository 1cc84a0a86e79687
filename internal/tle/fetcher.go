package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponseBytes bounds a single feed download.
const maxResponseBytes = 50 << 20

// DefaultCategory is used when a caller names no category or an unknown one.
const DefaultCategory = "stations"

// categoryGroups maps feed categories to CelesTrak GP group names.
var categoryGroups = map[string]string{
	"stations": "stations",
	"starlink": "starlink",
	"active":   "active",
	"weather":  "weather",
	"gps":      "gps-ops",
}

// Categories returns the known feed category names.
func Categories() []string {
	return []string{"stations", "starlink", "active", "weather", "gps"}
}

// CategoryURL returns the element feed URL for a category. Unknown categories
// resolve to DefaultCategory.
func CategoryURL(category string) string {
	group, ok := categoryGroups[category]
	if !ok {
		group = categoryGroups[DefaultCategory]
	}
	return "https://celestrak.org/NORAD/elements/gp.php?GROUP=" + group + "&FORMAT=tle"
}

// NormalizeCategory returns category if known, otherwise DefaultCategory.
func NormalizeCategory(category string) string {
	if _, ok := categoryGroups[category]; ok {
		return category
	}
	return DefaultCategory
}

// Fetcher retrieves raw TLE data from a primary source and optional extras.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL. An empty URL uses
// the default category feed. Extra URLs are fetched after the primary and
// appended; their failures are logged, not returned.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = CategoryURL(DefaultCategory)
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// WithSource returns a copy of f that fetches from sourceURL instead.
func (f *Fetcher) WithSource(sourceURL string) *Fetcher {
	c := *f
	c.sourceURL = sourceURL
	return &c
}

// Fetch downloads the primary source followed by every extra source.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	if len(f.extraURLs) == 0 {
		return body, nil
	}

	var buf bytes.Buffer
	buf.Write(body)
	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra TLE source failed", "url", u, "error", err)
			continue
		}
		if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
			buf.WriteByte('\n')
		}
		buf.Write(extra)
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxResponseBytes)
	}

	return body, nil
}
