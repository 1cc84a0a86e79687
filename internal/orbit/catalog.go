package orbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orbitwatch/internal/metrics"
	"github.com/star/orbitwatch/internal/tle"
)

// ErrNoDataset is returned when no TLE dataset has been loaded.
var ErrNoDataset = errors.New("no TLE dataset loaded")

// ErrUnknownSatellite is returned for a catalog number not in the dataset.
var ErrUnknownSatellite = errors.New("satellite not in catalog")

// elementCache holds the decoded elements of one TLE dataset.
// Immutable after construction; safe for concurrent reads.
type elementCache struct {
	elements   []tle.Elements
	index      map[int]int
	generation uint64
}

// Catalog propagates the satellites of the current TLE dataset.
type Catalog struct {
	store   *tle.Store
	pool    *WorkerPool
	logger  *slog.Logger
	cache   atomic.Pointer[elementCache]
	cacheMu sync.Mutex // serializes cache rebuilds
}

// NewCatalog creates a catalog over store.
func NewCatalog(store *tle.Store, config Config, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		pool:   NewWorkerPool(config.Workers, logger),
		logger: logger,
	}
}

// Store returns the backing TLE store.
func (c *Catalog) Store() *tle.Store {
	return c.store
}

// cached returns decoded elements for the dataset installed under
// generation, rebuilding when the store has moved on (double-checked
// locking).
func (c *Catalog) cached(ds *tle.TLEDataset, generation uint64) *elementCache {
	if ec := c.cache.Load(); ec != nil && ec.generation == generation {
		return ec
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if ec := c.cache.Load(); ec != nil && ec.generation == generation {
		return ec
	}

	ec := &elementCache{
		elements:   make([]tle.Elements, 0, len(ds.Satellites)),
		index:      make(map[int]int, len(ds.Satellites)),
		generation: generation,
	}
	var skipped int
	for _, entry := range ds.Satellites {
		if _, ok := ec.index[entry.NORADID]; ok {
			continue
		}
		el, err := tle.ParseElements(entry)
		if err != nil {
			c.logger.Warn("skipping malformed element set", "norad_id", entry.NORADID, "name", entry.Name, "error", err)
			skipped++
			continue
		}
		ec.index[entry.NORADID] = len(ec.elements)
		ec.elements = append(ec.elements, el)
	}

	metrics.SetTLEDatasetCount(len(ec.elements))
	metrics.AddTLEParseErrors(skipped)
	c.logger.Info("element cache rebuilt",
		"cached", len(ec.elements),
		"skipped", skipped,
		"generation", generation,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	c.cache.Store(ec)
	return ec
}

// Elements returns the decoded elements of the current dataset in feed order.
func (c *Catalog) Elements() []tle.Elements {
	ds, gen := c.store.Current()
	if ds == nil {
		return nil
	}
	return c.cached(ds, gen).elements
}

// Lookup returns the decoded elements for one catalog number.
func (c *Catalog) Lookup(noradID int) (tle.Elements, error) {
	ds, gen := c.store.Current()
	if ds == nil {
		return tle.Elements{}, ErrNoDataset
	}
	ec := c.cached(ds, gen)
	i, ok := ec.index[noradID]
	if !ok {
		return tle.Elements{}, fmt.Errorf("norad %d: %w", noradID, ErrUnknownSatellite)
	}
	return ec.elements[i], nil
}

// PropagateToTime propagates every catalog satellite to targetTime.
func (c *Catalog) PropagateToTime(ctx context.Context, targetTime time.Time) (*Frame, error) {
	ds, gen := c.store.Current()
	if ds == nil {
		return nil, ErrNoDataset
	}
	elements := c.cached(ds, gen).elements

	start := time.Now()
	positions, successCount, errorCount := c.pool.PropagateBatch(ctx, elements, targetTime)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, successCount, errorCount)

	c.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"workers", c.pool.Workers(),
		"duration_ms", duration.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Frame{
		Timestamp:  targetTime,
		Satellites: positions,
	}, nil
}

// GroundTrack returns the ground track of one catalog satellite.
func (c *Catalog) GroundTrack(noradID int, start time.Time, durationMinutes, stepMinutes float64) ([]Position, error) {
	if err := checkGroundTrack(durationMinutes, stepMinutes); err != nil {
		return nil, err
	}
	el, err := c.Lookup(noradID)
	if err != nil {
		return nil, err
	}
	return GroundTrack(el, start, durationMinutes, stepMinutes), nil
}
