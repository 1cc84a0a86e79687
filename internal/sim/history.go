package sim

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orbitwatch/internal/metrics"
)

// History is a rolling window of recent snapshots keyed by simulated time.
// Safe for concurrent use by multiple goroutines.
type History struct {
	mu      sync.RWMutex
	entries map[time.Time]*Snapshot
	order   []time.Time // oldest first

	length int
	step   time.Duration
	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// HistoryStats holds history window statistics for the status endpoint.
type HistoryStats struct {
	Entries   int       `json:"entries"`
	Oldest    time.Time `json:"oldest"`
	Newest    time.Time `json:"newest"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Evictions int64     `json:"evictions"`
}

// NewHistory creates a window holding at most length snapshots taken step
// apart. A length below 1 keeps a single snapshot.
func NewHistory(length int, step time.Duration, logger *slog.Logger) *History {
	if length < 1 {
		length = 1
	}
	if step <= 0 {
		step = time.Second
	}
	return &History{
		entries: make(map[time.Time]*Snapshot, length),
		order:   make([]time.Time, 0, length),
		length:  length,
		step:    step,
		logger:  logger,
	}
}

// RoundToStep rounds a timestamp down to the nearest step boundary.
func (h *History) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(h.step)
}

// Get returns the snapshot for simulated time t, or nil if not retained.
func (h *History) Get(t time.Time) *Snapshot {
	key := h.RoundToStep(t)

	h.mu.RLock()
	snap, ok := h.entries[key]
	h.mu.RUnlock()

	if ok {
		h.hits.Add(1)
		metrics.IncHistoryHits()
		return snap
	}
	h.misses.Add(1)
	metrics.IncHistoryMisses()
	return nil
}

// GetRecent returns up to count snapshots at or before t, oldest first.
// Used to build trails.
func (h *History) GetRecent(t time.Time, count int) []*Snapshot {
	if count <= 0 {
		return nil
	}
	key := h.RoundToStep(t)

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Snapshot, 0, count)
	for i := count - 1; i >= 0; i-- {
		if snap, ok := h.entries[key.Add(-time.Duration(i)*h.step)]; ok {
			out = append(out, snap)
		}
	}
	return out
}

// put stores snap and evicts the oldest entries beyond the window length.
func (h *History) put(snap *Snapshot) {
	key := h.RoundToStep(snap.Time)

	h.mu.Lock()
	if _, ok := h.entries[key]; !ok {
		h.order = append(h.order, key)
	}
	h.entries[key] = snap

	var removed int
	for len(h.order) > h.length {
		delete(h.entries, h.order[0])
		h.order = h.order[1:]
		removed++
	}
	count := len(h.order)
	h.mu.Unlock()

	if removed > 0 {
		h.evictions.Add(int64(removed))
		metrics.AddHistoryEvictions(removed)
		h.logger.Debug("history eviction", "entries_removed", removed)
	}
	metrics.SetHistoryEntries(count)
}

// Stats returns current window statistics.
func (h *History) Stats() HistoryStats {
	h.mu.RLock()
	stats := HistoryStats{Entries: len(h.order)}
	if n := len(h.order); n > 0 {
		stats.Oldest = h.order[0]
		stats.Newest = h.order[n-1]
	}
	h.mu.RUnlock()

	stats.Hits = h.hits.Load()
	stats.Misses = h.misses.Load()
	stats.Evictions = h.evictions.Load()
	return stats
}
