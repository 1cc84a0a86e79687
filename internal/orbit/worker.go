package orbit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/star/orbitwatch/internal/tle"
	"github.com/star/orbitwatch/internal/transform"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	index      int
	elements   tle.Elements
	targetTime time.Time
	gmstDeg    float64 // precomputed sidereal time for targetTime
}

// propagateResult is the output of a single satellite propagation.
type propagateResult struct {
	index    int
	position SatellitePosition
	err      error
}

// WorkerPool manages a fixed number of goroutines for parallel propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// PropagateBatch propagates every element set to targetTime. Results keep
// the input order. Failed satellites are logged and skipped; on context
// cancellation the positions completed so far are returned.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, elements []tle.Elements, targetTime time.Time) ([]SatellitePosition, int, int) {
	if len(elements) == 0 {
		return nil, 0, 0
	}

	// Sidereal time is the same for every satellite at one instant.
	gmstDeg := transform.SiderealTime(targetTime)

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := propagateSingle(job)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, el := range elements {
			job := propagateJob{
				index:      i,
				elements:   el,
				targetTime: targetTime,
				gmstDeg:    gmstDeg,
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	slots := make([]*SatellitePosition, len(elements))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("propagation failed",
				"norad_id", result.position.NORADID,
				"error", result.err,
			)
			continue
		}
		successCount++
		pos := result.position
		slots[result.index] = &pos
	}

	positions := make([]SatellitePosition, 0, successCount)
	for _, s := range slots {
		if s != nil {
			positions = append(positions, *s)
		}
	}
	return positions, successCount, errorCount
}

// propagateSingle propagates one satellite and rejects non-finite output.
func propagateSingle(job propagateJob) propagateResult {
	el := job.elements
	pos := propagate(el, job.targetTime, job.gmstDeg)
	sp := SatellitePosition{NORADID: el.NORADID, Name: el.Name, Position: pos}

	for _, v := range []float64{pos.X, pos.Y, pos.Z, pos.VX, pos.VY, pos.VZ} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return propagateResult{index: job.index, position: sp, err: fmt.Errorf("non-finite state for NORAD %d", el.NORADID)}
		}
	}
	return propagateResult{index: job.index, position: sp}
}
