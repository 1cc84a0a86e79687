package collision

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/star/orbitwatch/internal/metrics"
)

const tracerName = "github.com/star/orbitwatch/internal/collision"

// pruneSlack absorbs float rounding between the analytic bound and the
// sampled distances, km.
const pruneSlack = 1e-6

// ScanConfig controls the alert scanner.
type ScanConfig struct {
	HorizonSeconds float64
	Limit          int // maximum alerts returned, 0 for all
	Workers        int
}

// ScanStats reports how many pairs each stage of a scan handled.
type ScanStats struct {
	Pairs      int `json:"pairs"`
	BroadPhase int `json:"broad_phase"`
	FineScan   int `json:"fine_scan"`
	Alerts     int `json:"alerts"`
}

// Scanner finds non-safe close approaches without sampling every pair.
//
// Its result is exactly Alerts(CheckAll(objects, horizon, now), limit).
// Pairs are first pruned by sweep-and-prune over swept bounding boxes and
// then by the continuous closest approach of the two straight-line paths,
// which bounds the sampled minimum from below.
type Scanner struct {
	cfg    ScanConfig
	logger *slog.Logger
}

// NewScanner creates a scanner. Workers below 1 is treated as 1.
func NewScanner(cfg ScanConfig, logger *slog.Logger) *Scanner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Scanner{cfg: cfg, logger: logger}
}

// Config returns the scanner's configuration.
func (s *Scanner) Config() ScanConfig { return s.cfg }

type pair struct{ i, j int }

type scored struct {
	pair
	p Prediction
}

// Scan returns the ranked non-safe predictions among objects. It stops
// between pairs when ctx is cancelled and returns the context error.
func (s *Scanner) Scan(ctx context.Context, objects []Object, now time.Time) ([]Prediction, ScanStats, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "collision.Scan",
		trace.WithAttributes(attribute.Int("objects", len(objects))))
	defer span.End()

	start := time.Now()
	horizon := s.cfg.HorizonSeconds
	stats := ScanStats{Pairs: pairCount(len(objects))}

	// Time of the last sample; every sample lies on the segment [0, tEnd].
	tEnd := float64((sampleCount(horizon) - 1) * StepSeconds)

	candidates := sweepAndPrune(objects, tEnd)
	stats.BroadPhase = len(candidates)

	fine := candidates[:0]
	for _, c := range candidates {
		if closestApproach(objects[c.i], objects[c.j], tEnd) < ProximityKm+pruneSlack {
			fine = append(fine, c)
		}
	}
	stats.FineScan = len(fine)

	results, err := s.fineScan(ctx, objects, fine, horizon, now)
	if err != nil {
		span.RecordError(err)
		return nil, stats, fmt.Errorf("collision scan: %w", err)
	}

	alerts := results[:0]
	for _, r := range results {
		if r.p.RiskLevel != RiskSafe {
			alerts = append(alerts, r)
		}
	}
	// CheckAll stable-sorts pairs generated in (i, j) order, so (i, j) is
	// the final tie-break here.
	slices.SortFunc(alerts, func(a, b scored) int {
		if c := comparePredictions(a.p, b.p); c != 0 {
			return c
		}
		if c := cmp.Compare(a.i, b.i); c != 0 {
			return c
		}
		return cmp.Compare(a.j, b.j)
	})
	if s.cfg.Limit > 0 && len(alerts) > s.cfg.Limit {
		alerts = alerts[:s.cfg.Limit]
	}

	out := make([]Prediction, len(alerts))
	for k, a := range alerts {
		out[k] = a.p
	}
	stats.Alerts = len(out)

	elapsed := time.Since(start)
	metrics.RecordCollisionScan(stats.Pairs, stats.BroadPhase, stats.FineScan, elapsed)
	span.SetAttributes(
		attribute.Int("pairs", stats.Pairs),
		attribute.Int("broad_phase", stats.BroadPhase),
		attribute.Int("fine_scan", stats.FineScan),
		attribute.Int("alerts", stats.Alerts),
	)
	if s.logger != nil {
		s.logger.Debug("collision scan complete",
			"objects", len(objects),
			"pairs", stats.Pairs,
			"broad_phase", stats.BroadPhase,
			"fine_scan", stats.FineScan,
			"alerts", stats.Alerts,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return out, stats, nil
}

// fineScan runs Predict over the surviving pairs on the worker pool.
func (s *Scanner) fineScan(ctx context.Context, objects []Object, pairs []pair, horizon float64, now time.Time) ([]scored, error) {
	results := make([]scored, len(pairs))
	if len(pairs) == 0 {
		return results, ctx.Err()
	}

	workers := min(s.cfg.Workers, len(pairs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				c := pairs[k]
				results[k] = scored{pair: c, p: Predict(objects[c.i], objects[c.j], horizon, now)}
			}
		}()
	}

	var err error
feed:
	for k := range pairs {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- k:
		}
	}
	close(jobs)
	wg.Wait()
	return results, err
}

// box is the axis-aligned bound of one object's path over [0, tEnd],
// padded by half the proximity threshold on every side.
type box struct {
	min, max Vec3
}

func sweptBox(o Object, tEnd float64) box {
	a, b := o.Position, o.At(tEnd)
	pad := ProximityKm/2 + pruneSlack
	return box{
		min: Vec3{X: math.Min(a.X, b.X) - pad, Y: math.Min(a.Y, b.Y) - pad, Z: math.Min(a.Z, b.Z) - pad},
		max: Vec3{X: math.Max(a.X, b.X) + pad, Y: math.Max(a.Y, b.Y) + pad, Z: math.Max(a.Z, b.Z) + pad},
	}
}

// sweepAndPrune returns the pairs whose padded boxes overlap, as (i < j)
// index pairs into objects.
func sweepAndPrune(objects []Object, tEnd float64) []pair {
	boxes := make([]box, len(objects))
	order := make([]int, len(objects))
	for i, o := range objects {
		boxes[i] = sweptBox(o, tEnd)
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return cmp.Compare(boxes[a].min.X, boxes[b].min.X)
	})

	var out []pair
	active := make([]int, 0, 16)
	for _, i := range order {
		bi := boxes[i]
		kept := active[:0]
		for _, j := range active {
			if boxes[j].max.X >= bi.min.X {
				kept = append(kept, j)
			}
		}
		active = kept

		for _, j := range active {
			bj := boxes[j]
			if bi.min.Y <= bj.max.Y && bj.min.Y <= bi.max.Y &&
				bi.min.Z <= bj.max.Z && bj.min.Z <= bi.max.Z {
				out = append(out, pair{i: min(i, j), j: max(i, j)})
			}
		}
		active = append(active, i)
	}
	return out
}

// closestApproach returns the minimum separation of the two straight-line
// paths over continuous t in [0, tEnd].
func closestApproach(a, b Object, tEnd float64) float64 {
	d0 := b.Position.Sub(a.Position)
	dv := b.Velocity.Sub(a.Velocity)

	t := 0.0
	if vv := dv.Dot(dv); vv > 0 {
		t = math.Max(0, math.Min(tEnd, -d0.Dot(dv)/vv))
	}
	return d0.Add(dv.Scale(t)).Norm()
}
