// Command diag loads a TLE file and reports parse failures, how far the J2
// propagator drifts from SGP4, and whether the pruned collision scan agrees
// with the exhaustive one.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/star/orbitwatch/internal/collision"
	"github.com/star/orbitwatch/internal/orbit"
	"github.com/star/orbitwatch/internal/tle"
)

func main() {
	path := flag.String("tle", "/tmp/orbitwatch/tle/stations_latest.txt", "TLE file to diagnose")
	count := flag.Int("count", 5, "Records to check against SGP4")
	hours := flag.Float64("hours", 24, "Divergence window after each epoch, in hours")
	at := flag.String("at", "", "Collision scan instant (RFC 3339, default now)")
	horizon := flag.Float64("horizon", 7200, "Collision horizon in seconds")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Println("ERROR reading TLE file:", err)
		os.Exit(1)
	}

	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		fmt.Println("ERROR parsing TLE:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d TLE entries\n", len(entries))

	elements, errs := tle.ParseAll(entries)
	fmt.Printf("Decoded %d element sets, %d malformed\n", len(elements), len(errs))
	for _, e := range errs {
		fmt.Println("  ", e)
	}

	fmt.Printf("\nJ2 vs SGP4 divergence (km) over %.0f h:\n", *hours)
	n := min(*count, len(entries))
	for _, entry := range entries[:n] {
		times := make([]time.Time, 0, 5)
		for _, frac := range []float64{0, 0.25, 0.5, 0.75, 1} {
			times = append(times, entry.Epoch.Add(time.Duration(frac**hours*float64(time.Hour))))
		}
		d, err := orbit.Divergence(entry, times)
		if err != nil {
			fmt.Printf("  NORAD %d %-24s ERROR %v\n", entry.NORADID, entry.Name, err)
			continue
		}
		fmt.Printf("  NORAD %d %-24s", entry.NORADID, entry.Name)
		for _, v := range d {
			fmt.Printf(" %8.1f", v)
		}
		fmt.Println()
	}

	scanAt := time.Now().UTC()
	if *at != "" {
		scanAt, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Println("ERROR parsing -at:", err)
			os.Exit(1)
		}
	}

	store := tle.NewStore()
	store.Set(tle.NewDataset(*path, "file", time.Now().UTC(), entries))
	catalog := orbit.NewCatalog(store, orbit.Config{Workers: 4}, logger)
	frame, err := catalog.PropagateToTime(context.Background(), scanAt)
	if err != nil {
		fmt.Println("ERROR propagating:", err)
		os.Exit(1)
	}

	objects := make([]collision.Object, len(frame.Satellites))
	for i, s := range frame.Satellites {
		p := s.Position
		objects[i] = collision.Object{
			ID:       fmt.Sprint(s.NORADID),
			Name:     s.Name,
			Position: collision.Vec3{X: p.X, Y: p.Y, Z: p.Z},
			Velocity: collision.Vec3{X: p.VX, Y: p.VY, Z: p.VZ},
		}
	}

	fmt.Printf("\nCollision scan at %s, horizon %.0fs, %d objects:\n", scanAt.Format(time.RFC3339), *horizon, len(objects))

	start := time.Now()
	exhaustive := collision.Alerts(collision.CheckAll(objects, *horizon, scanAt), 0)
	exhaustiveTime := time.Since(start)

	scanner := collision.NewScanner(collision.ScanConfig{HorizonSeconds: *horizon, Workers: 4}, logger)
	start = time.Now()
	pruned, stats, err := scanner.Scan(context.Background(), objects, scanAt)
	if err != nil {
		fmt.Println("ERROR scanning:", err)
		os.Exit(1)
	}
	prunedTime := time.Since(start)

	fmt.Printf("  exhaustive: %d alerts in %v\n", len(exhaustive), exhaustiveTime)
	fmt.Printf("  pruned:     %d alerts in %v (pairs %d, broad phase %d, fine scan %d)\n",
		len(pruned), prunedTime, stats.Pairs, stats.BroadPhase, stats.FineScan)
	if reflect.DeepEqual(exhaustive, pruned) {
		fmt.Println("  results identical")
	} else {
		fmt.Println("  MISMATCH between exhaustive and pruned scans")
		os.Exit(1)
	}
	for _, a := range pruned {
		fmt.Printf("    %-9s %s / %s  %.3f km at T+%.0fs\n", a.RiskLevel, a.Sat1Name, a.Sat2Name, a.MinDistance, a.TimeToClosestApproach)
	}
}
