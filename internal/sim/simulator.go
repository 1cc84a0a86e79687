// Package sim drives the tracked-object state forward in simulated time.
//
// Each Tick is a full recomputation at the next simulated instant: every
// catalog satellite is re-propagated, every user body is advanced along its
// circular orbit, and the collision scanner ranks the close approaches. The
// resulting Snapshot replaces the previous one atomically and is appended to
// a rolling History used for trails.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/star/orbitwatch/internal/collision"
	"github.com/star/orbitwatch/internal/metrics"
	"github.com/star/orbitwatch/internal/orbit"
	"github.com/star/orbitwatch/internal/usersat"
)

const tracerName = "github.com/star/orbitwatch/internal/sim"

// ErrNotFound is returned when a user satellite id is unknown.
var ErrNotFound = errors.New("user satellite not found")

// Config holds simulator configuration loaded from environment variables.
type Config struct {
	Step           time.Duration // Simulated time per tick (default: 1s).
	HorizonSeconds float64       // Collision look-ahead (default: 7200).
	MaxAlerts      int           // Alerts kept per snapshot (default: 20).
	Workers        int           // Fine-scan workers (default: 1).
	HistoryLength  int           // Snapshots kept for trails (default: 120).
	Start          time.Time     // Simulated instant of the first tick (default: now).
}

func (c Config) withDefaults() Config {
	if c.Step <= 0 {
		c.Step = time.Second
	}
	if c.HorizonSeconds <= 0 {
		c.HorizonSeconds = 7200
	}
	if c.MaxAlerts <= 0 {
		c.MaxAlerts = 20
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.HistoryLength <= 0 {
		c.HistoryLength = 120
	}
	if c.Start.IsZero() {
		c.Start = time.Now()
	}
	c.Start = c.Start.UTC()
	return c
}

// Simulator owns the simulated clock, the user bodies and the latest snapshot.
type Simulator struct {
	cfg     Config
	catalog *orbit.Catalog
	scanner *collision.Scanner
	history *History
	logger  *slog.Logger

	tickMu sync.Mutex // serializes Tick

	mu    sync.Mutex // guards ticks and users
	ticks uint64
	users []usersat.Satellite

	latest atomic.Pointer[Snapshot]
}

// New creates a simulator over catalog. A nil catalog simulates user bodies only.
func New(catalog *orbit.Catalog, cfg Config, logger *slog.Logger) *Simulator {
	cfg = cfg.withDefaults()
	logger.Info("simulator initialized",
		"start", cfg.Start.Format(time.RFC3339),
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.HorizonSeconds,
		"max_alerts", cfg.MaxAlerts,
		"history_length", cfg.HistoryLength,
	)
	return &Simulator{
		cfg:     cfg,
		catalog: catalog,
		scanner: collision.NewScanner(collision.ScanConfig{
			HorizonSeconds: cfg.HorizonSeconds,
			Limit:          cfg.MaxAlerts,
			Workers:        cfg.Workers,
		}, logger),
		history: NewHistory(cfg.HistoryLength, cfg.Step, logger),
		logger:  logger,
	}
}

// Config returns the effective configuration.
func (s *Simulator) Config() Config { return s.cfg }

// History returns the snapshot window.
func (s *Simulator) History() *History { return s.history }

// Catalog returns the catalog the simulator propagates, possibly nil.
func (s *Simulator) Catalog() *orbit.Catalog { return s.catalog }

// Now returns the simulated instant the next Tick will compute.
func (s *Simulator) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowLocked()
}

func (s *Simulator) nowLocked() time.Time {
	return s.cfg.Start.Add(time.Duration(s.ticks) * s.cfg.Step)
}

// Snapshot returns the latest snapshot, or nil before the first Tick.
func (s *Simulator) Snapshot() *Snapshot {
	return s.latest.Load()
}

// Ready reports whether a snapshot has been produced.
func (s *Simulator) Ready() bool {
	return s.latest.Load() != nil
}

// Tick computes the state at the current simulated instant, publishes it,
// and advances the clock by one step.
func (s *Simulator) Tick(ctx context.Context) (*Snapshot, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "sim.Tick")
	defer span.End()

	start := time.Now()

	s.mu.Lock()
	tick := s.ticks
	at := s.nowLocked()
	users := append([]usersat.Satellite(nil), s.users...)
	s.mu.Unlock()

	snap := &Snapshot{
		Tick:       tick + 1,
		Time:       at,
		SimSeconds: at.Sub(s.cfg.Start).Seconds(),
	}

	if s.catalog != nil {
		if ds := s.catalog.Store().Get(); ds != nil {
			snap.DatasetSource = ds.Source
			snap.DatasetFetchedAt = ds.FetchedAt
			metrics.SetTLEDatasetAge(time.Since(ds.FetchedAt).Seconds())
		}
		frame, err := s.catalog.PropagateToTime(ctx, at)
		switch {
		case errors.Is(err, orbit.ErrNoDataset):
		case err != nil:
			span.RecordError(err)
			return nil, fmt.Errorf("propagating catalog: %w", err)
		default:
			snap.Satellites = frame.Satellites
		}
	}
	if snap.Satellites == nil {
		snap.Satellites = []orbit.SatellitePosition{}
	}

	snap.UserSatellites = propagateUsers(users, at)

	alerts, stats, err := s.scanner.Scan(ctx, snap.Objects(), at)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	snap.Alerts = alerts
	snap.Scan = stats
	for _, a := range alerts {
		switch a.RiskLevel {
		case collision.RiskDanger:
			snap.DangerCount++
		case collision.RiskProximity:
			snap.ProximityCount++
		}
	}

	s.mu.Lock()
	s.ticks = tick + 1
	s.mu.Unlock()

	s.latest.Store(snap)
	s.history.put(snap)

	duration := time.Since(start)
	metrics.RecordTick(duration, int64(snap.SimSeconds))
	metrics.SetTrackedObjects(len(snap.Satellites), len(snap.UserSatellites))
	metrics.SetCollisionAlerts(snap.DangerCount, snap.ProximityCount)
	span.SetAttributes(
		attribute.Int64("sim.tick", int64(snap.Tick)),
		attribute.Int("sim.catalog", len(snap.Satellites)),
		attribute.Int("sim.user", len(snap.UserSatellites)),
		attribute.Int("sim.alerts", len(snap.Alerts)),
	)
	s.logger.Debug("tick complete",
		"tick", snap.Tick,
		"sim_time", at.Format(time.RFC3339),
		"catalog", len(snap.Satellites),
		"user", len(snap.UserSatellites),
		"danger", snap.DangerCount,
		"proximity", snap.ProximityCount,
		"duration_ms", duration.Milliseconds(),
	)
	return snap, nil
}

// Run ticks once immediately and then every interval until ctx is cancelled.
// Blocks until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.cfg.Step
	}
	s.runTick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped", "ticks", s.Snapshot().tickOrZero())
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Simulator) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("simulator tick failed", "error", err)
	}
}

func (snap *Snapshot) tickOrZero() uint64 {
	if snap == nil {
		return 0
	}
	return snap.Tick
}

// AddUserSatellite validates req and adds the body at the current simulated
// instant. Rejections are returned as *usersat.RejectionError.
func (s *Simulator) AddUserSatellite(req usersat.Request) (UserSatellite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sat, err := usersat.New(req, len(s.users)+1, s.nowLocked())
	if err != nil {
		var rej *usersat.RejectionError
		if errors.As(err, &rej) {
			metrics.IncUserSatelliteRejections(rej.Code)
		}
		s.logger.Info("user satellite rejected", "error", err)
		return UserSatellite{}, err
	}
	s.users = append(s.users, sat)

	s.logger.Info("user satellite added",
		"id", sat.ID,
		"name", sat.Name,
		"mass", sat.Mass,
		"count", len(s.users),
	)
	return UserSatellite{Satellite: sat, State: usersat.Propagate(sat, 0)}, nil
}

// RemoveUserSatellite removes one body by id.
func (s *Simulator) RemoveUserSatellite(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sat := range s.users {
		if sat.ID == id {
			s.users = append(s.users[:i:i], s.users[i+1:]...)
			s.logger.Info("user satellite removed", "id", id, "count", len(s.users))
			return nil
		}
	}
	return fmt.Errorf("user satellite %q: %w", id, ErrNotFound)
}

// ClearUserSatellites removes every user body and returns how many there were.
func (s *Simulator) ClearUserSatellites() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.users)
	s.users = nil
	s.logger.Info("user satellites cleared", "removed", n)
	return n
}

// UserSatellites returns every user body with its state at the current
// simulated instant, in insertion order.
func (s *Simulator) UserSatellites() []UserSatellite {
	s.mu.Lock()
	users := append([]usersat.Satellite(nil), s.users...)
	at := s.nowLocked()
	s.mu.Unlock()

	return propagateUsers(users, at)
}

// propagateUsers advances each body by the simulated time since its creation.
func propagateUsers(users []usersat.Satellite, at time.Time) []UserSatellite {
	out := make([]UserSatellite, len(users))
	for i, sat := range users {
		out[i] = UserSatellite{
			Satellite: sat,
			State:     usersat.Propagate(sat, at.Sub(sat.CreatedAt).Seconds()),
		}
	}
	return out
}

func buildObjects(users []UserSatellite, sats []orbit.SatellitePosition) []collision.Object {
	objs := make([]collision.Object, 0, len(users)+len(sats))
	for _, u := range users {
		objs = append(objs, collision.Object{
			ID:       u.ID,
			Name:     u.Name,
			Position: collision.Vec3{X: u.State.X, Y: u.State.Y, Z: u.State.Z},
			Velocity: collision.Vec3{X: u.State.VX, Y: u.State.VY, Z: u.State.VZ},
		})
	}
	for _, sp := range sats {
		p := sp.Position
		objs = append(objs, collision.Object{
			ID:       strconv.Itoa(sp.NORADID),
			Name:     sp.Name,
			Position: collision.Vec3{X: p.X, Y: p.Y, Z: p.Z},
			Velocity: collision.Vec3{X: p.VX, Y: p.VY, Z: p.VZ},
		})
	}
	return objs
}
