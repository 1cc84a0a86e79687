// Package stream implements Server-Sent Events (SSE) streaming of simulator
// snapshots. Clients connect via GET /api/v1/stream and receive one event per
// simulator tick.
//
// SSE message format:
//
//	event: snapshot
//	id: 42
//	data: {"type":"snapshot","tick":42,"t":"2026-02-06T04:00:00Z","sat":[...],"user":[...],"alerts":[...]}
//
// The first event on every connection is metadata:
//
//	event: metadata
//	data: {"type":"metadata","dataset_source":"...","tle_age_seconds":1800,...}
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval without data.
package stream

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitwatch/internal/collision"
	"github.com/star/orbitwatch/internal/httputil"
	"github.com/star/orbitwatch/internal/metrics"
	"github.com/star/orbitwatch/internal/sim"
)

// Trail bounds for the trail query parameter.
const (
	defaultTrail = 20
	maxTrail     = 120
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	PollInterval       time.Duration // Snapshot poll interval (default: 250ms).
	TrustProxy         bool          // Honour X-Forwarded-For for per-IP limits.
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentPerIP <= 0 {
		c.MaxConcurrentPerIP = 10
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = DefaultMaxTotal
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// Handler manages SSE streaming connections.
type Handler struct {
	sim     *sim.Simulator
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler over simulator.
func NewHandler(simulator *sim.Simulator, config Config, logger *slog.Logger) *Handler {
	config = config.withDefaults()
	return &Handler{
		sim:     simulator,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger,
	}
}

// ActiveStreams returns the number of open streams.
func (h *Handler) ActiveStreams() int {
	return h.limiter.active()
}

// HandleStream serves the SSE snapshot stream.
// GET /api/v1/stream?trail=20
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	trail := defaultTrail
	if v := r.URL.Query().Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxTrail {
			writeError(w, http.StatusBadRequest, "invalid trail parameter, must be 0-120")
			return
		}
		trail = n
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if reason := h.limiter.acquire(ip); reason != limitOK {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"limit", reason,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"trail", trail,
	)

	c := &client{ip: ip, logger: h.logger}
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages", c.messagesSent,
			"bytes", c.bytesSent,
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}
	c.w, c.flusher, c.rc = w, flusher, rc

	// Jittered 3-7s reconnect delay avoids a reconnection storm on restart.
	if err := c.sendRetry(time.Duration(3000+rand.IntN(4000)) * time.Millisecond); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	if err := c.sendEvent("metadata", "", h.metadata()); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	// Ticks are numbered from 1, so zero means nothing sent yet.
	var lastTick uint64
	send := func() bool {
		snap := h.sim.Snapshot()
		if snap == nil || snap.Tick == lastTick {
			return true
		}
		var past []*sim.Snapshot
		if trail > 0 {
			past = h.sim.History().GetRecent(snap.Time.Add(-h.sim.Config().Step), trail)
		}
		msg := buildSnapshotMessage(snap, past)
		if err := c.sendEvent("snapshot", strconv.FormatUint(snap.Tick, 10), msg); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return false
		}
		lastTick = snap.Tick
		return true
	}

	if !send() {
		return
	}

	poll := time.NewTicker(h.config.PollInterval)
	defer poll.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			before := c.messagesSent
			if !send() {
				return
			}
			if c.messagesSent != before {
				keepalive.Reset(h.config.KeepaliveInterval)
			}

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) metadata() metadataMessage {
	cfg := h.sim.Config()
	meta := metadataMessage{
		Type:           "metadata",
		SimStart:       cfg.Start.Format(time.RFC3339),
		StepSeconds:    cfg.Step.Seconds(),
		HorizonSeconds: cfg.HorizonSeconds,
		TLEAge:         -1,
	}
	if cat := h.sim.Catalog(); cat != nil {
		if ds := cat.Store().Get(); ds != nil {
			meta.DatasetSource = ds.Source
			meta.DatasetCategory = ds.Category
			meta.DatasetFetchedAt = ds.FetchedAt.UTC().Format(time.RFC3339)
			meta.TLEAge = int(time.Since(ds.FetchedAt).Seconds())
			meta.SatelliteCount = len(ds.Satellites)
		}
	}
	return meta
}

// buildSnapshotMessage formats a snapshot into the SSE payload. past holds
// earlier snapshots, oldest first, from which each body's trail is taken.
func buildSnapshotMessage(snap *sim.Snapshot, past []*sim.Snapshot) snapshotMessage {
	satTrails := make(map[int][][3]float64)
	userTrails := make(map[string][][3]float64)
	for _, p := range past {
		for _, s := range p.Satellites {
			satTrails[s.NORADID] = append(satTrails[s.NORADID], geo(s.Position.Latitude, s.Position.Longitude, s.Position.Altitude))
		}
		for _, u := range p.UserSatellites {
			userTrails[u.ID] = append(userTrails[u.ID], geo(u.State.Latitude, u.State.Longitude, u.State.Altitude))
		}
	}

	msg := snapshotMessage{
		Type:           "snapshot",
		Tick:           snap.Tick,
		T:              snap.Time.UTC().Format(time.RFC3339),
		SimSeconds:     snap.SimSeconds,
		Sat:            make([]satPayload, len(snap.Satellites)),
		User:           make([]userPayload, len(snap.UserSatellites)),
		Alerts:         snap.Alerts,
		DangerCount:    snap.DangerCount,
		ProximityCount: snap.ProximityCount,
	}
	if msg.Alerts == nil {
		msg.Alerts = []collision.Prediction{}
	}
	for i, s := range snap.Satellites {
		p := s.Position
		msg.Sat[i] = satPayload{
			ID: s.NORADID,
			N:  s.Name,
			P:  [3]float64{p.X, p.Y, p.Z},
			G:  geo(p.Latitude, p.Longitude, p.Altitude),
			Tr: satTrails[s.NORADID],
		}
	}
	for i, u := range snap.UserSatellites {
		st := u.State
		msg.User[i] = userPayload{
			ID: u.ID,
			N:  u.Name,
			C:  u.Color,
			P:  [3]float64{st.X, st.Y, st.Z},
			G:  geo(st.Latitude, st.Longitude, st.Altitude),
			Tr: userTrails[u.ID],
		}
	}
	return msg
}

func geo(lat, lon, alt float64) [3]float64 {
	return [3]float64{lat, lon, alt}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// metadataMessage is the first SSE event sent on each connection.
type metadataMessage struct {
	Type             string  `json:"type"`
	DatasetSource    string  `json:"dataset_source,omitempty"`
	DatasetCategory  string  `json:"dataset_category,omitempty"`
	DatasetFetchedAt string  `json:"dataset_fetched_at,omitempty"`
	TLEAge           int     `json:"tle_age_seconds"`
	SatelliteCount   int     `json:"satellite_count"`
	SimStart         string  `json:"sim_start"`
	StepSeconds      float64 `json:"step_seconds"`
	HorizonSeconds   float64 `json:"horizon_seconds"`
}

// snapshotMessage is one simulator tick.
type snapshotMessage struct {
	Type           string                 `json:"type"`
	Tick           uint64                 `json:"tick"`
	T              string                 `json:"t"`
	SimSeconds     float64                `json:"sim_seconds"`
	Sat            []satPayload           `json:"sat"`
	User           []userPayload          `json:"user"`
	Alerts         []collision.Prediction `json:"alerts"`
	DangerCount    int                    `json:"danger"`
	ProximityCount int                    `json:"proximity"`
}

// satPayload is a catalog satellite: ECI position in km and geodetic
// [lat, lon, alt], with an optional geodetic trail (oldest first).
type satPayload struct {
	ID int          `json:"id"`
	N  string       `json:"n,omitempty"`
	P  [3]float64   `json:"p"`
	G  [3]float64   `json:"g"`
	Tr [][3]float64 `json:"tr,omitempty"`
}

// userPayload is a user satellite in the same layout plus its display colour.
type userPayload struct {
	ID string       `json:"id"`
	N  string       `json:"n"`
	C  string       `json:"c"`
	P  [3]float64   `json:"p"`
	G  [3]float64   `json:"g"`
	Tr [][3]float64 `json:"tr,omitempty"`
}
