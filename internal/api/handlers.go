package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitwatch/internal/collision"
	"github.com/star/orbitwatch/internal/orbit"
	"github.com/star/orbitwatch/internal/sim"
	"github.com/star/orbitwatch/internal/tle"
	"github.com/star/orbitwatch/internal/usersat"
)

// Request limits.
const (
	defaultGroundTrackStep = 2.0 // minutes
	maxPredictHorizon      = 86400.0 // seconds
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// elementsView is the JSON form of tle.Elements.
type elementsView struct {
	Epoch         time.Time `json:"epoch"`
	MeanMotion    float64   `json:"mean_motion"`
	Eccentricity  float64   `json:"eccentricity"`
	Inclination   float64   `json:"inclination"`
	RAAN          float64   `json:"raan"`
	ArgPerigee    float64   `json:"arg_perigee"`
	MeanAnomaly   float64   `json:"mean_anomaly"`
	BStar         float64   `json:"bstar"`
	SemiMajorAxis float64   `json:"semi_major_axis"`
	Period        float64   `json:"period"`
	Apogee        float64   `json:"apogee"`
	Perigee       float64   `json:"perigee"`
}

func viewElements(el tle.Elements) *elementsView {
	return &elementsView{
		Epoch:         el.Epoch,
		MeanMotion:    el.MeanMotion,
		Eccentricity:  el.Eccentricity,
		Inclination:   el.Inclination,
		RAAN:          el.RAAN,
		ArgPerigee:    el.ArgPerigee,
		MeanAnomaly:   el.MeanAnomaly,
		BStar:         el.BStar,
		SemiMajorAxis: el.SemiMajorAxis,
		Period:        el.Period,
		Apogee:        el.Apogee,
		Perigee:       el.Perigee,
	}
}

type satelliteView struct {
	orbit.SatellitePosition
	Elements *elementsView `json:"elements,omitempty"`
}

// satellites handles GET /api/v1/satellites.
func (h *handlers) satellites(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Simulator.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "simulation not ready")
		return
	}

	index := make(map[int]tle.Elements)
	if cat := h.deps.Simulator.Catalog(); cat != nil {
		for _, el := range cat.Elements() {
			index[el.NORADID] = el
		}
	}

	out := make([]satelliteView, len(snap.Satellites))
	for i, s := range snap.Satellites {
		out[i] = satelliteView{SatellitePosition: s}
		if el, ok := index[s.NORADID]; ok {
			out[i].Elements = viewElements(el)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"time":               snap.Time,
		"tick":               snap.Tick,
		"dataset_source":     snap.DatasetSource,
		"dataset_fetched_at": snap.DatasetFetchedAt,
		"count":              len(out),
		"satellites":         out,
	})
}

// fetch handles POST /api/v1/satellites/fetch.
func (h *handlers) fetch(w http.ResponseWriter, r *http.Request) {
	loader := h.deps.Loader
	if loader == nil || loader.Fetcher == nil {
		writeError(w, http.StatusForbidden, "TLE fetch is disabled")
		return
	}

	var req struct {
		Category string `json:"category"`
	}
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	category := req.Category
	if category == "" {
		category = h.deps.Category
	}

	ds, err := loader.Refresh(r.Context(), category)
	switch {
	case errors.Is(err, tle.ErrFetchDisabled):
		writeError(w, http.StatusForbidden, "TLE fetch is disabled")
		return
	case err != nil:
		h.logger.Warn("TLE fetch failed", "category", category, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source":     ds.Source,
		"category":   ds.Category,
		"fetched_at": ds.FetchedAt,
		"count":      len(ds.Satellites),
	})
}

// groundTrack handles GET /api/v1/satellites/{norad_id}/groundtrack?duration=&step=.
// duration and step are in minutes.
func (h *handlers) groundTrack(w http.ResponseWriter, r *http.Request) {
	noradID, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || noradID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}

	cat := h.deps.Simulator.Catalog()
	if cat == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	el, err := cat.Lookup(noradID)
	switch {
	case errors.Is(err, orbit.ErrNoDataset):
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	case errors.Is(err, orbit.ErrUnknownSatellite):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	duration, err := floatParam(r, "duration", el.Period)
	if err != nil || duration < 0 {
		writeError(w, http.StatusBadRequest, "invalid duration parameter, must be a non-negative number of minutes")
		return
	}
	step, err := floatParam(r, "step", defaultGroundTrackStep)
	if err != nil || step <= 0 {
		writeError(w, http.StatusBadRequest, "invalid step parameter, must be a positive number of minutes")
		return
	}

	if n := orbit.GroundTrackSamples(duration, step); n > orbit.MaxGroundTrackSamples {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       fmt.Sprintf("ground track of %g min at %g min steps exceeds limit", duration, step),
			"max_samples": orbit.MaxGroundTrackSamples,
		})
		return
	}

	start := h.simTime()
	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id":         el.NORADID,
		"name":             el.Name,
		"start":            start,
		"duration_minutes": duration,
		"step_minutes":     step,
		"points":           orbit.GroundTrack(el, start, duration, step),
	})
}

// listUserSatellites handles GET /api/v1/user-satellites.
func (h *handlers) listUserSatellites(w http.ResponseWriter, r *http.Request) {
	users := h.deps.Simulator.UserSatellites()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":           len(users),
		"user_satellites": users,
	})
}

// addUserSatellite handles POST /api/v1/user-satellites.
func (h *handlers) addUserSatellite(w http.ResponseWriter, r *http.Request) {
	var req usersat.Request
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sat, err := h.deps.Simulator.AddUserSatellite(req)
	if err != nil {
		var rej *usersat.RejectionError
		if errors.As(err, &rej) {
			body := map[string]any{"error": rej.Reason, "code": rej.Code}
			if !math.IsNaN(rej.Altitude) && !math.IsInf(rej.Altitude, 0) {
				body["altitude"] = rej.Altitude
			}
			writeJSON(w, http.StatusUnprocessableEntity, body)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sat)
}

// removeUserSatellite handles DELETE /api/v1/user-satellites/{id}.
func (h *handlers) removeUserSatellite(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Simulator.RemoveUserSatellite(r.PathValue("id")); err != nil {
		if errors.Is(err, sim.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearUserSatellites handles DELETE /api/v1/user-satellites.
func (h *handlers) clearUserSatellites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": h.deps.Simulator.ClearUserSatellites()})
}

// collisions handles GET /api/v1/collisions.
func (h *handlers) collisions(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Simulator.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "simulation not ready")
		return
	}

	if v := r.URL.Query().Get("at"); v != "" {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at parameter, must be an RFC 3339 time")
			return
		}
		past := h.deps.Simulator.History().Get(at)
		if past == nil {
			stats := h.deps.Simulator.History().Stats()
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error":  "no snapshot retained for that time",
				"oldest": stats.Oldest,
				"newest": stats.Newest,
			})
			return
		}
		snap = past
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"time":            snap.Time,
		"tick":            snap.Tick,
		"horizon_seconds": h.deps.Simulator.Config().HorizonSeconds,
		"danger_count":    snap.DangerCount,
		"proximity_count": snap.ProximityCount,
		"alerts":          snap.Alerts,
		"scan":            snap.Scan,
	})
}

type predictRequest struct {
	A              json.RawMessage `json:"a"`
	B              json.RawMessage `json:"b"`
	HorizonSeconds *float64        `json:"horizon_seconds"`
}

// errUnknownObject marks a by-id reference that matched nothing.
var errUnknownObject = errors.New("unknown object")

// predict handles POST /api/v1/collisions/predict. a and b are either ids
// of tracked objects in the latest snapshot or inline objects
// {"id","name","position":{x,y,z},"velocity":{x,y,z}}.
func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	horizon := h.deps.Simulator.Config().HorizonSeconds
	if req.HorizonSeconds != nil {
		horizon = *req.HorizonSeconds
		if !(horizon > 0 && horizon <= maxPredictHorizon) {
			writeError(w, http.StatusBadRequest, "invalid horizon_seconds, must be in (0, 86400]")
			return
		}
	}

	snap := h.deps.Simulator.Snapshot()
	a, err := resolveObject(req.A, "a", snap)
	if err == nil {
		var b collision.Object
		b, err = resolveObject(req.B, "b", snap)
		if err == nil {
			writeJSON(w, http.StatusOK, collision.Predict(a, b, horizon, h.simTime()))
			return
		}
	}
	if errors.Is(err, errUnknownObject) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// resolveObject turns one side of a predict request into a collision object.
func resolveObject(raw json.RawMessage, field string, snap *sim.Snapshot) (collision.Object, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return collision.Object{}, fmt.Errorf("missing field %q", field)
	}

	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return collision.Object{}, fmt.Errorf("field %q: %w", field, err)
		}
		if snap == nil {
			return collision.Object{}, fmt.Errorf("%s %q: %w", field, id, errUnknownObject)
		}
		o, ok := snap.Find(id)
		if !ok {
			return collision.Object{}, fmt.Errorf("%s %q: %w", field, id, errUnknownObject)
		}
		return o, nil
	}

	var o collision.Object
	if err := json.Unmarshal(raw, &o); err != nil {
		return collision.Object{}, fmt.Errorf("field %q: %w", field, err)
	}
	if o.ID == "" {
		o.ID = field
	}
	for _, v := range []float64{o.Position.X, o.Position.Y, o.Position.Z, o.Velocity.X, o.Velocity.Y, o.Velocity.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return collision.Object{}, fmt.Errorf("field %q: non-finite component", field)
		}
	}
	return o, nil
}

// status handles GET /api/v1/status.
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	s := h.deps.Simulator
	cfg := s.Config()
	resp := map[string]any{
		"ready":           s.Ready(),
		"sim_start":       cfg.Start,
		"step_seconds":    cfg.Step.Seconds(),
		"horizon_seconds": cfg.HorizonSeconds,
		"history":         s.History().Stats(),
	}

	if snap := s.Snapshot(); snap != nil {
		resp["tick"] = snap.Tick
		resp["sim_time"] = snap.Time
		resp["sim_seconds"] = snap.SimSeconds
		resp["tracked"] = map[string]int{
			"catalog": len(snap.Satellites),
			"user":    len(snap.UserSatellites),
		}
		resp["alerts"] = map[string]int{
			"danger":    snap.DangerCount,
			"proximity": snap.ProximityCount,
		}
	}

	if cat := s.Catalog(); cat != nil {
		if ds, gen := cat.Store().Current(); ds != nil {
			resp["dataset"] = map[string]any{
				"source":      ds.Source,
				"category":    ds.Category,
				"fetched_at":  ds.FetchedAt,
				"age_seconds": int(cat.Store().AgeSeconds()),
				"satellites":  len(ds.Satellites),
				"generation":  gen,
			}
		}
	}
	resp["feed"] = map[string]any{
		"fetch_enabled": h.deps.Loader != nil && h.deps.Loader.Fetcher != nil,
		"categories":    tle.Categories(),
	}
	if h.deps.Stream != nil {
		resp["streams_active"] = h.deps.Stream.ActiveStreams()
	}
	writeJSON(w, http.StatusOK, resp)
}

// simTime is the instant of the latest snapshot, or the simulator start
// before the first tick.
func (h *handlers) simTime() time.Time {
	if snap := h.deps.Simulator.Snapshot(); snap != nil {
		return snap.Time
	}
	return h.deps.Simulator.Now()
}

// floatParam parses a finite float query parameter, returning def when absent.
func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: not finite", name)
	}
	return f, nil
}
