package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/star/orbitwatch/internal/auth"
	"github.com/star/orbitwatch/internal/orbit"
	"github.com/star/orbitwatch/internal/sim"
	"github.com/star/orbitwatch/internal/stream"
	"github.com/star/orbitwatch/internal/tle"
)

const (
	issLine1      = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2      = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

var simStart = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testSimulator(t *testing.T) *sim.Simulator {
	t.Helper()
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", "stations", simStart, []tle.TLEEntry{
		{NORADID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2},
		{NORADID: 44713, Name: "STARLINK-1007", Line1: starlinkLine1, Line2: starlinkLine2},
	}))
	catalog := orbit.NewCatalog(store, orbit.Config{Workers: 2}, testLogger())
	return sim.New(catalog, sim.Config{Step: time.Second, HistoryLength: 10, Start: simStart}, testLogger())
}

// testHandler returns the full handler chain over a simulator that has ticked once.
func testHandler(t *testing.T, authCfg auth.Config, deps Deps) (http.Handler, *sim.Simulator) {
	t.Helper()
	if deps.Simulator == nil {
		deps.Simulator = testSimulator(t)
	}
	if _, err := deps.Simulator.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return newHandler(testLogger(), authCfg, deps), deps.Simulator
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestReadinessFollowsFirstTick(t *testing.T) {
	s := testSimulator(t)
	h := newHandler(testLogger(), auth.Config{}, Deps{Simulator: s})

	if w := do(t, h, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before tick = %d, want 503", w.Code)
	}
	for _, path := range []string{"/api/v1/satellites", "/api/v1/collisions"} {
		if w := do(t, h, "GET", path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s before tick = %d, want 503", path, w.Code)
		}
	}

	s.Tick(context.Background())
	if w := do(t, h, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz after tick = %d, want 200", w.Code)
	}
	if w := do(t, h, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", w.Code)
	}
}

func TestSatellites(t *testing.T) {
	h, _ := testHandler(t, auth.Config{}, Deps{})

	w := do(t, h, "GET", "/api/v1/satellites", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode(t, w)
	if resp["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
	sats := resp["satellites"].([]any)
	first := sats[0].(map[string]any)
	if first["norad_id"].(float64) != 25544 || first["name"] != "ISS" {
		t.Errorf("first satellite = %v", first)
	}
	el, ok := first["elements"].(map[string]any)
	if !ok || el["mean_motion"].(float64) != 15.5 {
		t.Errorf("elements = %v", first["elements"])
	}
	pos := first["position"].(map[string]any)
	for _, key := range []string{"altitude", "altitude_geocentric", "latitude", "x", "vx"} {
		if _, ok := pos[key]; !ok {
			t.Errorf("position missing %q", key)
		}
	}
}

func TestGroundTrack(t *testing.T) {
	h, _ := testHandler(t, auth.Config{}, Deps{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantPoints int
	}{
		{"defaults: one period at 2 min", "/api/v1/satellites/25544/groundtrack", http.StatusOK, 47},
		{"explicit", "/api/v1/satellites/25544/groundtrack?duration=10&step=1", http.StatusOK, 11},
		{"too many samples", "/api/v1/satellites/25544/groundtrack?duration=10000&step=1", http.StatusBadRequest, 0},
		{"too many samples from a tiny step", "/api/v1/satellites/25544/groundtrack?duration=100&step=1e-300", http.StatusBadRequest, 0},
		{"infinite step", "/api/v1/satellites/25544/groundtrack?step=Inf", http.StatusBadRequest, 0},
		{"zero step", "/api/v1/satellites/25544/groundtrack?step=0", http.StatusBadRequest, 0},
		{"negative duration", "/api/v1/satellites/25544/groundtrack?duration=-5", http.StatusBadRequest, 0},
		{"non-numeric", "/api/v1/satellites/25544/groundtrack?duration=abc", http.StatusBadRequest, 0},
		{"bad id", "/api/v1/satellites/iss/groundtrack", http.StatusBadRequest, 0},
		{"unknown id", "/api/v1/satellites/99999/groundtrack", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "GET", tt.path, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode(t, w)
			if tt.wantStatus != http.StatusOK {
				if resp["error"] == nil {
					t.Error("expected error field in response")
				}
				if strings.HasPrefix(tt.name, "too many samples") && resp["max_samples"] == nil {
					t.Error("expected max_samples field in response")
				}
				return
			}
			if got := len(resp["points"].([]any)); got != tt.wantPoints {
				t.Errorf("points = %d, want %d", got, tt.wantPoints)
			}
		})
	}
}

func TestGroundTrackWithoutDataset(t *testing.T) {
	catalog := orbit.NewCatalog(tle.NewStore(), orbit.Config{Workers: 1}, testLogger())
	s := sim.New(catalog, sim.Config{Start: simStart}, testLogger())
	h, _ := testHandler(t, auth.Config{}, Deps{Simulator: s})

	if w := do(t, h, "GET", "/api/v1/satellites/25544/groundtrack", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestUserSatelliteLifecycle(t *testing.T) {
	h, _ := testHandler(t, auth.Config{}, Deps{})

	w := do(t, h, "POST", "/api/v1/user-satellites", `{"x":7000,"y":0,"z":0,"name":"probe"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (%s)", w.Code, w.Body.String())
	}
	created := decode(t, w)
	id, _ := created["id"].(string)
	if id == "" || created["name"] != "probe" || created["mass"].(float64) != 1000 {
		t.Errorf("created = %v", created)
	}
	if _, ok := created["state"].(map[string]any); !ok {
		t.Error("created body has no state")
	}

	w = do(t, h, "POST", "/api/v1/user-satellites", `{"x":7100}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("second create status = %d", w.Code)
	}
	if name := decode(t, w)["name"]; name != "satellite-2" {
		t.Errorf("default name = %v, want satellite-2", name)
	}

	list := decode(t, do(t, h, "GET", "/api/v1/user-satellites", ""))
	if list["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", list["count"])
	}

	if w := do(t, h, "DELETE", "/api/v1/user-satellites/"+id, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := do(t, h, "DELETE", "/api/v1/user-satellites/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}

	w = do(t, h, "DELETE", "/api/v1/user-satellites", "")
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	if removed := decode(t, w)["removed"]; removed.(float64) != 1 {
		t.Errorf("removed = %v, want 1", removed)
	}
}

func TestUserSatelliteRejection(t *testing.T) {
	h, _ := testHandler(t, auth.Config{}, Deps{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"inside the earth", `{"x":6400}`, http.StatusUnprocessableEntity, "too_low"},
		{"beyond max altitude", `{"x":60000}`, http.StatusUnprocessableEntity, "too_high"},
		{"negative mass", `{"x":7000,"mass":-1}`, http.StatusUnprocessableEntity, "invalid"},
		{"malformed json", `{"x":`, http.StatusBadRequest, ""},
		{"empty body", ``, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/user-satellites", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decode(t, w)
			if resp["error"] == nil || resp["error"] == "" {
				t.Error("missing error message")
			}
			if tt.wantCode != "" && resp["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", resp["code"], tt.wantCode)
			}
		})
	}
}

func TestCollisions(t *testing.T) {
	h, s := testHandler(t, auth.Config{}, Deps{})

	w := do(t, h, "GET", "/api/v1/collisions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode(t, w)
	if _, ok := resp["alerts"].([]any); !ok {
		t.Errorf("alerts = %v, want array", resp["alerts"])
	}
	if resp["horizon_seconds"].(float64) != s.Config().HorizonSeconds {
		t.Errorf("horizon_seconds = %v", resp["horizon_seconds"])
	}
}

func TestCollisionsAtPastTick(t *testing.T) {
	h, s := testHandler(t, auth.Config{}, Deps{})
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantTick   float64
	}{
		{"latest", "", http.StatusOK, 2},
		{"first tick", "?at=" + simStart.Format(time.RFC3339), http.StatusOK, 1},
		{"inside the first step", "?at=" + simStart.Add(500*time.Millisecond).Format(time.RFC3339Nano), http.StatusOK, 1},
		{"not retained", "?at=" + simStart.Add(time.Hour).Format(time.RFC3339), http.StatusNotFound, 0},
		{"bad time", "?at=yesterday", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "GET", "/api/v1/collisions"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode(t, w)
			if tt.wantStatus != http.StatusOK {
				if resp["error"] == nil {
					t.Error("expected error field in response")
				}
				return
			}
			if resp["tick"].(float64) != tt.wantTick {
				t.Errorf("tick = %v, want %v", resp["tick"], tt.wantTick)
			}
		})
	}
}

func TestPredict(t *testing.T) {
	h, _ := testHandler(t, auth.Config{}, Deps{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantRisk   string
	}{
		{
			name:       "inline objects",
			body:       `{"a":{"id":"a","position":{"x":7000,"y":0,"z":0},"velocity":{"x":0,"y":0,"z":0}},"b":{"position":{"x":7000.5,"y":0,"z":0},"velocity":{"x":0,"y":0,"z":0}},"horizon_seconds":60}`,
			wantStatus: http.StatusOK,
			wantRisk:   "danger",
		},
		{"by id", `{"a":"25544","b":"44713"}`, http.StatusOK, ""},
		{"unknown id", `{"a":"25544","b":"nope"}`, http.StatusNotFound, ""},
		{"missing b", `{"a":"25544"}`, http.StatusBadRequest, ""},
		{"zero horizon", `{"a":"25544","b":"44713","horizon_seconds":0}`, http.StatusBadRequest, ""},
		{"horizon too large", `{"a":"25544","b":"44713","horizon_seconds":90000}`, http.StatusBadRequest, ""},
		{"malformed", `[1,2]`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/api/v1/collisions/predict", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode(t, w)
			if tt.wantStatus != http.StatusOK {
				return
			}
			if tt.wantRisk != "" && resp["risk_level"] != tt.wantRisk {
				t.Errorf("risk_level = %v, want %s", resp["risk_level"], tt.wantRisk)
			}
			if tt.name == "inline objects" && resp["sat2_id"] != "b" {
				t.Errorf("sat2_id = %v, want default id b", resp["sat2_id"])
			}
		})
	}
}

func TestFetchDisabled(t *testing.T) {
	h, _ := testHandler(t, auth.Config{}, Deps{})
	if w := do(t, h, "POST", "/api/v1/satellites/fetch", ""); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestFetch(t *testing.T) {
	feed := "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, feed)
	}))
	defer upstream.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	s := testSimulator(t)
	newLoader := func(url string) *tle.Loader {
		return &tle.Loader{
			Store:     s.Catalog().Store(),
			Fetcher:   tle.NewFetcher(url, testLogger()),
			SourceURL: url,
			Logger:    testLogger(),
		}
	}

	h, _ := testHandler(t, auth.Config{}, Deps{Simulator: s, Loader: newLoader(upstream.URL), Category: "stations"})
	w := do(t, h, "POST", "/api/v1/satellites/fetch", `{"category":"stations"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["count"].(float64) != 1 || resp["category"] != "stations" {
		t.Errorf("response = %v", resp)
	}
	if got := len(s.Catalog().Store().Get().Satellites); got != 1 {
		t.Errorf("store holds %d satellites, want 1", got)
	}

	if w := do(t, h, "POST", "/api/v1/satellites/fetch", `{"category":`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}

	bad := newHandler(testLogger(), auth.Config{}, Deps{Simulator: s, Loader: newLoader(failing.URL)})
	if w := do(t, bad, "POST", "/api/v1/satellites/fetch", ""); w.Code != http.StatusBadGateway {
		t.Errorf("upstream failure status = %d, want 502", w.Code)
	}
}

func TestStatus(t *testing.T) {
	s := testSimulator(t)
	st := stream.NewHandler(s, stream.Config{}, testLogger())
	h, _ := testHandler(t, auth.Config{}, Deps{Simulator: s, Stream: st})

	resp := decode(t, do(t, h, "GET", "/api/v1/status", ""))
	if resp["ready"] != true || resp["tick"].(float64) != 1 {
		t.Errorf("ready/tick = %v/%v", resp["ready"], resp["tick"])
	}
	tracked := resp["tracked"].(map[string]any)
	if tracked["catalog"].(float64) != 2 {
		t.Errorf("tracked = %v", tracked)
	}
	ds := resp["dataset"].(map[string]any)
	if ds["source"] != "test" || ds["satellites"].(float64) != 2 || ds["generation"].(float64) != 1 {
		t.Errorf("dataset = %v", ds)
	}
	feed := resp["feed"].(map[string]any)
	if feed["fetch_enabled"] != false || len(feed["categories"].([]any)) != len(tle.Categories()) {
		t.Errorf("feed = %v", feed)
	}
	if resp["streams_active"].(float64) != 0 {
		t.Errorf("streams_active = %v", resp["streams_active"])
	}
}

func TestStreamRouteFlushesThroughMiddleware(t *testing.T) {
	s := testSimulator(t)
	st := stream.NewHandler(s, stream.Config{PollInterval: 10 * time.Millisecond}, testLogger())
	h, _ := testHandler(t, auth.Config{}, Deps{Simulator: s, Stream: st})

	req := httptest.NewRequest("GET", "/api/v1/stream?trail=0", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 100*time.Millisecond)
	defer cancel()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(ctx))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: metadata") || !strings.Contains(body, "event: snapshot") {
		t.Errorf("stream body missing events: %q", body)
	}
}

func TestAuthOnMutations(t *testing.T) {
	cfg := auth.Config{Enabled: true, Token: "secret", PublicReads: true}
	h, _ := testHandler(t, cfg, Deps{})

	if w := do(t, h, "GET", "/api/v1/satellites", ""); w.Code != http.StatusOK {
		t.Errorf("public read = %d, want 200", w.Code)
	}
	if w := do(t, h, "POST", "/api/v1/user-satellites", `{"x":7000}`); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated mutation = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/user-satellites", strings.NewReader(`{"x":7000}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authenticated mutation = %d, want 201", w.Code)
	}
}

func TestProbePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/healthz", true},
		{"/readyz", true},
		{"/metrics", true},
		{"/api/v1/status", false},
	}
	for _, tt := range tests {
		if got := probePath(tt.path); got != tt.want {
			t.Errorf("probePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
