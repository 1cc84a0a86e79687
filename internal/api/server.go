package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitwatch/internal/auth"
	"github.com/star/orbitwatch/internal/health"
	"github.com/star/orbitwatch/internal/httputil"
	"github.com/star/orbitwatch/internal/metrics"
	"github.com/star/orbitwatch/internal/sim"
	"github.com/star/orbitwatch/internal/stream"
	"github.com/star/orbitwatch/internal/tle"
)

// Deps are the components the API serves from.
type Deps struct {
	Simulator  *sim.Simulator
	Loader     *tle.Loader     // nil disables POST /api/v1/satellites/fetch
	Stream     *stream.Handler // nil disables GET /api/v1/stream
	Category   string          // feed category refreshed when a request names none
	TrustProxy bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           newHandler(logger, authCfg, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// newHandler registers every route and wraps the mux in the middleware chain.
func newHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	h := &handlers{deps: deps, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Simulator.Ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/status", h.status)
	mux.HandleFunc("GET /api/v1/satellites", h.satellites)
	mux.HandleFunc("POST /api/v1/satellites/fetch", h.fetch)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/groundtrack", h.groundTrack)
	mux.HandleFunc("GET /api/v1/user-satellites", h.listUserSatellites)
	mux.HandleFunc("POST /api/v1/user-satellites", h.addUserSatellite)
	mux.HandleFunc("DELETE /api/v1/user-satellites", h.clearUserSatellites)
	mux.HandleFunc("DELETE /api/v1/user-satellites/{id}", h.removeUserSatellite)
	mux.HandleFunc("GET /api/v1/collisions", h.collisions)
	mux.HandleFunc("POST /api/v1/collisions/predict", h.predict)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream", deps.Stream.HandleStream)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger, deps.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush lets the SSE stream flush through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
