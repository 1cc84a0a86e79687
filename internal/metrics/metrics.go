package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitwatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbitwatch_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	tleDatasetCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitwatch_tle_dataset_satellites",
		Help: "Number of decodable satellites in the current TLE dataset.",
	})

	tleDatasetAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitwatch_tle_dataset_age_seconds",
		Help: "Age of the current TLE dataset.",
	})

	tleParseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitwatch_tle_parse_errors_total",
		Help: "Element sets rejected as malformed.",
	})

	propagationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitwatch_propagation_duration_seconds",
		Help:    "Time to propagate the full catalog to one instant.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	propagationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitwatch_propagations_total",
			Help: "Satellite propagations by result.",
		},
		[]string{"result"},
	)

	propagationWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitwatch_propagation_workers",
		Help: "Size of the propagation worker pool.",
	})

	simTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitwatch_sim_ticks_total",
		Help: "Simulator ticks completed.",
	})

	simTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitwatch_sim_tick_duration_seconds",
		Help:    "Wall time of one simulator tick.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	simSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitwatch_sim_elapsed_seconds",
		Help: "Simulated seconds elapsed since the simulator started.",
	})

	trackedObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbitwatch_tracked_objects",
			Help: "Objects in the current snapshot by kind.",
		},
		[]string{"kind"},
	)

	userSatelliteRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitwatch_user_satellite_rejections_total",
			Help: "User satellites rejected by the position validator.",
		},
		[]string{"reason"},
	)

	collisionAlerts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orbitwatch_collision_alerts",
			Help: "Alerts in the current snapshot by risk level.",
		},
		[]string{"risk"},
	)

	collisionPairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitwatch_collision_pairs_total",
			Help: "Object pairs seen by the alert scanner by stage.",
		},
		[]string{"stage"},
	)

	collisionScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitwatch_collision_scan_duration_seconds",
		Help:    "Wall time of one alert scan.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	historyEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitwatch_history_entries",
		Help: "Snapshots retained in the history window.",
	})

	historyLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitwatch_history_lookups_total",
			Help: "History window lookups by result.",
		},
		[]string{"result"},
	)

	historyEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitwatch_history_evictions_total",
		Help: "Snapshots evicted from the history window.",
	})

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitwatch_stream_connections_total",
			Help: "SSE connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitwatch_streams_active",
		Help: "Currently open SSE streams.",
	})

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitwatch_stream_errors_total",
			Help: "SSE errors by kind.",
		},
		[]string{"kind"},
	)

	streamMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitwatch_stream_messages_total",
		Help: "SSE data messages sent.",
	})

	streamBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitwatch_stream_bytes_total",
		Help: "SSE bytes written.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		tleDatasetCount,
		tleDatasetAge,
		tleParseErrors,
		propagationDuration,
		propagationTotal,
		propagationWorkers,
		simTicksTotal,
		simTickDuration,
		simSeconds,
		trackedObjects,
		userSatelliteRejections,
		collisionAlerts,
		collisionPairs,
		collisionScanDuration,
		historyEntries,
		historyLookups,
		historyEvictions,
		streamConnections,
		streamsActive,
		streamErrors,
		streamMessages,
		streamBytes,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetTLEDatasetCount records how many satellites the current dataset decodes to.
func SetTLEDatasetCount(n int) { tleDatasetCount.Set(float64(n)) }

// SetTLEDatasetAge records the current dataset age in seconds.
func SetTLEDatasetAge(seconds float64) { tleDatasetAge.Set(seconds) }

// AddTLEParseErrors counts malformed element sets.
func AddTLEParseErrors(n int) {
	if n > 0 {
		tleParseErrors.Add(float64(n))
	}
}

// RecordPropagation records one catalog propagation pass.
func RecordPropagation(d time.Duration, success, errors int) {
	propagationDuration.Observe(d.Seconds())
	propagationTotal.WithLabelValues("success").Add(float64(success))
	propagationTotal.WithLabelValues("error").Add(float64(errors))
}

// SetPropagationWorkers records the worker pool size.
func SetPropagationWorkers(n int) { propagationWorkers.Set(float64(n)) }

// RecordTick records one simulator tick.
func RecordTick(d time.Duration, elapsedSimSeconds int64) {
	simTicksTotal.Inc()
	simTickDuration.Observe(d.Seconds())
	simSeconds.Set(float64(elapsedSimSeconds))
}

// SetTrackedObjects records the catalog and user object counts.
func SetTrackedObjects(catalog, user int) {
	trackedObjects.WithLabelValues("catalog").Set(float64(catalog))
	trackedObjects.WithLabelValues("user").Set(float64(user))
}

// IncUserSatelliteRejections counts a rejected user satellite.
func IncUserSatelliteRejections(reason string) {
	userSatelliteRejections.WithLabelValues(reason).Inc()
}

// SetCollisionAlerts records alert counts of the latest scan.
func SetCollisionAlerts(danger, proximity int) {
	collisionAlerts.WithLabelValues("danger").Set(float64(danger))
	collisionAlerts.WithLabelValues("proximity").Set(float64(proximity))
}

// RecordCollisionScan records pair counts per scan stage and the scan time.
func RecordCollisionScan(total, broadPhase, fineScan int, d time.Duration) {
	collisionPairs.WithLabelValues("total").Add(float64(total))
	collisionPairs.WithLabelValues("broad_phase").Add(float64(broadPhase))
	collisionPairs.WithLabelValues("fine_scan").Add(float64(fineScan))
	collisionScanDuration.Observe(d.Seconds())
}

// SetHistoryEntries records the history window size.
func SetHistoryEntries(n int) { historyEntries.Set(float64(n)) }

// IncHistoryHits counts a history lookup that found a snapshot.
func IncHistoryHits() { historyLookups.WithLabelValues("hit").Inc() }

// IncHistoryMisses counts a history lookup that found nothing.
func IncHistoryMisses() { historyLookups.WithLabelValues("miss").Inc() }

// AddHistoryEvictions counts evicted snapshots.
func AddHistoryEvictions(n int) { historyEvictions.Add(float64(n)) }

// IncStreamConnections counts a connect or disconnect event.
func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }

// IncStreamsActive increments the open stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the open stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamErrors counts a stream error of the given kind.
func IncStreamErrors(kind string) { streamErrors.WithLabelValues(kind).Inc() }

// IncStreamMessages counts one data message.
func IncStreamMessages() { streamMessages.Inc() }

// AddStreamBytes counts bytes written to streams.
func AddStreamBytes(n int64) { streamBytes.Add(float64(n)) }

// exactRoutes are the fixed paths reported verbatim as the path label.
var exactRoutes = map[string]bool{
	"/":                          true,
	"/healthz":                   true,
	"/readyz":                    true,
	"/metrics":                   true,
	"/api/v1/status":             true,
	"/api/v1/satellites":         true,
	"/api/v1/satellites/fetch":   true,
	"/api/v1/user-satellites":    true,
	"/api/v1/collisions":         true,
	"/api/v1/collisions/predict": true,
	"/api/v1/stream":             true,
}

// normalizeRoute maps a request path to a bounded set of labels so that
// catalog numbers and user satellite IDs do not explode cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/satellites/"); ok {
		if id, ok := strings.CutSuffix(rest, "/groundtrack"); ok && id != "" && !strings.Contains(id, "/") {
			return "/api/v1/satellites/{norad_id}/groundtrack"
		}
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/user-satellites/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/user-satellites/{id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so SSE works through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
