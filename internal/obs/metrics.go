package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registerOnce sync.Once

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the last readiness check succeeded.",
	})

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "InstituteOS build information.",
		},
		[]string{"service", "version"},
	)
)

// Domain metrics
var (
	// EdgeDecisions counts edge router outcomes by surface and action.
	EdgeDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_decisions_total",
			Help: "Edge router decisions by surface and action.",
		},
		[]string{"surface", "action"},
	)

	// TenantResolutions counts tenant resolution outcomes.
	TenantResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolutions_total",
			Help: "Tenant resolution outcomes (override, platform, tenant, public, unresolved, error).",
		},
		[]string{"result"},
	)

	// TrialRejections counts write operations blocked by an expired trial.
	TrialRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trial_rejections_total",
		Help: "Mutating requests rejected because the trial expired.",
	})

	// UsageRecords counts telemetry writes by result (ok, error, dropped).
	UsageRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_records_total",
			Help: "Feature usage telemetry writes by result.",
		},
		[]string{"result"},
	)

	// SignalRuns counts scheduled signal jobs by job and result.
	SignalRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_runs_total",
			Help: "Scheduled signal job runs by job and result.",
		},
		[]string{"job", "result"},
	)

	// SignalAlerts counts delivered task proximity alerts.
	SignalAlerts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signal_alerts_total",
		Help: "Task proximity alerts delivered.",
	})
)

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, buildInfo, readyGauge,
			EdgeDecisions, TenantResolutions, TrialRejections, UsageRecords,
			SignalRuns, SignalAlerts,
		)
	})
}

// InitBuildInfo sets build_info{service,version} to 1.
func InitBuildInfo(service, version string) {
	Init()
	buildInfo.WithLabelValues(service, version).Set(1)
}

// SetReady records the outcome of the latest readiness check.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RouteLabel maps a request to its metrics path label. It must return a
// bounded set of values.
type RouteLabel func(r *http.Request) string

// OtherRoute labels requests no route claims.
const OtherRoute = "other"

// Instrument records RPS, latency and in-flight requests, labelled by route.
func Instrument(next http.Handler, route RouteLabel) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := route(r)
		if path == "" {
			path = OtherRoute
		}
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := NewStatusWriter(w)
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.Status())
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers in API paths to keep label cardinality bounded.
// /api/v1/<module>/<id>/... keeps the first three segments and replaces the fourth
// with :id when it looks like a record identifier.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	if !strings.HasPrefix(raw, "/api/") {
		return raw
	}
	segments := strings.Split(strings.Trim(raw, "/"), "/")
	if len(segments) >= 4 && looksLikeID(segments[3]) {
		segments[3] = ":id"
	}
	return "/" + strings.Join(segments, "/")
}

func looksLikeID(s string) bool {
	if len(s) < 20 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
		default:
			return false
		}
	}
	return true
}

// StatusWriter remembers the response code written by the wrapped handler.
type StatusWriter struct {
	http.ResponseWriter
	code    int
	written bool
}

// NewStatusWriter wraps w with a default status of 200.
func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w, code: http.StatusOK}
}

func (w *StatusWriter) WriteHeader(code int) {
	if !w.written {
		w.code = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *StatusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Status returns the response code (200 if the handler never called WriteHeader).
func (w *StatusWriter) Status() int { return w.code }

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *StatusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
