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
)

// Domain metrics
var (
	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Session gate decisions on protected navigations.",
		},
		[]string{"state"},
	)

	authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Registration and login attempts by outcome.",
		},
		[]string{"op", "outcome"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Calls forwarded to the document/chat API.",
		},
		[]string{"op", "outcome"},
	)
)

var initOnce sync.Once

// Init registers all collectors in the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			gateDecisions, authAttempts, upstreamRequests,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGateDecision counts one gate evaluation.
func ObserveGateDecision(state string) {
	gateDecisions.WithLabelValues(state).Inc()
}

// ObserveAuthAttempt counts one register/login attempt.
func ObserveAuthAttempt(op, outcome string) {
	authAttempts.WithLabelValues(op, outcome).Inc()
}

// ObserveUpstream counts one downstream call.
func ObserveUpstream(op, outcome string) {
	upstreamRequests.WithLabelValues(op, outcome).Inc()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// OtherPath labels every request path the router does not serve.
const OtherPath = "other"

var (
	knownMu    sync.RWMutex
	knownPaths = map[string]struct{}{
		"/":                  {},
		"/healthz":           {},
		"/readyz":            {},
		"/metrics":           {},
		"/login":             {},
		"/register":          {},
		"/logout":            {},
		"/documents":         {},
		"/dashboard":         {},
		"/profile":           {},
		"/api/auth/register": {},
		"/api/auth/login":    {},
		"/api/auth/logout":   {},
		"/api/documents":     {},
		"/api/upload-csv":    {},
	}
)

// TrackPath adds static paths that CanonicalPath reports as themselves,
// such as a configured login page.
func TrackPath(paths ...string) {
	knownMu.Lock()
	defer knownMu.Unlock()
	for _, p := range paths {
		knownPaths[p] = struct{}{}
	}
}

// CanonicalPath maps a request path onto a fixed label set: known routes,
// route templates with ids collapsed, and OtherPath for everything else.
func CanonicalPath(raw string) string {
	path := raw
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	knownMu.RLock()
	_, ok := knownPaths[path]
	knownMu.RUnlock()
	if ok {
		return path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "documents" && (parts[3] == "delete" || parts[3] == "rename"):
		return "/api/documents/:id/" + parts[3]
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "chat":
		return "/api/chat/:id"
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "chat" && parts[3] == "history":
		return "/api/chat/:id/history"
	}
	return OtherPath
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
