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
		Name: "archmarket_ready",
		Help: "1 when the service reported ready on the last probe.",
	})

	// AuthzDecisions counts guard outcomes. Only the outcome is a label so the
	// metric cannot be used to map the permission table.
	AuthzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archmarket_authz_decisions_total",
			Help: "Authorization decisions by outcome.",
		},
		[]string{"outcome"},
	)

	WorkflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archmarket_workflow_transitions_total",
			Help: "Modification request transitions by destination status and result.",
		},
		[]string{"to", "result"},
	)

	ContentPolicyBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archmarket_content_policy_blocks_total",
			Help: "Texts rejected by the contact-info filter, by rule.",
		},
		[]string{"rule"},
	)

	EarningsFollowUpFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archmarket_earnings_followup_failures_total",
		Help: "Failed post-completion earnings lookups.",
	})

	StreamDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archmarket_stream_dropped_events_total",
		Help: "Workflow events dropped because a subscriber was full.",
	})
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
			AuthzDecisions, WorkflowTransitions, ContentPolicyBlocks,
			EarningsFollowUpFailures, StreamDropped,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the result of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Instrument measures RPS, latency and in-flight requests.
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

// CanonicalPath collapses identifiers so label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "modification-requests":
		parts[2] = ":id"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "designs":
		parts[2] = ":id"
	case len(parts) >= 4 && parts[0] == "v1" && parts[1] == "internal" && parts[2] == "modification-requests":
		parts[3] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
