package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finops_tool_calls_total",
			Help: "Total number of tool calls by outcome.",
		},
		[]string{"tool", "backend", "status", "error_kind"},
	)

	toolCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finops_tool_call_duration_seconds",
			Help:    "Tool call latency including the backend round trip.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tool", "backend"},
	)

	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finops_nl2sql_translations_total",
			Help: "Natural language translations by outcome (safe, rejected, model_unavailable, invalid).",
		},
		[]string{"outcome"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finops_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finops_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		toolCallsTotal,
		toolCallDurationSeconds,
		translationsTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

// ObserveToolCall records one dispatched tool call. errorKind is empty on
// success.
func ObserveToolCall(tool, backend, status, errorKind string, elapsed time.Duration) {
	toolCallsTotal.WithLabelValues(tool, backend, status, errorKind).Inc()
	toolCallDurationSeconds.WithLabelValues(tool, backend).Observe(elapsed.Seconds())
}

func ObserveTranslation(outcome string) {
	translationsTotal.WithLabelValues(outcome).Inc()
}

// MetricsMiddleware labels requests by chi route pattern so path
// parameters do not explode cardinality
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := strconv.Itoa(recorder.status)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
