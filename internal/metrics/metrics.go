// Package metrics holds the prometheus collectors for transitions and the
// HTTP API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caseline/internal/engine/auth"
	"caseline/internal/engine/workflow"
)

var (
	// transitionsTotal counts executed transitions by action and outcome.
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseline_transitions_total",
			Help: "Case transitions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	transitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caseline_transition_duration_seconds",
			Help:    "Case transition latency in seconds, including commit",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caseline_audit_entries_total",
			Help: "Audit entries committed",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseline_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caseline_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Outcome classifies a transition error into a low-cardinality label.
func Outcome(err error) string {
	var (
		fe auth.ForbiddenError
		ve workflow.ValidationError
		ce workflow.ConflictError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &fe):
		return "forbidden"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &ce):
		return "conflict"
	default:
		return "error"
	}
}

// ObserveTransition records one Execute call.
func ObserveTransition(action string, started time.Time, err error) {
	transitionsTotal.WithLabelValues(action, Outcome(err)).Inc()
	transitionDuration.WithLabelValues(action).Observe(time.Since(started).Seconds())
}

func AddAuditEntries(n int) {
	auditEntriesTotal.Add(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency. Routes are labelled with
// the chi route pattern so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
