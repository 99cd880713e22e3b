package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ApprovalsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_approvals_resolved_total",
			Help: "Total number of approval records resolved",
		},
		[]string{"action", "step"},
	)

	ApprovalConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pms_approval_conflicts_total",
			Help: "Total number of resolutions rejected because the record was already processed",
		},
	)

	ApprovalsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_approvals_created_total",
			Help: "Total number of approval records opened",
		},
		[]string{"step"},
	)

	StatsCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_stats_cache_lookups_total",
			Help: "Dashboard stats cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pms_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Middleware records request latency labelled by the matched chi route pattern,
// so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
