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
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bounty_api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bounty_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_api_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"path"},
	)

	EngineRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_api_engine_rejections_total",
			Help: "Total number of requests the calculation engines rejected, by error code",
		},
		[]string{"code"},
	)

	HistoryQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_api_history_queries_total",
			Help: "Total number of history queries",
		},
		[]string{"status"},
	)

	HistoryQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bounty_api_history_query_duration_seconds",
			Help:    "Duration of history queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := RoutePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RoutePattern is the matched chi pattern, so /v1/distribution/{token}/state is one series
// regardless of token. Unmatched requests fall back to the raw path.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// RecordEngineRejection counts a request the engines refused, keyed by the error code returned
// to the client.
func RecordEngineRejection(code string) {
	EngineRejectionsTotal.WithLabelValues(code).Inc()
}

// RecordHistoryQuery records the outcome and latency of a cycle history read.
func RecordHistoryQuery(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	HistoryQueriesTotal.WithLabelValues(status).Inc()
	HistoryQueryDuration.Observe(duration.Seconds())
}
