package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "farmlink"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// Token metrics
	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "refresh_total",
			Help:      "Token refresh calls made to provider token endpoints",
		},
		[]string{"provider", "outcome"},
	)

	tokenRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of token refresh calls in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	tokenRefreshShared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "refresh_shared_total",
			Help:      "Callers that received the result of another caller's in-flight refresh",
		},
		[]string{"provider"},
	)

	tokenCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "cache_hits_total",
			Help:      "EnsureValid calls served from the stored token without a network call",
		},
		[]string{"provider"},
	)

	// Probe metrics
	probeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Capability probe results by outcome category",
		},
		[]string{"provider", "endpoint", "category"},
	)

	probeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Duration of a single capability probe in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "endpoint"},
	)

	// Connection metrics
	connectionStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "status_checks_total",
			Help:      "Connection status evaluations by resulting status",
		},
		[]string{"provider", "status"},
	)

	connectionCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "check_duration_seconds",
			Help:      "Duration of a full status check in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	fallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "fallback_total",
			Help:      "Fetches answered with sample data instead of live provider data",
		},
		[]string{"provider", "endpoint"},
	)

	// Worker metrics
	keeperSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "refreshed_total",
			Help:      "Credentials handled by the proactive refresh sweep",
		},
		[]string{"outcome"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "table"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		// Get route pattern from chi
		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(duration)
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTokenRefresh records a refresh call against a provider token endpoint
func RecordTokenRefresh(provider, outcome string, duration time.Duration) {
	tokenRefreshTotal.WithLabelValues(provider, outcome).Inc()
	tokenRefreshDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTokenRefreshShared records a caller that joined another caller's refresh
func RecordTokenRefreshShared(provider string) {
	tokenRefreshShared.WithLabelValues(provider).Inc()
}

// RecordTokenCacheHit records a token served without refreshing
func RecordTokenCacheHit(provider string) {
	tokenCacheHits.WithLabelValues(provider).Inc()
}

// RecordProbe records a single capability probe
func RecordProbe(provider, endpoint, category string, duration time.Duration) {
	probeTotal.WithLabelValues(provider, endpoint, category).Inc()
	probeDuration.WithLabelValues(provider, endpoint).Observe(duration.Seconds())
}

// RecordStatusCheck records the status produced by a full check
func RecordStatusCheck(provider, status string, duration time.Duration) {
	connectionStatusTotal.WithLabelValues(provider, status).Inc()
	connectionCheckDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordFallback records a fetch served from sample data
func RecordFallback(provider, endpoint string) {
	fallbackTotal.WithLabelValues(provider, endpoint).Inc()
}

// RecordKeeperRefresh records one credential handled by the refresh sweep
func RecordKeeperRefresh(outcome string) {
	keeperSweepsTotal.WithLabelValues(outcome).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation, table string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
