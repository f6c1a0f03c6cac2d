// Package metrics provides Prometheus instrumentation for the Shiftline platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftline",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftline",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// BillingEventsTotal counts processed webhook events by type and result.
	BillingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftline",
			Subsystem: "billing",
			Name:      "events_total",
			Help:      "Total webhook events by event type and processing result.",
		},
		[]string{"type", "result"},
	)

	// BillingSignatureFailuresTotal counts rejected webhook signatures.
	BillingSignatureFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shiftline",
			Subsystem: "billing",
			Name:      "signature_failures_total",
			Help:      "Total webhook deliveries rejected by signature verification.",
		},
	)

	// BillingProjectionsTotal counts projection writes by resulting status.
	BillingProjectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftline",
			Subsystem: "billing",
			Name:      "projections_total",
			Help:      "Total billing projection writes by resulting status.",
		},
		[]string{"status"},
	)

	// BillingBackfillsTotal counts read-triggered backfills by result.
	BillingBackfillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftline",
			Subsystem: "billing",
			Name:      "backfills_total",
			Help:      "Total pull backfills by result.",
		},
		[]string{"result"},
	)

	// BillingResumesTotal counts resume actions by result.
	BillingResumesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftline",
			Subsystem: "billing",
			Name:      "resumes_total",
			Help:      "Total subscription resume actions by result.",
		},
		[]string{"result"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftline", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftline", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftline", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftline", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		BillingEventsTotal,
		BillingSignatureFailuresTotal,
		BillingProjectionsTotal,
		BillingBackfillsTotal,
		BillingResumesTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime
// goroutine count into Prometheus gauges. Call in a goroutine; exits when
// ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
