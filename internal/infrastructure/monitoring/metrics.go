// Package monitoring exposes Prometheus metrics for the game host.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors for the game host.
type Metrics struct {
	registry *prometheus.Registry

	httpDuration *prometheus.HistogramVec

	TransformCacheHits   prometheus.Counter
	TransformCacheMisses prometheus.Counter
	TransformFallbacks   prometheus.Counter

	MessagesAccepted prometheus.Counter
	MessagesDropped  *prometheus.CounterVec

	SessionsOpened    prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsPartial   prometheus.Counter
	SessionsErrored   prometheus.Counter
	PlayersLive       prometheus.Gauge

	FullscreenRetries prometheus.Counter
	ReportFailures    prometheus.Counter
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamehost_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		TransformCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_transform_cache_hits_total",
			Help: "Content transformations served from cache.",
		}),
		TransformCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_transform_cache_misses_total",
			Help: "Content transformations computed fresh.",
		}),
		TransformFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_transform_fallbacks_total",
			Help: "Transformations that degraded to the fallback document.",
		}),
		MessagesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_protocol_messages_accepted_total",
			Help: "Protocol messages accepted after origin and shape checks.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehost_protocol_messages_dropped_total",
			Help: "Protocol messages dropped, by reason.",
		}, []string{"reason"}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_sessions_opened_total",
			Help: "Play sessions opened.",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_sessions_completed_total",
			Help: "Play sessions completed by the game.",
		}),
		SessionsPartial: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_sessions_partial_total",
			Help: "Play sessions closed before completion with a partial save.",
		}),
		SessionsErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_sessions_errored_total",
			Help: "Play sessions that hit a surface load failure.",
		}),
		PlayersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gamehost_players_live",
			Help: "Currently open player views.",
		}),
		FullscreenRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_fullscreen_retries_total",
			Help: "Fullscreen re-entry requests issued after user exits.",
		}),
		ReportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_result_report_failures_total",
			Help: "Failed result persistence calls (logged, not surfaced).",
		}),
	}

	reg.MustRegister(
		m.httpDuration,
		m.TransformCacheHits, m.TransformCacheMisses, m.TransformFallbacks,
		m.MessagesAccepted, m.MessagesDropped,
		m.SessionsOpened, m.SessionsCompleted, m.SessionsPartial, m.SessionsErrored,
		m.PlayersLive,
		m.FullscreenRetries, m.ReportFailures,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency per route.
func Middleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
