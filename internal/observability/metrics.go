// Package observability exposes Prometheus metrics and health probes for
// the game server.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpg_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpg_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Turn metrics
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpg_turns_total",
			Help: "Total number of conversation turns",
		},
		[]string{"role", "outcome"},
	)

	turnStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpg_turn_stage_duration_seconds",
			Help:    "Duration of each turn stage (stt, chat, tts) in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	// Session metrics
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpg_active_sessions",
			Help: "Number of live conversation sessions",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the Prometheus metrics. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			turnsTotal,
			turnStageDuration,
			activeSessions,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTurn records the outcome of a conversation turn. outcome is "ok" or
// the stage that failed ("stt", "chat", "tts", "media").
func RecordTurn(role, outcome string) {
	turnsTotal.WithLabelValues(role, outcome).Inc()
}

// RecordStage records how long one stage of a turn took
func RecordStage(stage string, duration time.Duration) {
	turnStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SetActiveSessions sets the live session gauge
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}
