package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session close results used as the "result" label.
const (
	ResultClosed   = "closed"
	ResultNoShell  = "no_shell"
	ResultSpawn    = "spawn_failed"
	ResultRejected = "rejected"
)

// Byte directions used as the "direction" label.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	Resizes         prometheus.Counter

	// Transport metrics
	Bytes      *prometheus.CounterVec
	WSMessages *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers every collector on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from each other.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptybroker_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ptybroker_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ptybroker_sessions_active",
				Help: "Number of live terminal sessions",
			},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptybroker_sessions_total",
				Help: "Terminal connections handled, by outcome",
			},
			[]string{"result"},
		),
		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ptybroker_session_duration_seconds",
				Help:    "Lifetime of terminal sessions in seconds",
				Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600, 14400},
			},
		),
		Resizes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ptybroker_resizes_total",
				Help: "Resize directives applied",
			},
		),

		Bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptybroker_bytes_total",
				Help: "Terminal bytes forwarded, in = client to shell, out = shell to client",
			},
			[]string{"direction"},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptybroker_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SessionOpened marks a session as live.
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
}

// SessionClosed records the end of a live session.
func (m *Metrics) SessionClosed(lifetime time.Duration) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(ResultClosed).Inc()
	m.SessionDuration.Observe(lifetime.Seconds())
}

// SessionRefused records a connection that never became a session.
func (m *Metrics) SessionRefused(result string) {
	m.SessionsTotal.WithLabelValues(result).Inc()
}

// RecordResize counts an applied resize directive.
func (m *Metrics) RecordResize() {
	m.Resizes.Inc()
}

// RecordBytes adds n forwarded bytes in the given direction.
func (m *Metrics) RecordBytes(direction string, n int) {
	m.Bytes.WithLabelValues(direction).Add(float64(n))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}
