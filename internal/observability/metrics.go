package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aldrinstellus/ivrdemo/internal/ivr"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveCalls        prometheus.Gauge
	CallEvents         *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
	DigitPresses       *prometheus.CounterVec
	BackendRequests    *prometheus.CounterVec
	BackendLatency     *prometheus.HistogramVec
	MessageLogFailures prometheus.Counter
	EventPublishes     *prometheus.CounterVec
	SpeechErrors       *prometheus.CounterVec

	latency *LatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of simulated calls currently registered.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		DigitPresses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digit_presses_total",
			Help:      "Keypad presses by call phase.",
		}, []string{"phase"}),
		BackendRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request latency by operation.",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2, 4, 8, 15},
		}, []string{"op"}),
		MessageLogFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_log_failures_total",
			Help:      "Transcript lines the backend failed to persist.",
		}),
		EventPublishes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publishes_total",
			Help:      "Transcript events published by topic, type and outcome.",
		}, []string{"topic", "type", "outcome"}),
		SpeechErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_errors_total",
			Help:      "Speech synthesis failures by provider.",
		}, []string{"provider"}),
		latency: NewLatencyWindow(256),
	}
}

var _ ivr.Recorder = (*Metrics)(nil)

func (m *Metrics) DigitPressed(phase ivr.Phase) {
	m.DigitPresses.WithLabelValues(string(phase)).Inc()
}

func (m *Metrics) BackendRequest(op string, err error, elapsed time.Duration) {
	m.BackendRequests.WithLabelValues(op, outcome(err)).Inc()
	m.BackendLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	m.latency.Observe(op, float64(elapsed.Microseconds())/1000)
	if err != nil {
		m.latency.ObserveFailure(op)
	}
}

func (m *Metrics) MessageLogFailed() {
	m.MessageLogFailures.Inc()
}

func (m *Metrics) RecordPublish(topic, eventType string, err error, _ float64) {
	m.EventPublishes.WithLabelValues(topic, eventType, outcome(err)).Inc()
}

func (m *Metrics) SpeechFailed(provider string) {
	m.SpeechErrors.WithLabelValues(provider).Inc()
}

// Latency returns rolling backend latency percentiles.
func (m *Metrics) Latency() LatencySnapshot {
	return m.latency.Snapshot()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
