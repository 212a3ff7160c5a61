package metrics

import (
	"time"

	"whatsam/internal/domain/entity"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the worker
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Session lifecycle metrics
	SessionTransitions *prometheus.CounterVec
	SessionsByStatus   *prometheus.GaugeVec
	ReconnectsTotal    prometheus.Counter

	// Message metrics
	MessagesSentTotal   prometheus.Counter
	MessageSendDuration prometheus.Histogram

	// Backend webhook metrics
	WebhookDeliveries *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "whatsam"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SessionTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Session state transitions by target status",
			},
			[]string{"to"},
		),
		SessionsByStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions",
				Help:      "Current sessions per status",
			},
			[]string{"status"},
		),
		ReconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_reconnects_total",
				Help:      "Reconnects scheduled by the close-reason policy",
			},
		),
		MessagesSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Outbound messages dispatched",
			},
		),
		MessageSendDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_send_duration_seconds",
				Help:      "Send duration including human pacing",
				Buckets:   []float64{0.1, 0.5, 1, 2, 3.5, 5, 10},
			},
		),
		WebhookDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Backend webhook delivery results",
			},
			[]string{"endpoint", "result"},
		),
	}
}

// SessionTransition implements the engine observer: count the transition
// and move the status gauges.
func (m *Metrics) SessionTransition(_ string, from, to entity.Status) {
	m.SessionTransitions.WithLabelValues(string(to)).Inc()
	if from.IsValid() {
		m.SessionsByStatus.WithLabelValues(string(from)).Dec()
	}
	m.SessionsByStatus.WithLabelValues(string(to)).Inc()
}

// ReconnectScheduled implements the engine observer.
func (m *Metrics) ReconnectScheduled(_ string) {
	m.ReconnectsTotal.Inc()
}

// MessageSent implements the engine observer.
func (m *Metrics) MessageSent(_ string, took time.Duration) {
	m.MessagesSentTotal.Inc()
	m.MessageSendDuration.Observe(took.Seconds())
}
