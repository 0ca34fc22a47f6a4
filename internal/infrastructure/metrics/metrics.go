package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the service
type Metrics struct {
	// Transitions counts state machine attempts by outcome (applied, settled, lost_race, invalid, error)
	Transitions *prometheus.CounterVec

	// RequestsCreated counts finalized trip and route requests
	RequestsCreated *prometheus.CounterVec

	// HTTPDuration observes API latency per route template
	HTTPDuration *prometheus.HistogramVec

	// EffectsFailed counts side effects whose handler returned an error
	EffectsFailed *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Transitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commute_transitions_total",
			Help: "State machine transition attempts by request kind, trigger and result.",
		}, []string{"kind", "trigger", "result"}),

		RequestsCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commute_requests_created_total",
			Help: "Requests created from completed sessions.",
		}, []string{"kind"}),

		HTTPDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "commute_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),

		EffectsFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commute_effects_failed_total",
			Help: "Side effects whose handler failed, by event type.",
		}, []string{"type"}),
	}
}

// TransitionAttempted implements service.MetricsRecorder
func (m *Metrics) TransitionAttempted(kind, trigger, result string) {
	m.Transitions.WithLabelValues(kind, trigger, result).Inc()
}

// RequestCreated implements service.MetricsRecorder
func (m *Metrics) RequestCreated(kind string) {
	m.RequestsCreated.WithLabelValues(kind).Inc()
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// EffectFailed records a failed side effect handler
func (m *Metrics) EffectFailed(eventType string) {
	m.EffectsFailed.WithLabelValues(eventType).Inc()
}
