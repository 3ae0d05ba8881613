// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// EventsTotal tracks inbound telephony events by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_events_total",
			Help: "Inbound telephony events received",
		},
		[]string{"event_type"},
	)

	// InvalidTransitionsTotal tracks events dropped because they did not match
	// the session's current state.
	InvalidTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_invalid_transitions_total",
			Help: "Events discarded as invalid for the session state",
		},
		[]string{"event_type", "state"},
	)

	// CommandsTotal tracks outbound provider commands by type.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_commands_total",
			Help: "Outbound telephony commands issued",
		},
		[]string{"command", "status"},
	)

	// ActiveCalls tracks live call sessions per campaign.
	ActiveCalls = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dialer_active_calls",
			Help: "Live call sessions",
		},
		[]string{"campaign_id"},
	)

	// DialsTotal tracks dial originations per campaign.
	DialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_dials_total",
			Help: "Dial commands originated by the scheduler",
		},
		[]string{"campaign_id", "pacing_mode"},
	)

	// QueueDepth tracks pending dial targets per campaign.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dialer_queue_depth",
			Help: "Dial queue entries awaiting origination",
		},
		[]string{"campaign_id"},
	)

	// AgentsAvailable tracks available agents per campaign.
	AgentsAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dialer_agents_available",
			Help: "Agents in the available state",
		},
		[]string{"campaign_id"},
	)

	// AbandonRate tracks the rolling abandon rate per campaign.
	AbandonRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dialer_abandon_rate",
			Help: "Rolling abandon rate over the trailing window",
		},
		[]string{"campaign_id"},
	)

	// PacingDowngradesTotal tracks automatic predictive-to-progressive downgrades.
	PacingDowngradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_pacing_downgrades_total",
			Help: "Automatic pacing downgrades triggered by the abandon governor",
		},
		[]string{"campaign_id"},
	)

	// ResponderLatency tracks responder completion latency.
	ResponderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dialer_responder_latency_seconds",
			Help:    "Responder completion latency",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "status"},
	)

	// ResponderFallbacksTotal tracks fallback utterances substituted for
	// responder failures.
	ResponderFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialer_responder_fallbacks_total",
			Help: "Fallback utterances substituted for responder failures",
		},
	)

	// CallDuration tracks completed call duration by outcome.
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dialer_call_duration_seconds",
			Help:    "Completed call duration",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"campaign_id", "outcome"},
	)

	// SinkPublishesTotal tracks best-effort sink publishes by result.
	SinkPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_sink_publishes_total",
			Help: "Outcome and notification sink publish attempts",
		},
		[]string{"sink", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCommand records a dispatched provider command.
func RecordCommand(command, status string) {
	CommandsTotal.WithLabelValues(command, status).Inc()
}

// RecordResponder records a responder completion.
func RecordResponder(provider, status string, seconds float64) {
	ResponderLatency.WithLabelValues(provider, status).Observe(seconds)
}
