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

	// InboundEventsTotal tracks inbound chat events by disposition:
	// enqueued, challenge, bot_filtered, empty_text, ignored_type,
	// bad_signature, queue_error.
	InboundEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_events_total",
			Help: "Inbound chat events by disposition",
		},
		[]string{"disposition"},
	)

	// EnvelopesProcessedTotal tracks relay outcomes per envelope:
	// replied, silent, parse_error, bad_response, no_tenant,
	// requeued_backend, requeued_reply, discarded.
	EnvelopesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelopes_processed_total",
			Help: "Envelopes processed by the relay consumer, by outcome",
		},
		[]string{"outcome"},
	)

	// BackendQueryDuration tracks tenant AI backend query duration.
	BackendQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_query_duration_seconds",
			Help:    "Tenant AI backend query duration",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 45},
		},
		[]string{"project_id", "status"},
	)

	// RepliesPostedTotal tracks threaded replies posted to the chat platform.
	RepliesPostedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replies_posted_total",
			Help: "Threaded replies posted, by result",
		},
		[]string{"result"},
	)

	// RegistryErrorsTotal tracks registry failures by operation.
	RegistryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_errors_total",
			Help: "Tenant registry failures by operation",
		},
		[]string{"op"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordInboundEvent records an ingestion disposition.
func RecordInboundEvent(disposition string) {
	InboundEventsTotal.WithLabelValues(disposition).Inc()
}

// RecordBackendQuery records a tenant backend query.
func RecordBackendQuery(projectID, status string, duration float64) {
	BackendQueryDuration.WithLabelValues(projectID, status).Observe(duration)
}

// RecordEnvelopeOutcome records the terminal outcome of one envelope.
func RecordEnvelopeOutcome(outcome string) {
	EnvelopesProcessedTotal.WithLabelValues(outcome).Inc()
}
