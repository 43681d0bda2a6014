// Package metrics exposes Prometheus collectors for the gateway
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests counts webhook deliveries by outcome: ok, unauthorized,
	// ignored, control, bad_request, unknown_platform, dropped
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_webhook_requests_total",
			Help: "Total number of webhook requests",
		},
		[]string{"platform", "outcome"},
	)

	WebhookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "chatbridge_webhook_duration_seconds",
			Help: "Webhook handling duration in seconds",
		},
		[]string{"platform"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbridge_messages_sent_total",
			Help: "Total number of outbound messages by result",
		},
		[]string{"platform", "result"},
	)

	PipelineLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "chatbridge_pipeline_latency_seconds",
			Help: "Chat pipeline completion latency in seconds",
		},
	)

	PipelineErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbridge_pipeline_errors_total",
			Help: "Total number of failed pipeline completions",
		},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbridge_messages_in_flight",
			Help: "Number of inbound messages being processed",
		},
	)
)

// SendResult records an outbound delivery
func SendResult(platform string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	MessagesSent.WithLabelValues(platform, result).Inc()
}
