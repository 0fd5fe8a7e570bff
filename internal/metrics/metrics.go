// Package metrics holds the Prometheus collectors shared across the service
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts handled requests by method, route and status
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skupi_http_requests_total",
		Help: "Handled HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency per route
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skupi_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// PaymentTransitions counts applied payment transitions by target state.
	// No-op reconciliations are not counted; only rows that changed.
	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skupi_payment_transitions_total",
		Help: "Payment state transitions that changed a row",
	}, []string{"to"})

	// GatewayCalls counts outbound gateway operations by result
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skupi_gateway_calls_total",
		Help: "Payment gateway calls",
	}, []string{"op", "result"})

	// WaitlistPromotions counts slot offers sent to waiting guests
	WaitlistPromotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skupi_waitlist_promotions_total",
		Help: "Waiting list entries notified about a freed slot",
	})

	// NotificationFailures counts dropped notifications per channel
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skupi_notification_failures_total",
		Help: "Notification sends that failed and were dropped",
	}, []string{"channel"})
)
