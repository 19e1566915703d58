// Package metrics holds the bot's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtcbot_messages_total",
			Help: "Inbound messages by dispatch outcome",
		},
		[]string{"outcome"},
	)

	RuleHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtcbot_rule_hits_total",
			Help: "Messages answered by each command rule",
		},
		[]string{"rule"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtcbot_rate_limited_total",
			Help: "Messages held back by the rate limiter, by tier",
		},
		[]string{"tier"},
	)

	ActionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtcbot_action_failures_total",
			Help: "Command handlers that failed or panicked",
		},
		[]string{"rule"},
	)

	FallbackErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mtcbot_fallback_errors_total",
			Help: "AI fallback calls that failed or returned nothing",
		},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mtcbot_dispatch_duration_seconds",
			Help:    "Time from intake to reply by dispatch outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	BroadcastSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtcbot_broadcast_sends_total",
			Help: "Individual broadcast sends by result",
		},
		[]string{"result"},
	)

	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mtcbot_broadcast_duration_seconds",
			Help:    "Wall time of a whole broadcast run",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	DeliveryErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mtcbot_delivery_errors_total",
			Help: "Replies the transport failed to deliver",
		},
	)

	IntakeDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mtcbot_intake_dropped_total",
			Help: "Updates dropped because the intake queue was full",
		},
	)
)
