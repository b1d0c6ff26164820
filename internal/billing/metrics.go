package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grooveguide",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grooveguide",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// ReconcileTotal counts access reconciliations by outcome.
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grooveguide",
		Subsystem: "billing",
		Name:      "reconcile_total",
		Help:      "Access reconciliations by outcome (granted/denied/error).",
	}, []string{"outcome"})

	// InviteClaimsTotal counts invite claims by outcome.
	InviteClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grooveguide",
		Subsystem: "billing",
		Name:      "invite_claims_total",
		Help:      "Invite claim attempts by outcome.",
	}, []string{"outcome"})
)
