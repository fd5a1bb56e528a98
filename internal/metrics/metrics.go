// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubdesk_rate_limit_rejections_total",
		Help: "Requests rejected by a rate-limit ceiling, by action.",
	}, []string{"action"})

	RateLimitFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubdesk_rate_limit_fail_open_total",
		Help: "Requests admitted because the rate-limit store was unavailable.",
	})

	OTPIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubdesk_otp_issued_total",
		Help: "Verification codes issued, by type.",
	}, []string{"type"})

	OTPVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubdesk_otp_verifications_total",
		Help: "Verification attempts, by outcome.",
	}, []string{"outcome"})

	WebhookDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubdesk_webhook_duplicate_deliveries_total",
		Help: "Webhook deliveries short-circuited as duplicates.",
	})

	WebhookFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubdesk_webhook_processing_failures_total",
		Help: "Webhook events recorded but whose handler failed.",
	})

	InvitationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubdesk_invitations_dispatched_total",
		Help: "Invitation emails dispatched, by outcome.",
	}, []string{"outcome"})
)
