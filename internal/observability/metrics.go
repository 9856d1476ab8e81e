package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concert_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	BookingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concert_booking_attempts_total",
			Help: "Booking attempts by outcome",
		},
		[]string{"outcome"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concert_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	PendingSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "concert_pending_subscriptions",
			Help: "Subscriptions waiting for a capacity threshold",
		},
	)

	NotificationsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "concert_notifications_resolved_total",
			Help: "Subscription handles resolved by dispatch passes",
		},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concert_outbox_published_total",
			Help: "Outbox records relayed to the broker by result",
		},
		[]string{"result"},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "concert_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
