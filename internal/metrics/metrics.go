package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteRequests counts requests to the carrier backend by endpoint and outcome.
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ooredoobot_remote_requests_total",
			Help: "The total number of requests made to the carrier backend.",
		},
		[]string{"endpoint", "outcome"},
	)

	// RemoteRequestDuration is a histogram of carrier backend request durations.
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ooredoobot_remote_request_duration_seconds",
			Help:    "A histogram of carrier backend request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// OTPSends counts OTP dispatch requests.
	OTPSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ooredoobot_otp_sends_total",
			Help: "The total number of OTP dispatch requests.",
		},
		[]string{"outcome"},
	)

	// OTPVerifies counts OTP verification attempts.
	OTPVerifies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ooredoobot_otp_verifies_total",
			Help: "The total number of OTP verification attempts.",
		},
		[]string{"outcome"},
	)

	// GiftClaims counts gift play attempts.
	GiftClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ooredoobot_gift_claims_total",
			Help: "The total number of gift claim attempts.",
		},
		[]string{"outcome"},
	)

	// UpdatesProcessed counts Telegram updates handled by the bot.
	UpdatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ooredoobot_updates_processed_total",
			Help: "The total number of Telegram updates processed.",
		},
		[]string{"kind"},
	)
)
