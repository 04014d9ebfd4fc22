package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	vendorsRegisteredCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "venmux",
			Name:      "vendors_registered_total",
			Help:      "Total vendor registrations admitted.",
		},
	)

	providerEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "venmux",
			Name:      "provider_events_total",
			Help:      "Provider lifecycle events received, by type.",
		},
		[]string{"event"}, // pairing_code, ready, disconnected, connection_failed
	)

	messagesSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "venmux",
			Name:      "messages_sent_total",
			Help:      "Outbound messages, by outcome.",
		},
		[]string{"status"}, // ok, delivery_error, group_not_found
	)

	qrRefreshCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "venmux",
			Name:      "qr_refresh_total",
			Help:      "Pairing sessions re-provisioned after code expiry.",
		},
	)

	sweepRetriesCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "venmux",
			Name:      "sweep_retries_total",
			Help:      "Disconnected vendors promoted back to pending by the retry sweep.",
		},
	)

	snapshotDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "venmux",
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of vendor store snapshots.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
