// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture ingestion metrics
	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftline_captures_total",
			Help: "Total number of capture submissions by outcome",
		},
		[]string{"status"},
	)

	CaptureDedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_capture_dedup_hits_total",
			Help: "Capture submissions answered from the dedup window",
		},
	)

	// Assignment metrics
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftline_assignments_total",
			Help: "Session-to-identity assignments by kind (sticky, new, failed)",
		},
		[]string{"kind"},
	)

	BindingsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_bindings_swept_total",
			Help: "Expired session bindings removed by the sweeper",
		},
	)

	// Identity pool metrics
	PoolHealthyIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftline_pool_healthy_identities",
			Help: "Number of egress identities currently healthy",
		},
	)

	// Validation pipeline metrics
	RecordTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftline_record_transitions_total",
			Help: "Record state transitions by destination state",
		},
		[]string{"state"},
	)

	VerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftline_verification_duration_seconds",
			Help:    "Duration of external verification calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VerificationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_verification_retries_total",
			Help: "Verification attempts requeued for retry",
		},
	)

	ReapedClaimsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_reaped_claims_total",
			Help: "Expired worker claims returned to pending by the reaper",
		},
	)

	// Fan-out metrics
	SubscribersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftline_subscribers_connected",
			Help: "Operator console subscriber connections currently open",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftline_events_published_total",
			Help: "Events published to the fan-out hub by topic",
		},
		[]string{"topic"},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_events_dropped_total",
			Help: "Events dropped due to subscriber backpressure",
		},
	)

	// External bridge metrics
	NATSPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_nats_publish_errors_total",
			Help: "Failed publishes to the NATS event bridge",
		},
	)

	ArchiveIndexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_archive_indexed_total",
			Help: "Terminal records indexed into the archive",
		},
	)

	ArchiveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_archive_errors_total",
			Help: "Failed archive index operations",
		},
	)
)
