package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsRelayed tracks the total throughput of the relay.
	// Labels allow filtering by outcome (sent/error/quarantined) and
	// by business event type (purchase, page_view, ...).
	EventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_total",
		Help: "Total number of outbox events processed by the relay",
	}, []string{"status", "event_type"})

	// BatchDuration measures how long a full relay cycle takes.
	// Use this to spot degradation in Postgres or ClickHouse.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_batch_duration_seconds",
		Help:    "Duration of a fetch-transform-insert-mark cycle in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BatchSize tracks the number of events actually captured per cycle
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_batch_size",
		Help:    "Number of events fetched per relay cycle",
		Buckets: []float64{1, 10, 50, 100, 500, 1000},
	})

	// SinkInsertDuration isolates the bulk-insert leg of the cycle
	SinkInsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_sink_insert_duration_seconds",
		Help:    "Duration of the ClickHouse bulk insert in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OutboxBacklog is the primary lag indicator: rows still waiting
	// in Postgres for delivery.
	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_outbox_backlog",
		Help: "Current number of unsent, non-quarantined rows in the outbox table",
	})

	// HealthStatus provides a binary 0/1 signal for the relay's health.
	// 0 means the last cycle failed and the relay is backing off.
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_healthy",
		Help: "Current health status of the relay (1 for healthy, 0 for backing off)",
	})
)
