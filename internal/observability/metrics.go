package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for TradeLedger.
type Metrics struct {
	// --- Engine ---
	EventsApplied  *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	EventDuration  *prometheus.HistogramVec
	Transitions    *prometheus.CounterVec
	TradesTotal    prometheus.Gauge
	EventsTotal    prometheus.Gauge

	// --- Channels & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     prometheus.Counter
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Ingestion ---
	IngestReceived  *prometheus.CounterVec
	IngestRejected  *prometheus.CounterVec
	NATSPullLatency *prometheus.HistogramVec

	// --- Persistence ---
	PersistRowsWritten *prometheus.CounterVec
	PersistBatchSize   prometheus.Histogram
	PersistBatchDur    prometheus.Histogram
	PersistErrors      *prometheus.CounterVec
	PersistRetry       prometheus.Counter

	// --- Projections ---
	ProjectionUpdateDur *prometheus.HistogramVec
	ProjectionWatermark prometheus.Gauge

	// --- Recovery ---
	ReplayRowsTotal *prometheus.CounterVec
	ReplayDuration  prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ioBuckets := []float64{
		0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		// Engine
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeledger_events_applied_total",
			Help: "Business events successfully recorded by the engine",
		}, []string{"event_type"}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeledger_events_rejected_total",
			Help: "Business events rejected (duplicate, validation, lifecycle)",
		}, []string{"event_type", "reason"}),

		EventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeledger_event_apply_duration_seconds",
			Help:    "Time to validate and record a single business event",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeledger_state_transitions_total",
			Help: "Trade lifecycle transitions committed",
		}, []string{"from", "to"}),

		TradesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradeledger_trades_total",
			Help: "Trades currently tracked",
		}),

		EventsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradeledger_events_total",
			Help: "Business events in the ledger",
		}),

		// Channels & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradeledger_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradeledger_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradeledger_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradeledger_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradeledger_publish_drops_total",
			Help: "Notices dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradeledger_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		// Ingestion
		IngestReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeledger_ingest_received_total",
			Help: "Commands received from NATS",
		}, []string{"subject"}),

		IngestRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeledger_ingest_rejected_total",
			Help: "Commands rejected at parse or apply",
		}, []string{"subject", "reason"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeledger_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: ioBuckets,
		}, []string{"subject"}),

		// Persistence
		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeledger_persist_rows_written_total",
			Help: "Rows written to Postgres per table",
		}, []string{"table"}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeledger_persist_batch_size",
			Help:    "Outputs per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeledger_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: ioBuckets,
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeledger_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradeledger_persist_retry_total",
			Help: "Persistence retries",
		}),

		// Projections
		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeledger_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: ioBuckets,
		}, []string{"projection"}),

		ProjectionWatermark: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradeledger_projection_watermark",
			Help: "Unix time of last output applied to projections",
		}),

		// Recovery
		ReplayRowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeledger_replay_rows_total",
			Help: "Rows restored on startup per table",
		}, []string{"table"}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradeledger_replay_duration_seconds",
			Help: "Total warm-start recovery time",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeledger_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeledger_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
