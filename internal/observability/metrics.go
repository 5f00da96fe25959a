// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	FillsProcessed   prometheus.Counter
	FillsStored      prometheus.Counter
	FillErrors       *prometheus.CounterVec
	FillBufferSize   prometheus.Gauge
	WSReconnects     prometheus.Counter
	WSMessageLatency prometheus.Histogram

	// Episode metrics
	EpisodesOpened prometheus.Counter
	EpisodesClosed *prometheus.CounterVec
	OpenEpisodes   prometheus.Gauge

	// Consensus metrics
	EvaluationsTotal prometheus.Counter
	GateFailures     *prometheus.CounterVec
	TicketsEmitted   *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	LastSuccessfulTick      prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trader_consensus_lab"
	}

	return &Metrics{
		// Ingestion metrics
		FillsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fills_processed_total",
			Help:      "Total number of fills received from the venue",
		}),
		FillsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fills_stored_total",
			Help:      "Total number of fills committed to storage",
		}),
		FillErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fill_errors_total",
			Help:      "Total number of fill processing errors by type",
		}, []string{"error_type"}),
		FillBufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fill_buffer_size",
			Help:      "Current number of fills in the lag-window buffer",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnects",
		}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Episode metrics
		EpisodesOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "opened_total",
			Help:      "Total number of episodes opened",
		}),
		EpisodesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "closed_total",
			Help:      "Total number of episodes closed by reason",
		}, []string{"reason"}),
		OpenEpisodes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "open",
			Help:      "Current number of open episodes",
		}),

		// Consensus metrics
		EvaluationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "evaluations_total",
			Help:      "Total number of consensus evaluations",
		}),
		GateFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "gate_failures_total",
			Help:      "Total number of gate failures by gate",
		}, []string{"gate"}),
		TicketsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "tickets_emitted_total",
			Help:      "Total number of tickets emitted by direction",
		}, []string{"direction"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion flush",
		}),
		LastSuccessfulTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of last successful evaluation tick",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFillProcessed increments the fills processed counter.
func RecordFillProcessed() {
	DefaultMetrics.FillsProcessed.Inc()
}

// RecordFillsStored adds to the fills stored counter.
func RecordFillsStored(n int) {
	DefaultMetrics.FillsStored.Add(float64(n))
}

// RecordFillError records a fill processing error.
func RecordFillError(errorType string) {
	DefaultMetrics.FillErrors.WithLabelValues(errorType).Inc()
}

// RecordEpisodeOpened increments the episodes opened counter.
func RecordEpisodeOpened() {
	DefaultMetrics.EpisodesOpened.Inc()
}

// RecordEpisodeClosed increments the episodes closed counter by reason.
func RecordEpisodeClosed(reason string) {
	DefaultMetrics.EpisodesClosed.WithLabelValues(reason).Inc()
}

// UpdateOpenEpisodes updates the open episodes gauge.
func UpdateOpenEpisodes(n int) {
	DefaultMetrics.OpenEpisodes.Set(float64(n))
}

// RecordEvaluation records one consensus evaluation and any failed gates.
func RecordEvaluation(failedGates []string) {
	DefaultMetrics.EvaluationsTotal.Inc()
	for _, gate := range failedGates {
		DefaultMetrics.GateFailures.WithLabelValues(gate).Inc()
	}
}

// RecordTicketEmitted increments the tickets emitted counter.
func RecordTicketEmitted(direction string) {
	DefaultMetrics.TicketsEmitted.WithLabelValues(direction).Inc()
}

// RecordDBQuery records database query duration and outcome.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
