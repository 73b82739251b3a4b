package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the Prometheus collectors used by the tracker. One instance
// is created in main and passed to every component that observes something.
type Registry struct {
	// Trade ingest
	TradesReceived   prometheus.Counter
	TradesProcessed  prometheus.Counter
	TradesFromBuffer prometheus.Counter
	ParseErrors      prometheus.Counter

	// Output
	MetricsSaved prometheus.Counter
	MetricsLost  prometheus.Counter

	// Lifecycle
	CoinsTracked   prometheus.Gauge
	CoinsGraduated prometheus.Counter
	CoinsFinished  prometheus.Counter
	PhaseSwitches  prometheus.Counter

	// Connections
	WSConnected        prometheus.Gauge
	WSReconnects       prometheus.Counter
	DBConnected        prometheus.Gauge
	DBErrors           *prometheus.CounterVec
	ConnectionDuration prometheus.Gauge
	LastTradeTimestamp prometheus.Gauge
	UptimeSeconds      prometheus.Gauge

	// Latencies
	DBQueryDuration prometheus.Histogram
	FlushDuration   prometheus.Histogram

	// Rolling buffer
	BufferSize        prometheus.Gauge
	BufferTradesTotal prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewRegistry creates all tracker collectors and registers them on reg.
// A nil reg uses the process-default registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	auto := promauto.With(reg)

	gatherer := prometheus.Gatherer(prometheus.DefaultGatherer)
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &Registry{
		gatherer: gatherer,
		TradesReceived: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_trades_received_total",
			Help: "Total trade messages received from the venue",
		}),
		TradesProcessed: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_trades_processed_total",
			Help: "Total trades applied to an active aggregator",
		}),
		TradesFromBuffer: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_trades_from_buffer_total",
			Help: "Total trades replayed from the rolling buffer on activation",
		}),
		ParseErrors: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_parse_errors_total",
			Help: "Total malformed or unusable upstream messages dropped",
		}),
		MetricsSaved: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_metrics_saved_total",
			Help: "Total metric rows written to coin_metrics",
		}),
		MetricsLost: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_metrics_lost_total",
			Help: "Total metric rows dropped due to failed batch inserts",
		}),
		CoinsTracked: auto.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_coins_tracked",
			Help: "Number of tokens currently in the active watchlist",
		}),
		CoinsGraduated: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_coins_graduated_total",
			Help: "Total tokens that reached the bonding-curve graduation threshold",
		}),
		CoinsFinished: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_coins_finished_total",
			Help: "Total tokens that aged out of their final phase",
		}),
		PhaseSwitches: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_phase_switches_total",
			Help: "Total phase promotions",
		}),
		WSConnected: auto.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_ws_connected",
			Help: "Trade stream connection state (1=connected)",
		}),
		WSReconnects: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_ws_reconnects_total",
			Help: "Total WebSocket reconnect attempts",
		}),
		DBConnected: auto.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_db_connected",
			Help: "Database connection state (1=connected)",
		}),
		DBErrors: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_db_errors_total",
			Help: "Total database errors by type",
		}, []string{"type"}),
		ConnectionDuration: auto.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_connection_duration_seconds",
			Help: "Age of the current trade stream connection",
		}),
		LastTradeTimestamp: auto.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_last_trade_timestamp",
			Help: "Unix timestamp of the most recently processed trade",
		}),
		UptimeSeconds: auto.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_uptime_seconds",
			Help: "Tracker uptime in seconds",
		}),
		DBQueryDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Name: "tracker_db_query_duration_seconds",
			Help: "Duration of active-set reads",
		}),
		FlushDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Name: "tracker_flush_duration_seconds",
			Help: "Duration of metric batch inserts",
		}),
		BufferSize: auto.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_trade_buffer_size",
			Help: "Total trades currently held in the rolling buffer",
		}),
		BufferTradesTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_buffer_trades_total",
			Help: "Total trades appended to the rolling buffer",
		}),
	}
}

// Handler returns an HTTP handler exposing the Prometheus text format for
// the registry these collectors were registered on.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
