// Package metrics exposes the Prometheus instrumentation shared by the
// stream, sweep, and alert layers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles all surgewatch collectors behind one Prometheus registry
// so tests can gather in isolation.
type Registry struct {
	registry *prometheus.Registry

	// Stream layer
	WSMessages     *prometheus.CounterVec
	WSReconnects   *prometheus.CounterVec
	StreamsDown    prometheus.Gauge
	RESTCalls      *prometheus.CounterVec
	RESTThrottles  prometheus.Counter
	TrackedSymbols prometheus.Gauge

	// Detector layer
	SweepDuration    prometheus.Histogram
	SweepSkips       prometheus.Counter
	AlertsEmitted    *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter
}

// NewRegistry creates and registers all collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,

		WSMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surgewatch_ws_messages_total",
				Help: "WebSocket messages processed by message kind",
			},
			[]string{"kind"},
		),

		WSReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surgewatch_ws_reconnects_total",
				Help: "WebSocket reconnect attempts by connection key",
			},
			[]string{"key"},
		),

		StreamsDown: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "surgewatch_streams_down",
				Help: "Streams that exhausted their reconnect budget",
			},
		),

		RESTCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surgewatch_rest_calls_total",
				Help: "REST calls by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),

		RESTThrottles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "surgewatch_rest_throttles_total",
				Help: "REST calls answered with HTTP 429",
			},
		),

		TrackedSymbols: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "surgewatch_tracked_symbols",
				Help: "Symbols currently tracked by the stream manager",
			},
		),

		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "surgewatch_sweep_duration_seconds",
				Help:    "Duration of one early-warning sweep",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		SweepSkips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "surgewatch_sweep_skips_total",
				Help: "Sweep ticks skipped because the previous pass was still running",
			},
		),

		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surgewatch_alerts_emitted_total",
				Help: "Early-warning alerts emitted by alert type",
			},
			[]string{"alert_type"},
		),

		AlertsSuppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "surgewatch_alerts_suppressed_total",
				Help: "Alerts suppressed by the cooldown window",
			},
		),
	}

	reg.MustRegister(
		r.WSMessages,
		r.WSReconnects,
		r.StreamsDown,
		r.RESTCalls,
		r.RESTThrottles,
		r.TrackedSymbols,
		r.SweepDuration,
		r.SweepSkips,
		r.AlertsEmitted,
		r.AlertsSuppressed,
	)

	return r
}

// Handler returns the scrape handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
