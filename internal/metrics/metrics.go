// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signalbot"

var (
	// SignalsTotal counts inbound webhook signals by action and outcome.
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_total",
		Help:      "Inbound trading signals by action and outcome.",
	}, []string{"action", "outcome"})

	// OrdersPlacedTotal counts orders submitted to the broker.
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_placed_total",
		Help:      "Orders submitted to the broker by symbol and side.",
	}, []string{"symbol", "side"})

	// DispatchDuration measures end-to-end signal handling latency.
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Latency of signal dispatch, including broker calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// BrokerConnected reports broker connectivity (1 connected, 0 not).
	BrokerConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "broker_connected",
		Help:      "Whether the broker gateway is connected.",
	})

	// PresetsConfigured reports the number of stored presets.
	PresetsConfigured = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "presets_configured",
		Help:      "Number of symbols with a stored preset.",
	})

	// DialogueSessionsActive reports in-progress configuration sessions.
	DialogueSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dialogue_sessions_active",
		Help:      "Configuration conversations currently in progress.",
	})

	// ErrorsTotal counts errors by type.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Errors by type.",
	}, []string{"type"})

	// BuildInfo carries the build version as a constant gauge label.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version"})
)

// SetBuildInfo records the running version.
func SetBuildInfo(version string) {
	BuildInfo.WithLabelValues(version).Set(1)
}
