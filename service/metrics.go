package service

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	commands  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	fills     prometheus.Counter
	leaves    *prometheus.GaugeVec
	freeSlots *prometheus.GaugeVec
	accounts  prometheus.Gauge
}

// NewMetrics registers the engine metrics with reg; nil skips
// registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clob",
			Name:      "commands_total",
			Help:      "Committed commands by name.",
		}, []string{"command"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clob",
			Name:      "commands_rejected_total",
			Help:      "Rolled back commands by name.",
		}, []string{"command"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clob",
			Name:      "command_duration_seconds",
			Help:      "Command latency including commit.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"command"}),
		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clob",
			Name:      "fills_total",
			Help:      "Maker fills executed.",
		}),
		leaves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clob",
			Subsystem: "book",
			Name:      "orders",
			Help:      "Resting orders per side and tree.",
		}, []string{"side", "tree"}),
		freeSlots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clob",
			Subsystem: "book",
			Name:      "free_slots",
			Help:      "Unused node slots per side.",
		}, []string{"side"}),
		accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clob",
			Name:      "accounts",
			Help:      "Open-orders accounts.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.commands, m.rejected, m.latency, m.fills, m.leaves, m.freeSlots, m.accounts)
	}
	return m
}
