package maintenance

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	pruned    prometheus.Counter
	snapshots prometheus.Counter
	truncated prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clob",
			Subsystem: "maintenance",
			Name:      "pruned_orders_total",
			Help:      "Expired orders removed by maintenance passes.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clob",
			Subsystem: "maintenance",
			Name:      "snapshots_total",
			Help:      "Snapshots written.",
		}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clob",
			Subsystem: "maintenance",
			Name:      "journal_segments_removed_total",
			Help:      "Journal segments dropped after a snapshot.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.pruned, m.snapshots, m.truncated)
	}
	return m
}
