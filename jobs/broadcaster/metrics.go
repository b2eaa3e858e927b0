package broadcaster

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	published prometheus.Counter
	failed    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clob",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Events delivered to Kafka.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clob",
			Subsystem: "outbox",
			Name:      "publish_failures_total",
			Help:      "Failed publish attempts.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.published, m.failed)
	}
	return m
}
