package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the dispatch core. A nil
// *Metrics is valid and records nothing, so tests can run without a registry.
type Metrics struct {
	connectedClients  prometheus.Gauge
	activeChannels    prometheus.Gauge
	messagesPublished prometheus.Counter
	messagesDelivered prometheus.Counter
	messagesDropped   prometheus.Counter
}

// NewMetrics registers the dispatch collectors with reg. Passing nil uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "minichat",
			Name:      "connected_clients",
			Help:      "Number of currently registered clients.",
		}),
		activeChannels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "minichat",
			Name:      "active_channels",
			Help:      "Number of channels with at least one subscriber.",
		}),
		messagesPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minichat",
			Name:      "messages_published_total",
			Help:      "Total messages accepted for publishing.",
		}),
		messagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minichat",
			Name:      "messages_delivered_total",
			Help:      "Total messages enqueued to subscriber queues.",
		}),
		messagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minichat",
			Name:      "messages_dropped_total",
			Help:      "Total deliveries dropped due to timeout or a closed client.",
		}),
	}
}

func (m *Metrics) setClients(n int) {
	if m != nil {
		m.connectedClients.Set(float64(n))
	}
}

func (m *Metrics) setChannels(n int) {
	if m != nil {
		m.activeChannels.Set(float64(n))
	}
}

func (m *Metrics) incPublished() {
	if m != nil {
		m.messagesPublished.Inc()
	}
}

func (m *Metrics) incDelivered() {
	if m != nil {
		m.messagesDelivered.Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.messagesDropped.Inc()
	}
}
