// Package rmetrics exposes the Prometheus counters and gauges the host
// process (cmd/echoreactord) wires into a reactorcore.ReactorObserver. The
// reactor core itself never imports this package; metrics are injected from
// the outside so the core stays testable without a global registry.
package rmetrics

import "github.com/prometheus/client_golang/prometheus"

// Collector bundles the reactor-wide counters and gauges tracked for an
// echoreactord instance. Every metric is registered against the
// prometheus.Registerer passed to New, never the global default registry.
type Collector struct {
	AcceptedConnections prometheus.Counter
	ActiveNotifiers     prometheus.Gauge
	Dispatched          *prometheus.CounterVec
	BackpressureEvents  *prometheus.CounterVec
}

// New constructs and registers a Collector's metrics against reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		AcceptedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echoreactord",
			Name:      "accepted_connections_total",
			Help:      "Total number of connections accepted by the reactor.",
		}),
		ActiveNotifiers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echoreactord",
			Name:      "active_notifiers",
			Help:      "Number of sockets registered with the reactor, sampled after each accepted connection; not updated when a connection closes.",
		}),
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echoreactord",
			Name:      "notifications_dispatched_total",
			Help:      "Notifications dispatched to observers, by kind.",
		}, []string{"kind"}),
		BackpressureEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echoreactord",
			Name:      "fifo_backpressure_transitions_total",
			Help:      "FIFO full/nonfull and empty/nonempty transitions, by direction.",
		}, []string{"direction", "transition"}),
	}

	reg.MustRegister(c.AcceptedConnections, c.ActiveNotifiers, c.Dispatched, c.BackpressureEvents)
	return c
}

// ObserveDispatch increments the dispatched counter for the given
// notification kind string, as produced by reactorcore.Kind.String
// ("Readable", "Writable", "Error", "Timeout", "Idle", "Shutdown").
func (c *Collector) ObserveDispatch(kind string) {
	c.Dispatched.WithLabelValues(kind).Inc()
}

// ObserveBackpressure increments the FIFO transition counter for a given
// direction ("in"/"out") and transition ("full"/"nonfull"/"empty"/"nonempty").
func (c *Collector) ObserveBackpressure(direction, transition string) {
	c.BackpressureEvents.WithLabelValues(direction, transition).Inc()
}
