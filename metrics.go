package livequery

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by streams. A nil *Metrics
// records nothing.
type Metrics struct {
	events        *prometheus.CounterVec
	received      prometheus.Counter
	dropped       prometheus.Counter
	activeStreams prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livequery",
			Name:      "events_total",
			Help:      "Events emitted to stream consumers, by event type.",
		}, []string{"type"}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livequery",
			Name:      "notifications_received_total",
			Help:      "Notifications received on subscribed channels.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livequery",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because their payload could not be parsed.",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livequery",
			Name:      "streams_active",
			Help:      "Streams currently holding a connection.",
		}),
	}

	for _, c := range []prometheus.Collector{m.events, m.received, m.dropped, m.activeStreams} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) eventEmitted(t EventType) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) notificationReceived() {
	if m == nil {
		return
	}
	m.received.Inc()
}

func (m *Metrics) notificationDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) streamAcquired() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) streamReleased() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}
