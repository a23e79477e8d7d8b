package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so that several instances can coexist in tests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	Connections    prometheus.Gauge
	MessagesPosted prometheus.Counter
	EventsDropped  prometheus.Counter
	PublishErrors  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		MessagesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messages_posted_total",
			Help: "Messages persisted by the conversation service",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Realtime events dropped because a client send buffer was full",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domain_event_publish_errors_total",
			Help: "Domain events that could not be handed to the broker",
		}, []string{"type"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections, m.MessagesPosted, m.EventsDropped, m.PublishErrors,
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) MessagePosted() {
	if m != nil {
		m.MessagesPosted.Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}

func (m *Metrics) PublishFailed(eventType string) {
	if m != nil {
		m.PublishErrors.WithLabelValues(eventType).Inc()
	}
}
