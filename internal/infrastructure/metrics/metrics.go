// Package metrics exposes Prometheus collectors for controllers, REST
// requests and node outputs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ohbridge"

// Metrics owns a private registry so tests and multiple bridges in one
// process never collide on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	events           *prometheus.CounterVec
	connectionEvents *prometheus.CounterVec
	connected        *prometheus.GaugeVec
	parseErrors      *prometheus.CounterVec
	requests         *prometheus.CounterVec
	nodeOutputs      *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "events_total",
			Help:      "Domain events parsed from the openHAB event stream",
		}, []string{"controller", "type"}),

		connectionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "connection_events_total",
			Help:      "Connection lifecycle events by state",
		}, []string{"controller", "state"}),

		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "connected",
			Help:      "1 while the event stream is open",
		}, []string{"controller"}),

		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "parse_errors_total",
			Help:      "Malformed event stream messages",
		}, []string{"controller"}),

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rest",
			Name:      "requests_total",
			Help:      "REST requests by kind and outcome",
		}, []string{"controller", "kind", "outcome"}),

		nodeOutputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "outputs_total",
			Help:      "Messages emitted by nodes per output port",
		}, []string{"node", "type", "port"}),
	}

	m.registry.MustRegister(
		m.events,
		m.connectionEvents,
		m.connected,
		m.parseErrors,
		m.requests,
		m.nodeOutputs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent counts a parsed domain event.
func (m *Metrics) ObserveEvent(controller, eventType string) {
	m.events.WithLabelValues(controller, eventType).Inc()
}

// ObserveConnection counts a connection event and tracks the connected gauge.
func (m *Metrics) ObserveConnection(controller, state string) {
	m.connectionEvents.WithLabelValues(controller, state).Inc()
	switch state {
	case "Connected":
		m.connected.WithLabelValues(controller).Set(1)
	case "Disconnected", "Error":
		m.connected.WithLabelValues(controller).Set(0)
	}
}

// ObserveParseError counts a malformed stream message.
func (m *Metrics) ObserveParseError(controller string) {
	m.parseErrors.WithLabelValues(controller).Inc()
}

// ObserveRequest counts a completed REST request.
func (m *Metrics) ObserveRequest(controller, kind string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.requests.WithLabelValues(controller, kind, outcome).Inc()
}

// ObserveNodeOutput counts a message emitted on a node port.
func (m *Metrics) ObserveNodeOutput(nodeID, nodeType, port string) {
	m.nodeOutputs.WithLabelValues(nodeID, nodeType, port).Inc()
}
