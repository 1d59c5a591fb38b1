// Package metrics provides Prometheus metrics for devdeck.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/treykane/devdeck/internal/events"
)

// Metrics holds all Prometheus metrics for devdeck.
type Metrics struct {
	// Tunnel metrics
	TunnelProcesses     prometheus.Gauge
	TunnelToggles       *prometheus.CounterVec
	TunnelSpawnFailures prometheus.Counter
	TunnelExits         *prometheus.CounterVec

	// Healthcheck metrics
	HealthcheckUp *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered on a
// private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.TunnelProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "devdeck_tunnel_processes",
		Help: "Number of tunnel processes currently alive",
	})
	m.TunnelToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devdeck_tunnel_toggles_total",
			Help: "Tunnel state changes that reached a process, by resulting state",
		},
		[]string{"state"},
	)
	m.TunnelSpawnFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devdeck_tunnel_spawn_failures_total",
		Help: "Tunnel processes that failed to start",
	})
	m.TunnelExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devdeck_tunnel_exits_total",
			Help: "Tunnel process exits, by reason (exited on its own or killed)",
		},
		[]string{"reason"},
	)
	m.HealthcheckUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "devdeck_healthcheck_up",
			Help: "1 if the service reported UP at the last probe",
		},
		[]string{"section", "service"},
	)

	m.registry.MustRegister(
		m.TunnelProcesses,
		m.TunnelToggles,
		m.TunnelSpawnFailures,
		m.TunnelExits,
		m.HealthcheckUp,
	)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Observe updates tunnel metrics from a supervisor lifecycle event.
func (m *Metrics) Observe(evt events.Event) {
	switch evt.Type {
	case events.TypeConnect:
		m.TunnelProcesses.Inc()
		m.TunnelToggles.WithLabelValues("on").Inc()
	case events.TypeDisconnect:
		m.TunnelToggles.WithLabelValues("off").Inc()
	case events.TypeSpawnFailed:
		m.TunnelSpawnFailures.Inc()
	case events.TypeProcessExited:
		m.TunnelProcesses.Dec()
		m.TunnelExits.WithLabelValues("exited").Inc()
	case events.TypeProcessKilled:
		m.TunnelProcesses.Dec()
		m.TunnelExits.WithLabelValues("killed").Inc()
	}
}

// SetHealth records one probe result.
func (m *Metrics) SetHealth(section, service string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthcheckUp.WithLabelValues(section, service).Set(v)
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
