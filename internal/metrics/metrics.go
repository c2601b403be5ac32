package metrics

import (
	"net/http"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

const namespace = "oigshield"

// Metrics holds the bridge collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ShieldEvents      *prometheus.CounterVec
	ShieldQueueLength prometheus.Gauge
	ShieldActive      prometheus.Gauge

	CloudRequests        *prometheus.CounterVec
	CloudRequestDuration *prometheus.HistogramVec
	CircuitBreakerState  prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.ShieldEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shield",
			Name:      "events_total",
			Help:      "Shield audit events by type",
		},
		[]string{"type"},
	)
	m.ShieldQueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "shield",
		Name:      "queue_length",
		Help:      "Commands waiting for the active slot",
	})
	m.ShieldActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "shield",
		Name:      "active",
		Help:      "1 while a command is awaiting convergence",
	})
	m.CloudRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cloud",
			Name:      "requests_total",
			Help:      "OIG Cloud requests by operation and result",
		},
		[]string{"op", "result"},
	)
	m.CloudRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cloud",
			Name:      "request_duration_seconds",
			Help:      "OIG Cloud request duration",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)
	m.CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cloud",
		Name:      "circuit_breaker_state",
		Help:      "0 closed, 1 half-open, 2 open",
	})

	registry.MustRegister(
		m.ShieldEvents,
		m.ShieldQueueLength,
		m.ShieldActive,
		m.CloudRequests,
		m.CloudRequestDuration,
		m.CircuitBreakerState,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Emit counts shield audit events.
func (m *Metrics) Emit(ev shield.AuditEvent) {
	m.ShieldEvents.WithLabelValues(string(ev.Type)).Inc()
}

func (m *Metrics) SetShieldState(queueLen int, active bool) {
	m.ShieldQueueLength.Set(float64(queueLen))
	if active {
		m.ShieldActive.Set(1)
	} else {
		m.ShieldActive.Set(0)
	}
}

func (m *Metrics) RecordCloudRequest(op string, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.CloudRequests.WithLabelValues(op, result).Inc()
	m.CloudRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordBreakerState(_, to gobreaker.State) {
	m.CircuitBreakerState.Set(float64(to))
}

var _ shield.Auditor = (*Metrics)(nil)
