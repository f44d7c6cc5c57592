package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	sweepRuns     *prometheus.CounterVec
	sweepTickets  *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec

	notifications   *prometheus.CounterVec
	broadcastDrops  prometheus.Counter
	relayFailures   prometheus.Counter
	liveSubscribers prometheus.Gauge
}

// NewMetrics builds collectors on a private registry so tests can create as many as they like.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Error responses by route, method and error code.",
		}, []string{"route", "method", "code"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "sweep_runs_total",
			Help:      "SLA sweep executions by kind and result (completed, skipped, failed).",
		}, []string{"kind", "result"}),
		sweepTickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "sweep_tickets_total",
			Help:      "Tickets processed by SLA sweeps by kind and outcome (warned, breached, errored).",
		}, []string{"kind", "outcome"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of completed SLA sweeps.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Persisted notifications by type.",
		}, []string{"type"}),
		broadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Live events dropped because a subscriber buffer was full.",
		}),
		relayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_relay_failures_total",
			Help:      "Outbound notification relay attempts that failed.",
		}),
		liveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Currently connected live subscribers.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.errors,
		m.sweepRuns, m.sweepTickets, m.sweepDuration,
		m.notifications, m.broadcastDrops, m.relayFailures, m.liveSubscribers,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordSweep records one sweep execution. result is completed, skipped or failed.
func (m *Metrics) RecordSweep(kind, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(kind, result).Inc()
	if result == "completed" {
		m.sweepDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// RecordSweepTickets adds n tickets with the given outcome.
func (m *Metrics) RecordSweepTickets(kind, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepTickets.WithLabelValues(kind, outcome).Add(float64(n))
}

func (m *Metrics) RecordNotification(notificationType string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType).Inc()
}

func (m *Metrics) RecordBroadcastDrop() {
	if m == nil {
		return
	}
	m.broadcastDrops.Inc()
}

func (m *Metrics) RecordRelayFailure() {
	if m == nil {
		return
	}
	m.relayFailures.Inc()
}

// SubscriberConnected adjusts the live subscriber gauge by delta.
func (m *Metrics) SubscriberConnected(delta int) {
	if m == nil {
		return
	}
	m.liveSubscribers.Add(float64(delta))
}
