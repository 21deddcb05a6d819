package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for the monitoring engine. All methods
// are nil-safe so components can be wired without metrics in tests.
type Metrics struct {
	registry             *prometheus.Registry
	probeCyclesTotal     *prometheus.CounterVec
	probeDurationSeconds prometheus.Histogram
	transitionsTotal     *prometheus.CounterVec
	killsTotal           *prometheus.CounterVec
	monitorsActiveGauge  prometheus.Gauge
	eventsDroppedTotal   *prometheus.CounterVec
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		probeCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hospital_probe_cycles_total",
			Help: "Total probe cycles by service and outcome.",
		}, []string{"service", "outcome"}),
		probeDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hospital_probe_duration_seconds",
			Help:    "Duration of probe cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hospital_transitions_total",
			Help: "Total monitor-authored lifecycle transitions by service and state.",
		}, []string{"service", "state"}),
		killsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hospital_kills_total",
			Help: "Total replicas killed for failing health policy.",
		}, []string{"service"}),
		monitorsActiveGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hospital_monitors_active",
			Help: "Number of replica monitors currently registered.",
		}),
		eventsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hospital_events_dropped_total",
			Help: "Total events dropped for replicas without a registered monitor.",
		}, []string{"service"}),
	}

	registry.MustRegister(
		m.probeCyclesTotal,
		m.probeDurationSeconds,
		m.transitionsTotal,
		m.killsTotal,
		m.monitorsActiveGauge,
		m.eventsDroppedTotal,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncProbeCycles counts one completed probe cycle.
func (m *Metrics) IncProbeCycles(service string, green bool) {
	if m == nil {
		return
	}
	outcome := "red"
	if green {
		outcome = "green"
	}
	m.probeCyclesTotal.WithLabelValues(service, outcome).Inc()
}

// ObserveProbeDuration records how long one probe cycle took.
func (m *Metrics) ObserveProbeDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.probeDurationSeconds.Observe(duration.Seconds())
}

// IncTransitions counts one monitor-authored transition.
func (m *Metrics) IncTransitions(service, state string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(service, state).Inc()
}

// IncKills counts one kill decision.
func (m *Metrics) IncKills(service string) {
	if m == nil {
		return
	}
	m.killsTotal.WithLabelValues(service).Inc()
}

// SetMonitorsActive sets the active monitor gauge.
func (m *Metrics) SetMonitorsActive(count int) {
	if m == nil {
		return
	}
	m.monitorsActiveGauge.Set(float64(count))
}

// IncEventsDropped counts an event dropped for an unknown replica.
func (m *Metrics) IncEventsDropped(service string) {
	if m == nil {
		return
	}
	m.eventsDroppedTotal.WithLabelValues(service).Inc()
}
