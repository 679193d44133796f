package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the service's Prometheus instrumentation. A nil *Metrics is valid and records
// nothing, so callers never need to check whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInflight prometheus.Gauge

	generations       *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	engineLatency     *prometheus.HistogramVec
	slotWait          *prometheus.HistogramVec
	slotRejected      *prometheus.CounterVec

	storagePuts     *prometheus.CounterVec
	storageFallback prometheus.Counter
	catalogLists    *prometheus.CounterVec

	readiness *prometheus.GaugeVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 180, 600},
		}, []string{"method", "route"}),
		httpInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "HTTP requests currently being served",
		}),
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation calls by source, output format and outcome",
		}, []string{"source", "format", "outcome"}),
		generationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "End-to-end generation latency",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"source", "format"}),
		engineLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_call_duration_seconds",
			Help:      "Inference engine call latency by capability",
			Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"capability", "status"}),
		slotWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_slot_wait_seconds",
			Help:      "Time spent waiting for a capability slot",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 15, 60, 300},
		}, []string{"capability"}),
		slotRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_slot_rejected_total",
			Help:      "Requests rejected because a capability slot was busy",
		}, []string{"capability"}),
		storagePuts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_puts_total",
			Help:      "Artifact writes by tier and outcome",
		}, []string{"tier", "outcome"}),
		storageFallback: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_fallback_total",
			Help:      "Writes that fell back to the local tier after a remote failure",
		}),
		catalogLists: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lists_total",
			Help:      "Catalog listings by outcome",
		}, []string{"outcome"}),
		readiness: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "readiness_state",
			Help:      "1 for the current readiness state, 0 otherwise",
		}, []string{"state"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncInflight() {
	if m == nil {
		return
	}
	m.httpInflight.Inc()
}

func (m *Metrics) DecInflight() {
	if m == nil {
		return
	}
	m.httpInflight.Dec()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveGeneration(source, format, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(source, format, outcome).Inc()
	if outcome == "success" {
		m.generationLatency.WithLabelValues(source, format).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveEngineCall(capability string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.engineLatency.WithLabelValues(capability, status).Observe(d.Seconds())
}

func (m *Metrics) ObserveSlotWait(capability string, d time.Duration) {
	if m == nil {
		return
	}
	m.slotWait.WithLabelValues(capability).Observe(d.Seconds())
}

func (m *Metrics) IncSlotRejected(capability string) {
	if m == nil {
		return
	}
	m.slotRejected.WithLabelValues(capability).Inc()
}

func (m *Metrics) ObserveStoragePut(tier, outcome string) {
	if m == nil {
		return
	}
	m.storagePuts.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) IncStorageFallback() {
	if m == nil {
		return
	}
	m.storageFallback.Inc()
}

func (m *Metrics) ObserveCatalogList(outcome string) {
	if m == nil {
		return
	}
	m.catalogLists.WithLabelValues(outcome).Inc()
}

// SetReadiness marks state as the only active readiness state.
func (m *Metrics) SetReadiness(state string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.readiness.WithLabelValues(s).Set(0)
	}
	m.readiness.WithLabelValues(state).Set(1)
}
