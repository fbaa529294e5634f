package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coffee"

// Metrics exposes application-level instruments. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	recordsWritten  *prometheus.CounterVec
	metaAnomalies   *prometheus.CounterVec
	summaryDelivery *prometheus.CounterVec
}

// New registers the application instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Bag and use mutations applied to the store.",
		}, []string{"kind", "op"}),
		metaAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metacount_anomalies_total",
			Help:      "Meta-count updates that could not be applied.",
		}, []string{"field"}),
		summaryDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_deliveries_total",
			Help:      "Weekly summary deliveries, by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}

	reg.MustRegister(m.httpRequests, m.httpDuration, m.recordsWritten, m.metaAnomalies, m.summaryDelivery)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordWrite counts a successful bag or use mutation.
func (m *Metrics) RecordWrite(kind, op string) {
	if m == nil {
		return
	}
	m.recordsWritten.WithLabelValues(kind, op).Inc()
}

// MetaCountAnomaly counts a meta-count update that was lost.
func (m *Metrics) MetaCountAnomaly(field string) {
	if m == nil {
		return
	}
	m.metaAnomalies.WithLabelValues(field).Inc()
}

// SummaryDelivered records the outcome of pushing a summary to a sink.
func (m *Metrics) SummaryDelivered(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.summaryDelivery.WithLabelValues(sink, outcome).Inc()
}
