package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "atabot"

// Metrics holds the Prometheus collectors for chat operations.
// All methods are safe on a nil receiver, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	streamChunks prometheus.Counter
	inFlight     prometheus.Gauge
	httpRequests *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry that also carries the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat requests by delivery mode",
		}, []string{"mode"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "failures_total",
			Help:      "Failed chat requests by delivery mode and error code",
		}, []string{"mode", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "End-to-end chat latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"mode"}),
		streamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "stream_chunks_total",
			Help:      "Content chunks delivered to streaming clients",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "in_flight",
			Help:      "Chat requests currently admitted",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(m.requests, m.failures, m.duration, m.streamChunks, m.inFlight, m.httpRequests)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterGaugeFunc exposes a value sampled at scrape time.
func (m *Metrics) RegisterGaugeFunc(subsystem, name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// RegisterCounterFunc exposes a monotonically increasing value sampled at scrape time.
func (m *Metrics) RegisterCounterFunc(subsystem, name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// RecordRequest records an admitted request.
func (m *Metrics) RecordRequest(mode string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(mode).Inc()
	m.inFlight.Inc()
}

// RecordDone records the end of an admitted request.
func (m *Metrics) RecordDone(mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.duration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordFailure records a failed request.
func (m *Metrics) RecordFailure(mode, code string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(mode, code).Inc()
}

// RecordStreamChunk records a stream chunk sent.
func (m *Metrics) RecordStreamChunk() {
	if m == nil {
		return
	}
	m.streamChunks.Inc()
}

// RecordHTTP records a served HTTP request.
func (m *Metrics) RecordHTTP(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
