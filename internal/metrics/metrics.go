// Package metrics exposes server counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat"

// Metrics owns a private registry so several servers can coexist in one
// process, which the tests rely on.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive   prometheus.Gauge
	connectionsTotal    prometheus.Counter
	handshakeRejections *prometheus.CounterVec
	eventsTotal         *prometheus.CounterVec
	rateLimitedTotal    prometheus.Counter
	messagesPosted      prometheus.Counter
	messagesRemoved     prometheus.Counter
	uploadsTotal        *prometheus.CounterVec
	uploadSizeBytes     prometheus.Histogram
	transfersActive     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of admitted websocket connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of admitted websocket connections.",
		}),
		handshakeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_rejections_total",
			Help:      "Rejected handshakes by reason.",
		}, []string{"reason"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound websocket events by name.",
		}, []string{"event"}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Chat events dropped by the per-connection rate limiter.",
		}),
		messagesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_posted_total",
			Help:      "Chat messages persisted and broadcast.",
		}),
		messagesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_removed_total",
			Help:      "Chat messages deleted by their author.",
		}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Finished uploads by result.",
		}, []string{"result"}),
		uploadSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of completed uploads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		transfersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_active",
			Help:      "Uploads currently being received.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectionsActive,
		m.connectionsTotal,
		m.handshakeRejections,
		m.eventsTotal,
		m.rateLimitedTotal,
		m.messagesPosted,
		m.messagesRemoved,
		m.uploadsTotal,
		m.uploadSizeBytes,
		m.transfersActive,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Connected() {
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) Disconnected() {
	m.connectionsActive.Dec()
}

func (m *Metrics) HandshakeRejected(reason string) {
	m.handshakeRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) Event(name string) {
	m.eventsTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) RateLimited() {
	m.rateLimitedTotal.Inc()
}

func (m *Metrics) MessagePosted() {
	m.messagesPosted.Inc()
}

func (m *Metrics) MessageRemoved() {
	m.messagesRemoved.Inc()
}

func (m *Metrics) UploadCompleted(size int64) {
	m.uploadsTotal.WithLabelValues("completed").Inc()
	m.uploadSizeBytes.Observe(float64(size))
}

func (m *Metrics) UploadFailed() {
	m.uploadsTotal.WithLabelValues("failed").Inc()
}

func (m *Metrics) SetActiveTransfers(n int) {
	m.transfersActive.Set(float64(n))
}
