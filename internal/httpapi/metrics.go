package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors for the overlay server. All
// methods are safe on a nil receiver so callers never have to guard.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	wsViewers         prometheus.Gauge
	broadcastDrops    prometheus.Counter
	rateLimited       prometheus.Counter
	messagesReceived  *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	malformedDropped  *prometheus.CounterVec
	adapterReconnects *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatfuse",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatfuse",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		wsViewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatfuse",
			Name:      "ws_viewers",
			Help:      "Currently connected stream viewers",
		}),
		broadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatfuse",
			Name:      "broadcast_drops_total",
			Help:      "Frames dropped because a viewer buffer was full",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatfuse",
			Name:      "http_rate_limited_total",
			Help:      "HTTP requests rejected by the per-IP rate limiter",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatfuse",
			Name:      "messages_received_total",
			Help:      "Chat messages received from the platform adapters",
		}, []string{"platform"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatfuse",
			Name:      "messages_sent_total",
			Help:      "Chat frames delivered to viewers",
		}, []string{"platform"}),
		malformedDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatfuse",
			Name:      "malformed_dropped_total",
			Help:      "Upstream events dropped as undecodable",
		}, []string{"platform"}),
		adapterReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatfuse",
			Name:      "adapter_reconnects_total",
			Help:      "Reconnection attempts per platform adapter",
		}, []string{"platform"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.wsViewers,
		m.broadcastDrops,
		m.rateLimited,
		m.messagesReceived,
		m.messagesSent,
		m.malformedDropped,
		m.adapterReconnects,
	)

	return m
}

// Handler exposes the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route, method string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

func (m *Metrics) IncWSViewers(delta float64) {
	if m == nil {
		return
	}
	m.wsViewers.Add(delta)
}

func (m *Metrics) IncBroadcastDrops() {
	if m == nil {
		return
	}
	m.broadcastDrops.Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) IncMessagesReceived(platform string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(platform).Inc()
}

func (m *Metrics) IncMessagesSent(platform string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(platform).Inc()
}

func (m *Metrics) IncMalformedDropped(platform string) {
	if m == nil {
		return
	}
	m.malformedDropped.WithLabelValues(platform).Inc()
}

func (m *Metrics) IncAdapterReconnects(platform string) {
	if m == nil {
		return
	}
	m.adapterReconnects.WithLabelValues(platform).Inc()
}
