package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "queuesync"

// Metrics holds every collector the service exports. All methods are safe
// on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	gatherer prometheus.Gatherer

	queueLength       prometheus.Gauge
	queueOperations   *prometheus.CounterVec
	broadcasts        *prometheus.CounterVec
	broadcastFailures *prometheus.CounterVec
	connectedClients  prometheus.Gauge
	chatMessages      *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	httpActive        prometheus.Gauge
}

// New registers the collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from each other.
func New(reg *prometheus.Registry) *Metrics {
	return newWith(reg, reg)
}

func newWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		queueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Number of customers currently waiting",
		}),
		queueOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_operations_total",
			Help:      "Queue mutations by operation and outcome",
		}, []string{"operation", "status"}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Frames enqueued to live connections by message type",
		}, []string{"type"}),
		broadcastFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_failures_total",
			Help:      "Connections dropped because a send failed, by message type",
		}, []string{"type"}),
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Live WebSocket connections",
		}),
		chatMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages stored by direction",
		}, []string{"direction"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "endpoint", "status_code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		httpActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_active",
			Help:      "Requests currently being served",
		}),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide instance registered on the default
// Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = newWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return defaultMetrics
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

func (m *Metrics) QueueOperation(operation, status string) {
	if m == nil {
		return
	}
	m.queueOperations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) BroadcastDelivered(messageType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.broadcasts.WithLabelValues(messageType).Add(float64(n))
}

func (m *Metrics) BroadcastFailed(messageType string) {
	if m == nil {
		return
	}
	m.broadcastFailures.WithLabelValues(messageType).Inc()
}

func (m *Metrics) SetConnectedClients(n int) {
	if m == nil {
		return
	}
	m.connectedClients.Set(float64(n))
}

func (m *Metrics) ChatMessage(direction string) {
	if m == nil {
		return
	}
	m.chatMessages.WithLabelValues(direction).Inc()
}

// RequestStarted tracks an in-flight request. Call the returned func when
// the request completes.
func (m *Metrics) RequestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.httpActive.Inc()
	return m.httpActive.Dec
}

func (m *Metrics) ObserveHTTP(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
