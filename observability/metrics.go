package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_delivery"

const (
	PushDelivered = "delivered"
	PushFailed    = "failed"
)

// Metrics groups the delivery counters. It is registered on an injected
// registry so that each test, like each process, owns its own.
type Metrics struct {
	registry             *prometheus.Registry
	EventsReceived       *prometheus.CounterVec
	EventsRejected       *prometheus.CounterVec
	MessagesPersisted    prometheus.Counter
	LivePushes           *prometheus.CounterVec
	NotificationsCreated *prometheus.CounterVec
	NotificationsPurged  prometheus.Counter
	ProcessCPU           prometheus.Gauge
	ProcessRSS           prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound events received, by kind.",
		}, []string{"kind"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Inbound events rejected before broadcast, by error code.",
		}, []string{"code"}),
		MessagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Messages durably appended to a conversation.",
		}),
		LivePushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_pushes_total",
			Help:      "Pushes to live connections, by result.",
		}, []string{"result"}),
		NotificationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Notifications persisted, by type.",
		}, []string{"type"}),
		NotificationsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_purged_total",
			Help:      "Read notifications removed by retention.",
		}),
		ProcessCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_cpu_percent",
			Help:      "CPU usage of the delivery process.",
		}),
		ProcessRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_rss_bytes",
			Help:      "Resident memory of the delivery process.",
		}),
	}
	registry.MustRegister(
		m.EventsReceived, m.EventsRejected, m.MessagesPersisted, m.LivePushes,
		m.NotificationsCreated, m.NotificationsPurged, m.ProcessCPU, m.ProcessRSS,
	)
	return m
}

// RegisterLiveGauges exposes values read at scrape time, such as the number
// of live connections held by the registry.
func (m *Metrics) RegisterLiveGauges(connections, users, rooms func() float64) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Connections currently registered.",
		}, connections),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one bound connection.",
		}, users),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Conversations with at least one subscribed connection.",
		}, rooms),
	)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Push(err error) {
	if err != nil {
		m.LivePushes.WithLabelValues(PushFailed).Inc()
		return
	}
	m.LivePushes.WithLabelValues(PushDelivered).Inc()
}
