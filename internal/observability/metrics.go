package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess      = "success"
	OutcomeError        = "error"
	OutcomeUnauthorized = "unauthorized"
	OutcomeAborted      = "aborted"

	AckDelivered = "delivered"
	AckTimeout   = "timeout"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lpio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by an lpio endpoint.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lpio",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lpio",
			Subsystem: "channel",
			Name:      "exchanges_total",
			Help:      "Exchanges completed by outcome.",
		},
		[]string{"channel", "outcome"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lpio",
			Subsystem: "channel",
			Name:      "exchange_duration_seconds",
			Help:      "Exchange round trip duration in seconds.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"channel", "outcome"},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lpio",
			Subsystem: "channel",
			Name:      "messages_sent_total",
			Help:      "Messages accepted into the outbound buffer.",
		},
		[]string{"channel", "type"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lpio",
			Subsystem: "channel",
			Name:      "messages_received_total",
			Help:      "Messages dispatched from exchange responses.",
		},
		[]string{"channel", "type"},
	)
	acks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lpio",
			Subsystem: "channel",
			Name:      "acks_total",
			Help:      "Delivery confirmations by outcome.",
		},
		[]string{"channel", "outcome"},
	)
	disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lpio",
			Subsystem: "channel",
			Name:      "disconnects_total",
			Help:      "Disconnected transitions.",
		},
		[]string{"channel"},
	)
	buffered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lpio",
			Subsystem: "channel",
			Name:      "buffered_messages",
			Help:      "Messages waiting in the outbound buffer.",
		},
		[]string{"channel"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			exchanges, exchangeDuration,
			messagesSent, messagesReceived,
			acks, disconnects, buffered,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordExchange(channel, outcome string, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(channel, outcome).Inc()
	exchangeDuration.WithLabelValues(channel, outcome).Observe(duration.Seconds())
}

func RecordMessageSent(channel, msgType string) {
	RegisterMetrics()
	messagesSent.WithLabelValues(channel, msgType).Inc()
}

func RecordMessageReceived(channel, msgType string) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(channel, msgType).Inc()
}

func RecordAck(channel, outcome string) {
	RegisterMetrics()
	acks.WithLabelValues(channel, outcome).Inc()
}

func RecordDisconnect(channel string) {
	RegisterMetrics()
	disconnects.WithLabelValues(channel).Inc()
}

func SetBuffered(channel string, n int) {
	RegisterMetrics()
	buffered.WithLabelValues(channel).Set(float64(n))
}
