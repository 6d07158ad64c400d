package wsipc

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcomes
const (
	outcomeHandled = "handled"
	outcomeReply   = "reply"
	outcomeDropped = "dropped"
	outcomeFailed  = "failed"
)

// Invoke results
const (
	resultOK          = "ok"
	resultTimeout     = "timeout"
	resultRemoteError = "remote_error"
	resultSendError   = "send_error"
	resultRejected    = "rejected"
)

var (
	registerOnce sync.Once

	dispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsipc",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Inbound envelopes by dispatch outcome.",
		},
		[]string{"name", "outcome"},
	)
	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wsipc",
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Time spent in channel handlers.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"name"},
	)
	invokes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsipc",
			Subsystem: "invoke",
			Name:      "calls_total",
			Help:      "Invoke calls by result.",
		},
		[]string{"name", "result"},
	)
	pendingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wsipc",
			Subsystem: "invoke",
			Name:      "pending",
			Help:      "Invoke calls waiting for a reply.",
		},
		[]string{"name"},
	)
	connectionsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wsipc",
			Subsystem: "transport",
			Name:      "connections",
			Help:      "Open websocket connections.",
		},
		[]string{"addr"},
	)
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(dispatched, handlerDuration, invokes, pendingGauge, connectionsGauge)
	})
}

// MetricsHandler serves the package's metrics in the Prometheus exposition format
func MetricsHandler() http.Handler {
	registerMetrics()
	return promhttp.Handler()
}
