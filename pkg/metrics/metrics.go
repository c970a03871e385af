// Package metrics 提供 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transport 指标
var (
	// 连接指标
	TransportConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "linkkit_transport_connections",
		Help: "Number of live transport instances",
	}, []string{"kind"})

	TransportOpenDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linkkit_transport_open_duration_seconds",
		Help:    "Time spent in connect or listen until the instance is usable",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "op"})

	// 连接关闭原因
	TransportCloseReason = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkkit_transport_close_total",
		Help: "Instance close count by reason",
	}, []string{"kind", "reason"})

	// 消息指标
	TransportMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkkit_transport_messages_sent_total",
		Help: "Total messages sent",
	}, []string{"kind"})

	TransportMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkkit_transport_messages_received_total",
		Help: "Total messages received",
	}, []string{"kind"})

	TransportBytesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkkit_transport_bytes_sent_total",
		Help: "Total payload bytes sent",
	}, []string{"kind"})

	TransportBytesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkkit_transport_bytes_received_total",
		Help: "Total payload bytes received",
	}, []string{"kind"})

	// 错误指标
	TransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkkit_transport_errors_total",
		Help: "Transport operation failures by error class",
	}, []string{"kind", "op", "class"})
)

// Signaling 指标
var (
	SignalingPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkkit_signaling_peers",
		Help: "Number of peers registered on the relay",
	})

	SignalingRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkkit_signaling_relayed_total",
		Help: "Signaling messages relayed by type",
	}, []string{"type"})

	SignalingRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkkit_signaling_rejected_total",
		Help: "Signaling messages rejected by reason",
	}, []string{"reason"})
)
