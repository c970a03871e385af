package transport

import (
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/pkg/metrics"
)

// observeOpen 记录 connect/listen 结果
func observeOpen(log *zap.Logger, kind Kind, op, addr string, start time.Time, err error) {
	if err != nil {
		metrics.TransportErrors.WithLabelValues(kind.String(), op, ClassOf(err)).Inc()
		log.Warn("transport open failed",
			zap.String("kind", kind.String()),
			zap.String("op", op),
			zap.String("addr", addr),
			zap.Error(err),
		)
		return
	}
	metrics.TransportOpenDuration.WithLabelValues(kind.String(), op).Observe(time.Since(start).Seconds())
	metrics.TransportConnections.WithLabelValues(kind.String()).Inc()
}

func observeSend(kind Kind, n int, err error) {
	if err != nil {
		metrics.TransportErrors.WithLabelValues(kind.String(), "send", ClassOf(err)).Inc()
		return
	}
	metrics.TransportMessagesSent.WithLabelValues(kind.String()).Inc()
	metrics.TransportBytesSent.WithLabelValues(kind.String()).Add(float64(n))
}

func observeReceive(kind Kind, n int) {
	metrics.TransportMessagesReceived.WithLabelValues(kind.String()).Inc()
	metrics.TransportBytesReceived.WithLabelValues(kind.String()).Add(float64(n))
}

// observeClose 实例关闭，只应在状态切换成功后调用一次
func observeClose(log *zap.Logger, kind Kind, id, reason string) {
	metrics.TransportConnections.WithLabelValues(kind.String()).Dec()
	metrics.TransportCloseReason.WithLabelValues(kind.String(), reason).Inc()
	log.Debug("transport closed",
		zap.String("kind", kind.String()),
		zap.String("conn_id", id),
		zap.String("reason", reason),
	)
}
