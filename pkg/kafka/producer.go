package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/pkg/signaling"
)

// ProducerConfig Kafka 生产者配置
type ProducerConfig struct {
	Brokers      []string      // Kafka broker 地址
	Topic        string        // 目标 topic
	BatchSize    int           // 为 0 时使用 kafka-go 默认值
	BatchTimeout time.Duration // 为 0 时使用 kafka-go 默认值
}

// Producer 把信令中继事件异步写入 Kafka，实现 signaling.EventSink
type Producer struct {
	cfg    *ProducerConfig
	writer *kafka.Writer
	log    *zap.Logger
}

var _ signaling.EventSink = (*Producer)(nil)

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg *ProducerConfig, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Producer{cfg: cfg, log: log}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // 按 peer id 哈希分区，同一对端的事件有序
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion:   p.completion,
	}
	return p
}

func (p *Producer) completion(messages []kafka.Message, err error) {
	if err != nil {
		p.log.Error("kafka batch send failed",
			zap.Error(err),
			zap.String("topic", p.cfg.Topic),
			zap.Int("count", len(messages)),
		)
	}
}

// Publish 编码事件并交给异步 writer，不阻塞中继
func (p *Producer) Publish(e signaling.Event) {
	value, err := signaling.EncodeEvent(e)
	if err != nil {
		p.log.Warn("encode event failed", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(e.Peer),
		Value: value,
		Time:  e.At,
	}
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.log.Error("kafka send failed",
			zap.Error(err),
			zap.String("topic", p.cfg.Topic),
		)
	}
}

// Close 刷新缓冲并关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
