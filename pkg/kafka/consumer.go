// Package kafka 提供信令事件的 Kafka 生产者与消费者
package kafka

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/pkg/signaling"
)

var ErrIncompleteConfig = errors.New("kafka consumer needs brokers, topic and group")

// ConsumerConfig Kafka 消费者配置
type ConsumerConfig struct {
	Brokers       []string // Kafka broker 地址
	Topic         string   // 订阅的 topic
	ConsumerGroup string   // 消费组 ID
}

// Consumer 读取信令事件
type Consumer struct {
	cfg       *ConsumerConfig
	reader    *kafka.Reader
	log       *zap.Logger
	connected atomic.Bool
}

// EventHandler 事件处理函数
type EventHandler func(e signaling.Event) error

// NewConsumer 创建 Kafka 消费者
func NewConsumer(cfg *ConsumerConfig, log *zap.Logger) (*Consumer, error) {
	// 验证配置
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.ConsumerGroup == "" {
		return nil, ErrIncompleteConfig
	}
	if log == nil {
		log = zap.NewNop()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	c := &Consumer{
		cfg:    cfg,
		reader: reader,
		log:    log,
	}
	c.connected.Store(true)
	return c, nil
}

// Run 消费循环，ctx 取消时返回
func (c *Consumer) Run(ctx context.Context, handler EventHandler) error {
	c.log.Info("kafka consumer started",
		zap.String("topic", c.cfg.Topic),
		zap.String("group", c.cfg.ConsumerGroup),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				// reader 已关闭
				return nil
			}
			c.connected.Store(false)
			c.log.Error("kafka fetch message failed", zap.Error(err))
			continue
		}
		c.connected.Store(true)

		e, err := signaling.DecodeEvent(msg.Value)
		if err != nil {
			c.log.Warn("decode event failed",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		} else if err := handler(e); err != nil {
			return err
		}

		// 提交 offset
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("kafka commit failed", zap.Error(err))
		}
	}
}

// IsConnected 最近一次拉取是否成功
func (c *Consumer) IsConnected() bool {
	return c.connected.Load()
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	c.connected.Store(false)
	return c.reader.Close()
}
