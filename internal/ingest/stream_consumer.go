package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	rediscommon "shopfloor/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamConsumer Redis Streams 消费者（网关提交的事件走这里）。
// 使用消费者组：处理成功才 ACK，进程重启后未确认的消息会重新投递。
type StreamConsumer struct {
	client   *redis.Client
	ingestor *Ingestor
	stream   string
	group    string
	consumer string
	logger   *zap.Logger
}

// NewStreamConsumer 创建流消费者
func NewStreamConsumer(
	client *redis.Client,
	ingestor *Ingestor,
	stream, group, consumer string,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		client:   client,
		ingestor: ingestor,
		stream:   stream,
		group:    group,
		consumer: consumer,
		logger:   logger,
	}
}

// Start 启动消费循环
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.client, c.stream, c.group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.stream),
		zap.String("group", c.group),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
		}

		messages, err := rediscommon.ReadFromGroup(ctx, c.client, c.stream, c.group, c.consumer, 16)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to read from stream", zap.Error(err))
			continue
		}

		for _, msg := range messages {
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *StreamConsumer) handleMessage(ctx context.Context, msg rediscommon.StreamMessage) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		c.logger.Error("Stream message missing payload", zap.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		c.logger.Error("Failed to unmarshal stream event",
			zap.String("id", msg.ID),
			zap.Error(err),
		)
		c.ack(ctx, msg.ID)
		return
	}

	res, err := c.ingestor.Process(ctx, ev)
	if err != nil {
		c.logger.Warn("Stream event rejected",
			zap.String("id", msg.ID),
			zap.String("idempotency_key", ev.IdempotencyKey),
			zap.String("reason", res.Reason),
		)
	}
	// 校验/状态冲突类错误不可重试，持久化失败已进死信；统一确认
	c.ack(ctx, msg.ID)
}

func (c *StreamConsumer) ack(ctx context.Context, id string) {
	if err := rediscommon.AckMessage(ctx, c.client, c.stream, c.group, id); err != nil {
		c.logger.Error("Failed to ack stream message",
			zap.String("id", id),
			zap.Error(err),
		)
	}
}
