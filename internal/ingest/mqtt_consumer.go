package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqttcommon "shopfloor/common/mqtt"

	"go.uber.org/zap"
)

// MQTTConsumer 机台事件 MQTT 消费者。
// 主题格式: floor/{machine_id}/events
type MQTTConsumer struct {
	mqttClient *mqttcommon.Client
	ingestor   *Ingestor
	topic      string
	qos        byte
	logger     *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	mqttClient *mqttcommon.Client,
	ingestor *Ingestor,
	topic string,
	qos byte,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		mqttClient: mqttClient,
		ingestor:   ingestor,
		topic:      topic,
		qos:        qos,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	// 在途消息处理沿用生命周期上下文，停机取消能打断退避中的重试
	handler := func(topic string, payload []byte) error {
		return c.handleMessage(ctx, topic, payload)
	}
	if err := c.mqttClient.Subscribe(c.topic, c.qos, handler); err != nil {
		return fmt.Errorf("failed to subscribe to event topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.topic),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理MQTT消息
func (c *MQTTConsumer) handleMessage(ctx context.Context, topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	// 从主题中提取机台标识符
	// 主题格式: floor/{machine_id}/events
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	machineID := parts[1]

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.logger.Error("Failed to unmarshal MQTT message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if ev.MachineID == "" {
		ev.MachineID = machineID
	}

	res, err := c.ingestor.Process(ctx, ev)
	if err != nil {
		c.logger.Warn("Event rejected",
			zap.String("topic", topic),
			zap.String("idempotency_key", ev.IdempotencyKey),
			zap.String("reason", res.Reason),
		)
		return err
	}
	return nil
}
