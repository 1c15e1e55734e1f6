package ingest

import (
	"context"

	rediscommon "shopfloor/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisDeadLetter 将重试耗尽的事件发布到死信流
type RedisDeadLetter struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisDeadLetter 创建死信发布器
func NewRedisDeadLetter(client *redis.Client, stream string, logger *zap.Logger) *RedisDeadLetter {
	return &RedisDeadLetter{client: client, stream: stream, logger: logger}
}

var _ DeadLetter = (*RedisDeadLetter)(nil)

func (d *RedisDeadLetter) Publish(ctx context.Context, ev Event, cause error) error {
	payload := struct {
		Event Event  `json:"event"`
		Cause string `json:"cause"`
	}{Event: ev, Cause: cause.Error()}

	id, err := rediscommon.PublishJSONToStream(ctx, d.client, d.stream, payload)
	if err != nil {
		return err
	}
	d.logger.Error("Event moved to dead letter stream",
		zap.String("stream", d.stream),
		zap.String("message_id", id),
		zap.String("idempotency_key", ev.IdempotencyKey),
		zap.Error(cause),
	)
	return nil
}
