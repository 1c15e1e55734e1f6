package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopfloor/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Notification 报警状态变化通知
type Notification struct {
	Action string       `json:"action"` // raised / acknowledged / resolved
	Alert  domain.Alert `json:"alert"`
	At     time.Time    `json:"at"`
}

// Notifier 通知发布接口（具体传输由部署配置决定）
type Notifier interface {
	Publish(ctx context.Context, n Notification) error
}

// NopNotifier 不发送任何通知
type NopNotifier struct{}

var _ Notifier = NopNotifier{}

func (NopNotifier) Publish(context.Context, Notification) error { return nil }

// NATSNotifier 将通知发布到 NATS 主题
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSNotifier 连接 NATS 并创建通知发布器
func NewNATSNotifier(url, subject string, logger *zap.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSNotifier{conn: conn, subject: subject, logger: logger}, nil
}

var _ Notifier = (*NATSNotifier)(nil)

func (n *NATSNotifier) Publish(_ context.Context, msg Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close 断开 NATS 连接
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Drain()
	}
}

// WebhookNotifier 将通知 POST 到配置的 URL
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2)
	return &WebhookNotifier{client: client, url: url, logger: logger}
}

var _ Notifier = (*WebhookNotifier)(nil)

func (w *WebhookNotifier) Publish(ctx context.Context, msg Notification) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// MultiNotifier 依次发布到多个通知器，失败记日志不中断
type MultiNotifier struct {
	targets []Notifier
	logger  *zap.Logger
}

// NewMultiNotifier 组合多个通知器
func NewMultiNotifier(logger *zap.Logger, targets ...Notifier) *MultiNotifier {
	return &MultiNotifier{targets: targets, logger: logger}
}

var _ Notifier = (*MultiNotifier)(nil)

func (m *MultiNotifier) Publish(ctx context.Context, msg Notification) error {
	for _, t := range m.targets {
		if err := t.Publish(ctx, msg); err != nil {
			m.logger.Error("Failed to publish notification",
				zap.String("action", msg.Action),
				zap.String("alert_id", msg.Alert.AlertID),
				zap.Error(err),
			)
		}
	}
	return nil
}
