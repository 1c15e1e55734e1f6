package alerting

import (
	"context"
	"time"

	"shopfloor/internal/domain"
	"shopfloor/internal/notify"
	"shopfloor/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Evaluator 报警评估器。
// 每个 (machine, alert_type) 为一个状态机：none → active → acknowledged → resolved，
// active → resolved 也允许直接流转。
// 同一 (machine, alert_type) 存在 active/acknowledged 报警时不再新建，防止报警风暴。
type Evaluator struct {
	alerts   repository.AlertsRepo
	rules    []Rule
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewEvaluator 创建报警评估器
func NewEvaluator(alerts repository.AlertsRepo, rules []Rule, notifier notify.Notifier, logger *zap.Logger) *Evaluator {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Evaluator{
		alerts:   alerts,
		rules:    rules,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateWindow 在 OEE 聚合重算后评估所有规则，返回新建的报警
func (e *Evaluator) EvaluateWindow(ctx context.Context, w domain.OEEWindow) ([]domain.Alert, error) {
	var created []domain.Alert
	for _, rule := range e.rules {
		value := metricValue(w, rule.Metric)
		if !breached(value, rule) {
			continue
		}

		existing, err := e.alerts.FindOpen(ctx, w.MachineID, rule.AlertType)
		if err != nil {
			return created, err
		}
		if existing != nil {
			// 已有未关闭报警，重复越限不再新建
			e.logger.Debug("Threshold still breached, alert already open",
				zap.String("machine_id", w.MachineID),
				zap.String("alert_type", rule.AlertType),
			)
			continue
		}

		now := e.now()
		alert := domain.Alert{
			AlertID:     uuid.New().String(),
			MachineID:   w.MachineID,
			AlertType:   rule.AlertType,
			Severity:    rule.Severity,
			Threshold:   rule.Threshold,
			Observed:    value,
			Status:      domain.AlertActive,
			TriggeredAt: now,
			UpdatedAt:   now,
		}
		if err := e.alerts.Create(ctx, &alert); err != nil {
			return created, err
		}
		created = append(created, alert)

		e.logger.Warn("Alert raised",
			zap.String("alert_id", alert.AlertID),
			zap.String("machine_id", alert.MachineID),
			zap.String("alert_type", alert.AlertType),
			zap.Float64("threshold", alert.Threshold),
			zap.Float64("observed", alert.Observed),
		)
		e.publish(ctx, "raised", alert)
	}
	return created, nil
}

// Acknowledge 操作员确认报警。重复确认幂等（审计字段按最后写入者覆盖）。
func (e *Evaluator) Acknowledge(ctx context.Context, alertID, actor string) (*domain.Alert, error) {
	a, err := e.alerts.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status == domain.AlertResolved {
		return nil, domain.NewStateConflict(domain.ConflictAlertResolved,
			"alert %s is already resolved", alertID)
	}

	now := e.now()
	a.Status = domain.AlertAcknowledged
	a.AcknowledgedBy = &actor
	a.AcknowledgedAt = &now
	a.UpdatedAt = now
	if err := e.alerts.Update(ctx, a); err != nil {
		return nil, err
	}

	e.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("actor", actor),
	)
	e.publish(ctx, "acknowledged", *a)
	return a, nil
}

// Resolve 操作员解除报警。底层条件仍越限也允许解除（操作员覆盖），
// 解除后的下一次越限会重新产生新报警。重复解除幂等。
func (e *Evaluator) Resolve(ctx context.Context, alertID, actor string) (*domain.Alert, error) {
	a, err := e.alerts.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status == domain.AlertResolved {
		return a, nil
	}

	now := e.now()
	a.Status = domain.AlertResolved
	a.ResolvedBy = &actor
	a.ResolvedAt = &now
	a.UpdatedAt = now
	if err := e.alerts.Update(ctx, a); err != nil {
		return nil, err
	}

	e.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("actor", actor),
	)
	e.publish(ctx, "resolved", *a)
	return a, nil
}

func (e *Evaluator) publish(ctx context.Context, action string, a domain.Alert) {
	n := notify.Notification{Action: action, Alert: a, At: e.now()}
	if err := e.notifier.Publish(ctx, n); err != nil {
		e.logger.Error("Failed to publish alert notification",
			zap.String("alert_id", a.AlertID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// metricValue 从 OEE 窗口取指标值（比较用未舍入值）
func metricValue(w domain.OEEWindow, metric string) float64 {
	switch metric {
	case MetricOEE:
		return w.OEE
	case MetricAvailability:
		return w.Availability
	case MetricPerformance:
		return w.Performance
	case MetricQuality:
		return w.Quality
	case MetricDowntimeMinutes:
		return w.DowntimeMinutes
	}
	return 0
}

func breached(value float64, rule Rule) bool {
	switch rule.Operator {
	case "lt":
		return value < rule.Threshold
	case "gt":
		return value > rule.Threshold
	}
	return false
}
