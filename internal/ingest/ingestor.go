package ingest

import (
	"context"
	"time"

	"shopfloor/internal/costing"
	"shopfloor/internal/domain"
	"shopfloor/internal/repository"
	"shopfloor/internal/store"
	"shopfloor/internal/wip"

	"go.uber.org/zap"
)

// RetryPolicy 持久化追加的重试策略。
// DurabilityFailure 是唯一自动重试的错误类，耗尽后进入死信，绝不静默丢弃。
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DeadLetter 死信发布（重试耗尽的事件出口，核心之外的运维路径消费）
type DeadLetter interface {
	Publish(ctx context.Context, ev Event, cause error) error
}

// NopDeadLetter 仅记日志
type NopDeadLetter struct {
	Logger *zap.Logger
}

var _ DeadLetter = NopDeadLetter{}

func (d NopDeadLetter) Publish(_ context.Context, ev Event, cause error) error {
	d.Logger.Error("Event dropped to dead letter",
		zap.String("idempotency_key", ev.IdempotencyKey),
		zap.String("event_type", ev.EventType),
		zap.Error(cause),
	)
	return nil
}

// Ingestor 事件摄入器：所有状态变更的唯一入口。
// 校验 → 幂等去重 → 持久化追加（带重试）→ 按事件类型扇出。
type Ingestor struct {
	dedup       store.KV
	dedupPrefix string
	dedupTTL    time.Duration
	retry       RetryPolicy

	stateMachine  *wip.StateMachine
	accumulator   *costing.Accumulator
	machines      repository.MachinesRepo
	machineEvents repository.MachineEventsRepo
	deadLetter    DeadLetter
	logger        *zap.Logger
}

// NewIngestor 创建摄入器
func NewIngestor(
	dedup store.KV,
	stateMachine *wip.StateMachine,
	accumulator *costing.Accumulator,
	machines repository.MachinesRepo,
	machineEvents repository.MachineEventsRepo,
	deadLetter DeadLetter,
	retry RetryPolicy,
	dedupTTL time.Duration,
	logger *zap.Logger,
) *Ingestor {
	if retry.Attempts <= 0 {
		retry.Attempts = 3
	}
	if retry.Backoff <= 0 {
		retry.Backoff = 200 * time.Millisecond
	}
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	if deadLetter == nil {
		deadLetter = NopDeadLetter{Logger: logger}
	}
	return &Ingestor{
		dedup:         dedup,
		dedupPrefix:   "shopfloor:event:",
		dedupTTL:      dedupTTL,
		retry:         retry,
		stateMachine:  stateMachine,
		accumulator:   accumulator,
		machines:      machines,
		machineEvents: machineEvents,
		deadLetter:    deadLetter,
		logger:        logger,
	}
}

// Process 处理一条摄入事件。
// 同一幂等键提交两次，状态只变更一次；重复提交返回成功加标记。
func (i *Ingestor) Process(ctx context.Context, ev Event) (Result, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		return Result{Reason: err.Error()}, err
	}

	first, err := i.dedup.SetNX(ctx, i.dedupPrefix+ev.IdempotencyKey, ev.EventType, i.dedupTTL)
	if err != nil {
		return Result{Reason: "dedup check failed"}, &domain.DurabilityError{Op: "dedup", Err: err}
	}
	if !first {
		i.logger.Debug("Duplicate event ignored",
			zap.String("idempotency_key", ev.IdempotencyKey),
			zap.String("event_type", ev.EventType),
		)
		return Result{Accepted: true, Duplicate: true}, nil
	}

	if err := i.apply(ctx, ev); err != nil {
		if domain.IsDurability(err) {
			// 重试耗尽：进入死信，不丢失
			if dlErr := i.deadLetter.Publish(ctx, ev, err); dlErr != nil {
				i.logger.Error("Failed to publish to dead letter",
					zap.String("idempotency_key", ev.IdempotencyKey),
					zap.Error(dlErr),
				)
			}
		}
		// 未生效的事件释放幂等键，纠正后用同一键重提可以生效
		if delErr := i.dedup.Del(ctx, i.dedupPrefix+ev.IdempotencyKey); delErr != nil {
			i.logger.Error("Failed to release idempotency key of rejected event",
				zap.String("idempotency_key", ev.IdempotencyKey),
				zap.Error(delErr),
			)
		}
		return Result{Reason: err.Error()}, err
	}
	return Result{Accepted: true}, nil
}

// apply 按事件类型扇出
func (i *Ingestor) apply(ctx context.Context, ev Event) error {
	switch ev.EventType {
	case EventBatchRelease:
		_, err := i.stateMachine.Release(ctx, wip.ReleaseRequest{
			BatchID:      ev.BatchID,
			WorkOrderRef: ev.WorkOrderRef,
			RoutingID:    ev.RoutingID,
			Qty:          ev.Qty,
			At:           ev.Timestamp,
		})
		return err

	case EventStageTransition:
		var applied *domain.StageTransitionEvent
		err := i.retryDurability(ctx, func() error {
			var err error
			_, applied, err = i.stateMachine.Transition(ctx, wip.TransitionRequest{
				EventID:     ev.IdempotencyKey,
				BatchID:     ev.BatchID,
				ToStageID:   ev.ToStageID,
				QtyGood:     ev.QtyGood,
				QtyRejected: ev.QtyRejected,
				OperatorID:  ev.OperatorID,
				MachineID:   ev.MachineID,
				Shift:       ev.Shift,
				At:          ev.Timestamp,
			})
			return err
		})
		if err != nil {
			return err
		}
		// 工序完成：对刚离开的工序做间接费自动分摊
		if err := i.accumulator.AllocateStageOverhead(ctx, ev.BatchID, applied.FromStageID, ev.Timestamp); err != nil {
			i.logger.Error("Overhead allocation failed",
				zap.String("batch_id", ev.BatchID),
				zap.String("stage_id", applied.FromStageID),
				zap.Error(err),
			)
		}
		return nil

	case EventBatchCancel:
		_, err := i.stateMachine.Cancel(ctx, ev.BatchID, ev.Timestamp)
		return err

	case EventCost:
		_, err := costingWithRetry(ctx, i, ev)
		return err

	case EventRuntime, EventDowntime, EventProduction:
		return i.applyMachineEvent(ctx, ev)
	}
	return domain.NewValidationError("event_type", "unknown event type "+ev.EventType)
}

func costingWithRetry(ctx context.Context, i *Ingestor, ev Event) (*domain.CostEntry, error) {
	var entry *domain.CostEntry
	err := i.retryDurability(ctx, func() error {
		var err error
		entry, err = i.accumulator.RecordCost(ctx, costing.RecordCostRequest{
			EntryID:   ev.IdempotencyKey,
			BatchID:   ev.BatchID,
			StageID:   ev.StageID,
			CostType:  ev.CostType,
			Amount:    ev.Amount,
			SourceRef: ev.SourceRef,
			At:        ev.Timestamp,
		})
		return err
	})
	return entry, err
}

// applyMachineEvent 追加机台事件并同步机台状态
func (i *Ingestor) applyMachineEvent(ctx context.Context, ev Event) error {
	if _, err := i.machines.Get(ctx, ev.MachineID); err != nil {
		return err
	}

	rec := domain.MachineEvent{
		EventID:       ev.IdempotencyKey,
		MachineID:     ev.MachineID,
		EventType:     ev.EventType,
		Minutes:       ev.Minutes,
		UnitsProduced: ev.UnitsProduced,
		UnitsGood:     ev.UnitsGood,
		UnitsScrap:    ev.UnitsScrap,
		Shift:         ev.Shift,
		Timestamp:     ev.Timestamp,
	}
	if err := i.retryDurability(ctx, func() error {
		return i.machineEvents.Append(ctx, rec)
	}); err != nil {
		return err
	}

	status := ev.MachineStatus
	if status == "" {
		switch ev.EventType {
		case domain.MachineEventRuntime:
			status = domain.MachineRunning
		case domain.MachineEventDowntime:
			status = domain.MachineBreakdown
		}
	}
	if status != "" {
		if err := i.machines.UpdateStatus(ctx, ev.MachineID, status, ev.Timestamp); err != nil {
			i.logger.Error("Failed to update machine status",
				zap.String("machine_id", ev.MachineID),
				zap.String("status", status),
				zap.Error(err),
			)
		}
	}
	return nil
}

// retryDurability 只对 DurabilityFailure 退避重试；其余错误同步返回
func (i *Ingestor) retryDurability(ctx context.Context, op func() error) error {
	var lastErr error
	backoff := i.retry.Backoff
	for attempt := 1; attempt <= i.retry.Attempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !domain.IsDurability(lastErr) {
			return lastErr
		}
		i.logger.Warn("Durable append failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}
