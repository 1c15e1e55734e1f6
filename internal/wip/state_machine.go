package wip

import (
	"context"
	"sync"
	"time"

	"shopfloor/internal/domain"
	"shopfloor/internal/repository"

	"go.uber.org/zap"
)

// StateMachine 在制批次状态机。
// 同一批次的流转严格串行（按批次ID加锁，单写者），不同批次完全并行。
type StateMachine struct {
	batches  repository.BatchesRepo
	routings repository.RoutingsRepo
	writer   repository.TransitionWriter
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStateMachine 创建批次状态机
func NewStateMachine(
	batches repository.BatchesRepo,
	routings repository.RoutingsRepo,
	writer repository.TransitionWriter,
	logger *zap.Logger,
) *StateMachine {
	return &StateMachine{
		batches:  batches,
		routings: routings,
		writer:   writer,
		logger:   logger,
		locks:    map[string]*sync.Mutex{},
	}
}

// lockFor 获取批次级互斥锁（单写者约束）
func (m *StateMachine) lockFor(batchID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[batchID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[batchID] = l
	}
	return l
}

// ReleaseRequest 工单下达请求（创建批次）
type ReleaseRequest struct {
	BatchID      string
	WorkOrderRef string
	RoutingID    string
	Qty          int
	At           time.Time
}

// Release 工单下达：在路线首工序创建批次
func (m *StateMachine) Release(ctx context.Context, req ReleaseRequest) (*domain.WIPBatch, error) {
	if req.BatchID == "" {
		return nil, domain.NewValidationError("batch_id", "required")
	}
	if req.Qty <= 0 {
		return nil, domain.NewValidationError("qty", "must be > 0")
	}

	routing, err := m.routings.GetRouting(ctx, req.RoutingID)
	if err != nil {
		return nil, err
	}
	if len(routing.Stages) == 0 {
		return nil, domain.NewValidationError("routing_id", "routing has no stages")
	}

	lock := m.lockFor(req.BatchID)
	lock.Lock()
	defer lock.Unlock()

	if existing, err := m.batches.Get(ctx, req.BatchID); err == nil && existing != nil {
		return nil, domain.NewStateConflict(domain.ConflictBatchClosed, "batch %s already exists", req.BatchID)
	}

	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	b := &domain.WIPBatch{
		BatchID:        req.BatchID,
		WorkOrderRef:   req.WorkOrderRef,
		RoutingID:      req.RoutingID,
		CurrentStageID: routing.Stages[0].StageID,
		QtyStarted:     req.Qty,
		Status:         domain.BatchOpen,
		StartedAt:      at,
	}
	if err := m.batches.Create(ctx, b); err != nil {
		return nil, err
	}

	m.logger.Info("Batch released",
		zap.String("batch_id", b.BatchID),
		zap.String("routing_id", b.RoutingID),
		zap.Int("qty", b.QtyStarted),
	)
	return b, nil
}

// TransitionRequest 工序流转请求
type TransitionRequest struct {
	EventID     string // 调用方提供的幂等事件ID
	BatchID     string
	ToStageID   string
	QtyGood     int
	QtyRejected int
	OperatorID  string
	MachineID   string
	Shift       string
	At          time.Time
}

// Transition 执行一次工序流转。
// 合法目标：当前工序的直接后继，或当前工序声明的返工前置工序。
// 接受后原子地更新批次并追加一条不可变流转事件。
func (m *StateMachine) Transition(ctx context.Context, req TransitionRequest) (*domain.WIPBatch, *domain.StageTransitionEvent, error) {
	if req.QtyGood < 0 || req.QtyRejected < 0 {
		return nil, nil, domain.NewValidationError("quantity", "must be >= 0")
	}
	if req.QtyGood+req.QtyRejected == 0 {
		return nil, nil, domain.NewValidationError("quantity", "transition moves nothing")
	}

	lock := m.lockFor(req.BatchID)
	lock.Lock()
	defer lock.Unlock()

	b, err := m.batches.Get(ctx, req.BatchID)
	if err != nil {
		return nil, nil, err
	}
	if b.Closed() {
		return nil, nil, domain.NewStateConflict(domain.ConflictBatchClosed,
			"batch %s is %s", b.BatchID, b.Status)
	}

	routing, err := m.routings.GetRouting(ctx, b.RoutingID)
	if err != nil {
		return nil, nil, err
	}
	current, ok := routing.StageByID(b.CurrentStageID)
	if !ok {
		return nil, nil, domain.NewNotFound("stage", b.CurrentStageID)
	}

	if _, ok := routing.StageByID(req.ToStageID); !ok {
		return nil, nil, domain.NewNotFound("stage", req.ToStageID)
	}
	if !legalTarget(routing, current, req.ToStageID) {
		return nil, nil, domain.NewStateConflict(domain.ConflictStageSequence,
			"illegal transition from %s to %s", current.StageID, req.ToStageID)
	}

	moved := req.QtyGood + req.QtyRejected
	if moved > b.InProcess() {
		return nil, nil, domain.NewStateConflict(domain.ConflictQuantityExceeded,
			"moving %d but only %d in process", moved, b.InProcess())
	}

	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	ev := domain.StageTransitionEvent{
		EventID:     req.EventID,
		BatchID:     b.BatchID,
		FromStageID: current.StageID,
		ToStageID:   req.ToStageID,
		QtyGood:     req.QtyGood,
		QtyRejected: req.QtyRejected,
		OperatorID:  req.OperatorID,
		MachineID:   req.MachineID,
		Shift:       req.Shift,
		Timestamp:   at,
	}

	applyTransition(routing, b, ev)
	if b.Status == domain.BatchCompleted {
		b.CompletedAt = &at
	}

	// 事件追加与快照写入在同一持久化边界内生效；失败则两者都不落库
	if err := m.writer.ApplyTransition(ctx, ev, b); err != nil {
		return nil, nil, err
	}

	m.logger.Info("Stage transition applied",
		zap.String("batch_id", b.BatchID),
		zap.String("from_stage", ev.FromStageID),
		zap.String("to_stage", ev.ToStageID),
		zap.Int("qty_good", ev.QtyGood),
		zap.Int("qty_rejected", ev.QtyRejected),
		zap.String("status", b.Status),
	)
	return b, &ev, nil
}

// legalTarget 判断目标工序是否合法（直接后继或返工前置）
func legalTarget(routing *domain.Routing, current *domain.ProductionStage, toStageID string) bool {
	if next := routing.NextStage(current.StageID); next != nil && next.StageID == toStageID {
		return true
	}
	if current.ReworkPredecessorID != nil && *current.ReworkPredecessorID == toStageID {
		return true
	}
	return false
}

// applyTransition 将一条流转事件应用到批次（重放与增量共用，保证确定性）
func applyTransition(routing *domain.Routing, b *domain.WIPBatch, ev domain.StageTransitionEvent) {
	b.QtyRejected += ev.QtyRejected
	if routing.IsTerminal(ev.ToStageID) {
		b.QtyCompleted += ev.QtyGood
	}
	b.CurrentStageID = ev.ToStageID

	if b.Status == domain.BatchOpen {
		b.Status = domain.BatchInProgress
	}
	if routing.IsTerminal(b.CurrentStageID) && b.InProcess() == 0 {
		b.Status = domain.BatchCompleted
	}
}

// Cancel 取消批次（仅 open/in_progress 可取消），取消后冻结一切变更
func (m *StateMachine) Cancel(ctx context.Context, batchID string, at time.Time) (*domain.WIPBatch, error) {
	lock := m.lockFor(batchID)
	lock.Lock()
	defer lock.Unlock()

	b, err := m.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Closed() {
		return nil, domain.NewStateConflict(domain.ConflictBatchClosed,
			"batch %s is %s", b.BatchID, b.Status)
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	b.Status = domain.BatchCancelled
	b.CompletedAt = &at
	if err := m.batches.Update(ctx, b); err != nil {
		return nil, err
	}

	m.logger.Info("Batch cancelled", zap.String("batch_id", batchID))
	return b, nil
}

// Replay 从空状态重放流转事件日志，重建批次的工序与数量。
// 重放结果必须与增量维护的批次完全一致。
func Replay(routing *domain.Routing, batchID, workOrderRef string, qtyStarted int, startedAt time.Time, events []domain.StageTransitionEvent) *domain.WIPBatch {
	b := &domain.WIPBatch{
		BatchID:        batchID,
		WorkOrderRef:   workOrderRef,
		RoutingID:      routing.RoutingID,
		CurrentStageID: routing.Stages[0].StageID,
		QtyStarted:     qtyStarted,
		Status:         domain.BatchOpen,
		StartedAt:      startedAt,
	}
	for _, ev := range events {
		applyTransition(routing, b, ev)
	}
	return b
}
