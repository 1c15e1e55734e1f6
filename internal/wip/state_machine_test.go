package wip

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopfloor/internal/domain"
	"shopfloor/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRouting() *domain.Routing {
	rework := "st-2"
	return &domain.Routing{
		RoutingID: "rt-1",
		Name:      "gear assembly",
		Stages: []domain.ProductionStage{
			{StageID: "st-1", RoutingID: "rt-1", Name: "cutting", Seq: 1},
			{StageID: "st-2", RoutingID: "rt-1", Name: "welding", Seq: 2},
			{StageID: "st-3", RoutingID: "rt-1", Name: "qa", Seq: 3, ReworkPredecessorID: &rework},
		},
	}
}

func newTestStateMachine(t *testing.T) (*StateMachine, *repository.MemoryBatchesRepo, *repository.MemoryTransitionsRepo) {
	t.Helper()
	batches := repository.NewMemoryBatchesRepo()
	routings := repository.NewMemoryRoutingsRepo()
	transitions := repository.NewMemoryTransitionsRepo()
	writer := repository.NewMemoryBatchWriter(transitions, repository.NewMemoryCostsRepo(), batches)
	require.NoError(t, routings.CreateRouting(context.Background(), testRouting()))
	return NewStateMachine(batches, routings, writer, zap.NewNop()), batches, transitions
}

// flakyWriter 前 N 次写入失败，之后交给真实写入器
type flakyWriter struct {
	inner repository.TransitionWriter
	fails int
}

func (w *flakyWriter) ApplyTransition(ctx context.Context, ev domain.StageTransitionEvent, b *domain.WIPBatch) error {
	if w.fails > 0 {
		w.fails--
		return &domain.DurabilityError{Op: "apply transition", Err: errors.New("connection reset")}
	}
	return w.inner.ApplyTransition(ctx, ev, b)
}

func conflictKind(t *testing.T, err error) string {
	t.Helper()
	var c *domain.StateConflictError
	require.True(t, errors.As(err, &c), "expected state conflict, got %v", err)
	return c.Kind
}

func TestRelease(t *testing.T) {
	sm, _, _ := newTestStateMachine(t)
	ctx := context.Background()

	b, err := sm.Release(ctx, ReleaseRequest{
		BatchID:      "BT-1001",
		WorkOrderRef: "WO-77",
		RoutingID:    "rt-1",
		Qty:          100,
	})
	require.NoError(t, err)
	assert.Equal(t, "st-1", b.CurrentStageID)
	assert.Equal(t, domain.BatchOpen, b.Status)
	assert.Equal(t, 100, b.InProcess())

	// 同一批次号重复下达被拒绝
	_, err = sm.Release(ctx, ReleaseRequest{
		BatchID: "BT-1001", WorkOrderRef: "WO-77", RoutingID: "rt-1", Qty: 50,
	})
	require.Error(t, err)
	assert.True(t, domain.IsStateConflict(err))

	_, err = sm.Release(ctx, ReleaseRequest{BatchID: "BT-x", RoutingID: "rt-1", Qty: 0})
	assert.True(t, domain.IsValidation(err))
}

func TestTransitionQuantities(t *testing.T) {
	sm, _, _ := newTestStateMachine(t)
	ctx := context.Background()

	_, err := sm.Release(ctx, ReleaseRequest{
		BatchID: "BT-1001", WorkOrderRef: "WO-77", RoutingID: "rt-1", Qty: 100,
	})
	require.NoError(t, err)

	// 首工序完成：95 良品进入下一工序，5 件报废
	b, ev, err := sm.Transition(ctx, TransitionRequest{
		EventID: "ev-1", BatchID: "BT-1001", ToStageID: "st-2",
		QtyGood: 95, QtyRejected: 5, OperatorID: "op-9", MachineID: "M-01", Shift: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, "st-1", ev.FromStageID)
	assert.Equal(t, "st-2", b.CurrentStageID)
	assert.Equal(t, domain.BatchInProgress, b.Status)
	assert.Equal(t, 5, b.QtyRejected)
	assert.Equal(t, 0, b.QtyCompleted)
	assert.Equal(t, 95, b.InProcess())

	// 通过终序：全部良品计入完工，批次关闭
	b, _, err = sm.Transition(ctx, TransitionRequest{
		EventID: "ev-2", BatchID: "BT-1001", ToStageID: "st-3", QtyGood: 95,
	})
	require.NoError(t, err)
	assert.Equal(t, 95, b.QtyCompleted)
	assert.Equal(t, 0, b.InProcess())
	assert.Equal(t, domain.BatchCompleted, b.Status)
	require.NotNil(t, b.CompletedAt)

	// 冻结后拒绝一切流转
	_, _, err = sm.Transition(ctx, TransitionRequest{
		EventID: "ev-3", BatchID: "BT-1001", ToStageID: "st-2", QtyGood: 1,
	})
	assert.Equal(t, domain.ConflictBatchClosed, conflictKind(t, err))
}

func TestTransitionPartialWithRejects(t *testing.T) {
	sm, _, _ := newTestStateMachine(t)
	ctx := context.Background()

	_, err := sm.Release(ctx, ReleaseRequest{
		BatchID: "BT-1002", WorkOrderRef: "WO-78", RoutingID: "rt-1", Qty: 100,
	})
	require.NoError(t, err)

	// 100 投产，90 良品 + 5 报废流转：在制 = 100 − 0 − 5 = 95
	b, _, err := sm.Transition(ctx, TransitionRequest{
		EventID: "ev-1", BatchID: "BT-1002", ToStageID: "st-2",
		QtyGood: 90, QtyRejected: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "st-2", b.CurrentStageID)
	assert.Equal(t, 5, b.QtyRejected)
	assert.Equal(t, 0, b.QtyCompleted)
	assert.Equal(t, 95, b.InProcess())
}

func TestTransitionFailedWriteLeavesNoTrace(t *testing.T) {
	batches := repository.NewMemoryBatchesRepo()
	routings := repository.NewMemoryRoutingsRepo()
	transitions := repository.NewMemoryTransitionsRepo()
	writer := &flakyWriter{
		inner: repository.NewMemoryBatchWriter(transitions, repository.NewMemoryCostsRepo(), batches),
		fails: 1,
	}
	ctx := context.Background()
	require.NoError(t, routings.CreateRouting(ctx, testRouting()))
	sm := NewStateMachine(batches, routings, writer, zap.NewNop())

	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	_, err := sm.Release(ctx, ReleaseRequest{
		BatchID: "BT-7", WorkOrderRef: "WO-3", RoutingID: "rt-1", Qty: 100, At: started,
	})
	require.NoError(t, err)

	req := TransitionRequest{
		EventID: "ev-1", BatchID: "BT-7", ToStageID: "st-2", QtyGood: 95, QtyRejected: 5,
	}

	// 写入失败：事件日志与快照都不落库，批次停留在原工序
	_, _, err = sm.Transition(ctx, req)
	require.Error(t, err)
	assert.True(t, domain.IsDurability(err))

	events, err := transitions.ListByBatch(ctx, "BT-7")
	require.NoError(t, err)
	assert.Empty(t, events)

	b, err := batches.Get(ctx, "BT-7")
	require.NoError(t, err)
	assert.Equal(t, "st-1", b.CurrentStageID)
	assert.Equal(t, 100, b.InProcess())

	// 同一事件重试收敛，重放结果与快照一致
	_, _, err = sm.Transition(ctx, req)
	require.NoError(t, err)

	events, err = transitions.ListByBatch(ctx, "BT-7")
	require.NoError(t, err)
	require.Len(t, events, 1)

	b, err = batches.Get(ctx, "BT-7")
	require.NoError(t, err)
	replayed := Replay(testRouting(), "BT-7", "WO-3", 100, started, events)
	assert.Equal(t, b.CurrentStageID, replayed.CurrentStageID)
	assert.Equal(t, b.QtyRejected, replayed.QtyRejected)
	assert.Equal(t, b.InProcess(), replayed.InProcess())
}

func TestTransitionStageSkip(t *testing.T) {
	sm, _, _ := newTestStateMachine(t)
	ctx := context.Background()

	_, err := sm.Release(ctx, ReleaseRequest{
		BatchID: "BT-2", WorkOrderRef: "WO-1", RoutingID: "rt-1", Qty: 10,
	})
	require.NoError(t, err)

	// st-1 → st-3 跳序
	_, _, err = sm.Transition(ctx, TransitionRequest{
		EventID: "ev-1", BatchID: "BT-2", ToStageID: "st-3", QtyGood: 10,
	})
	assert.Equal(t, domain.ConflictStageSequence, conflictKind(t, err))
}

func TestTransitionQuantityExceeded(t *testing.T) {
	sm, _, _ := newTestStateMachine(t)
	ctx := context.Background()

	_, err := sm.Release(ctx, ReleaseRequest{
		BatchID: "BT-3", WorkOrderRef: "WO-1", RoutingID: "rt-1", Qty: 10,
	})
	require.NoError(t, err)

	_, _, err = sm.Transition(ctx, TransitionRequest{
		EventID: "ev-1", BatchID: "BT-3", ToStageID: "st-2", QtyGood: 11,
	})
	assert.Equal(t, domain.ConflictQuantityExceeded, conflictKind(t, err))

	_, _, err = sm.Transition(ctx, TransitionRequest{
		EventID: "ev-2", BatchID: "BT-3", ToStageID: "st-2", QtyGood: -1,
	})
	assert.True(t, domain.IsValidation(err))
}

func TestTransitionRework(t *testing.T) {
	sm, _, _ := newTestStateMachine(t)
	ctx := context.Background()

	_, err := sm.Release(ctx, ReleaseRequest{
		BatchID: "BT-4", WorkOrderRef: "WO-1", RoutingID: "rt-1", Qty: 100,
	})
	require.NoError(t, err)

	_, _, err = sm.Transition(ctx, TransitionRequest{
		EventID: "ev-1", BatchID: "BT-4", ToStageID: "st-2", QtyGood: 100,
	})
	require.NoError(t, err)

	// 部分通过终检
	b, _, err := sm.Transition(ctx, TransitionRequest{
		EventID: "ev-2", BatchID: "BT-4", ToStageID: "st-3", QtyGood: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, 60, b.QtyCompleted)
	assert.Equal(t, 40, b.InProcess())
	assert.Equal(t, domain.BatchInProgress, b.Status)

	// 终检不合格品返工回 welding（声明的返工前置工序）
	b, _, err = sm.Transition(ctx, TransitionRequest{
		EventID: "ev-3", BatchID: "BT-4", ToStageID: "st-2", QtyGood: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, "st-2", b.CurrentStageID)
	assert.Equal(t, 40, b.InProcess())

	// 未声明的回退仍然非法：st-2 → st-1
	_, _, err = sm.Transition(ctx, TransitionRequest{
		EventID: "ev-4", BatchID: "BT-4", ToStageID: "st-1", QtyGood: 40,
	})
	assert.Equal(t, domain.ConflictStageSequence, conflictKind(t, err))
}

func TestCancel(t *testing.T) {
	sm, _, _ := newTestStateMachine(t)
	ctx := context.Background()

	_, err := sm.Release(ctx, ReleaseRequest{
		BatchID: "BT-5", WorkOrderRef: "WO-1", RoutingID: "rt-1", Qty: 10,
	})
	require.NoError(t, err)

	b, err := sm.Cancel(ctx, "BT-5", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCancelled, b.Status)

	_, err = sm.Cancel(ctx, "BT-5", time.Now().UTC())
	assert.Equal(t, domain.ConflictBatchClosed, conflictKind(t, err))
}

func TestReplayMatchesIncremental(t *testing.T) {
	sm, batches, transitions := newTestStateMachine(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	_, err := sm.Release(ctx, ReleaseRequest{
		BatchID: "BT-6", WorkOrderRef: "WO-9", RoutingID: "rt-1", Qty: 100, At: started,
	})
	require.NoError(t, err)

	steps := []TransitionRequest{
		{EventID: "ev-1", BatchID: "BT-6", ToStageID: "st-2", QtyGood: 95, QtyRejected: 5},
		{EventID: "ev-2", BatchID: "BT-6", ToStageID: "st-3", QtyGood: 60},
		{EventID: "ev-3", BatchID: "BT-6", ToStageID: "st-2", QtyGood: 35},
		{EventID: "ev-4", BatchID: "BT-6", ToStageID: "st-3", QtyGood: 30, QtyRejected: 5},
	}
	for _, req := range steps {
		_, _, err := sm.Transition(ctx, req)
		require.NoError(t, err)
	}

	incremental, err := batches.Get(ctx, "BT-6")
	require.NoError(t, err)

	events, err := transitions.ListByBatch(ctx, "BT-6")
	require.NoError(t, err)
	require.Len(t, events, len(steps))

	replayed := Replay(testRouting(), "BT-6", "WO-9", 100, started, events)
	assert.Equal(t, incremental.CurrentStageID, replayed.CurrentStageID)
	assert.Equal(t, incremental.QtyCompleted, replayed.QtyCompleted)
	assert.Equal(t, incremental.QtyRejected, replayed.QtyRejected)
	assert.Equal(t, incremental.InProcess(), replayed.InProcess())
	assert.Equal(t, incremental.Status, replayed.Status)
}
