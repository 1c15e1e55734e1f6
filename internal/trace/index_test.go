package trace

import (
	"context"
	"testing"
	"time"

	"shopfloor/internal/domain"
	"shopfloor/internal/repository"
	"shopfloor/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	index       *Index
	batches     *repository.MemoryBatchesRepo
	transitions *repository.MemoryTransitionsRepo
	costs       *repository.MemoryCostsRepo
}

func newFixture(t *testing.T, cacheTTL time.Duration) *fixture {
	t.Helper()
	batches := repository.NewMemoryBatchesRepo()
	transitions := repository.NewMemoryTransitionsRepo()
	costs := repository.NewMemoryCostsRepo()

	require.NoError(t, batches.Create(context.Background(), &domain.WIPBatch{
		BatchID: "BT-1", WorkOrderRef: "WO-1", RoutingID: "rt-1",
		CurrentStageID: "st-2", QtyStarted: 100,
		Status: domain.BatchInProgress, StartedAt: time.Now().UTC(),
	}))

	return &fixture{
		index:       NewIndex(batches, transitions, costs, store.NewMemoryKV(), cacheTTL, zap.NewNop()),
		batches:     batches,
		transitions: transitions,
		costs:       costs,
	}
}

func TestTraceMergesAndOrders(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, f.transitions.Append(ctx, domain.StageTransitionEvent{
		EventID: "ev-1", BatchID: "BT-1", FromStageID: "st-1", ToStageID: "st-2",
		QtyGood: 95, QtyRejected: 5, OperatorID: "op-1", MachineID: "M-01", Shift: "A",
		Timestamp: base,
	}))
	require.NoError(t, f.costs.Append(ctx, domain.CostEntry{
		EntryID: "c-1", BatchID: "BT-1", StageID: "st-1",
		CostType: domain.CostMaterial, Amount: 120, SourceRef: "PO-7",
		Timestamp: base.Add(30 * time.Minute),
	}))
	require.NoError(t, f.transitions.Append(ctx, domain.StageTransitionEvent{
		EventID: "ev-2", BatchID: "BT-1", FromStageID: "st-2", ToStageID: "st-3",
		QtyGood: 95, OperatorID: "op-2", MachineID: "M-02", Shift: "B",
		Timestamp: base.Add(time.Hour),
	}))

	res, err := f.index.Trace(ctx, "BT-1")
	require.NoError(t, err)
	require.Len(t, res.Records, 3)

	// 按时间升序合并两类记录
	assert.Equal(t, "transition", res.Records[0].Kind)
	assert.Equal(t, "cost", res.Records[1].Kind)
	assert.Equal(t, "transition", res.Records[2].Kind)
	assert.Equal(t, "ev-1", res.Records[0].Transition.EventID)
	assert.Equal(t, "c-1", res.Records[1].Cost.EntryID)

	// 班次汇总：两个 (shift, machine, operator) 组合
	require.Len(t, res.Shifts, 2)
	assert.Equal(t, "A", res.Shifts[0].Shift)
	assert.Equal(t, "M-01", res.Shifts[0].MachineID)
	assert.Equal(t, "B", res.Shifts[1].Shift)
}

func TestTraceUnknownBatch(t *testing.T) {
	f := newFixture(t, time.Minute)

	_, err := f.index.Trace(context.Background(), "BT-404")
	assert.True(t, domain.IsNotFound(err))
}

func TestTraceServesCachedResult(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, f.transitions.Append(ctx, domain.StageTransitionEvent{
		EventID: "ev-1", BatchID: "BT-1", FromStageID: "st-1", ToStageID: "st-2",
		QtyGood: 100, Timestamp: time.Now().UTC(),
	}))

	res, err := f.index.Trace(ctx, "BT-1")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	// TTL 内的第二次读取来自缓存，看不到日志的新条目
	require.NoError(t, f.costs.Append(ctx, domain.CostEntry{
		EntryID: "c-1", BatchID: "BT-1", StageID: "st-1",
		CostType: domain.CostLabor, Amount: 10, Timestamp: time.Now().UTC(),
	}))
	res, err = f.index.Trace(ctx, "BT-1")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}
