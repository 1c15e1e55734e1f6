package costing

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
	return &domain.Routing{
		RoutingID: "rt-1",
		Name:      "gear assembly",
		Stages: []domain.ProductionStage{
			{StageID: "st-1", RoutingID: "rt-1", Name: "cutting", Seq: 1},
			{StageID: "st-2", RoutingID: "rt-1", Name: "welding", Seq: 2},
			{StageID: "st-3", RoutingID: "rt-1", Name: "qa", Seq: 3},
		},
	}
}

func newTestAccumulator(t *testing.T, policy Policy) (*Accumulator, *repository.MemoryBatchesRepo, *repository.MemoryCostsRepo) {
	t.Helper()
	ctx := context.Background()
	costs := repository.NewMemoryCostsRepo()
	batches := repository.NewMemoryBatchesRepo()
	routings := repository.NewMemoryRoutingsRepo()
	require.NoError(t, routings.CreateRouting(ctx, testRouting()))
	require.NoError(t, batches.Create(ctx, &domain.WIPBatch{
		BatchID:        "BT-1",
		WorkOrderRef:   "WO-1",
		RoutingID:      "rt-1",
		CurrentStageID: "st-2",
		QtyStarted:     100,
		Status:         domain.BatchInProgress,
		StartedAt:      time.Now().UTC(),
	}))
	writer := repository.NewMemoryBatchWriter(repository.NewMemoryTransitionsRepo(), costs, batches)
	return NewAccumulator(costs, batches, routings, writer, policy, zap.NewNop()), batches, costs
}

// flakyCostWriter 前 N 次写入失败，之后交给真实写入器
type flakyCostWriter struct {
	inner repository.CostWriter
	fails int
}

func (w *flakyCostWriter) ApplyCost(ctx context.Context, e domain.CostEntry) error {
	if w.fails > 0 {
		w.fails--
		return &domain.DurabilityError{Op: "apply cost", Err: errors.New("connection reset")}
	}
	return w.inner.ApplyCost(ctx, e)
}

func TestRecordCostFailedWriteLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	costs := repository.NewMemoryCostsRepo()
	batches := repository.NewMemoryBatchesRepo()
	routings := repository.NewMemoryRoutingsRepo()
	require.NoError(t, routings.CreateRouting(ctx, testRouting()))
	require.NoError(t, batches.Create(ctx, &domain.WIPBatch{
		BatchID: "BT-1", WorkOrderRef: "WO-1", RoutingID: "rt-1",
		CurrentStageID: "st-2", QtyStarted: 100,
		Status: domain.BatchInProgress, StartedAt: time.Now().UTC(),
	}))
	writer := &flakyCostWriter{
		inner: repository.NewMemoryBatchWriter(repository.NewMemoryTransitionsRepo(), costs, batches),
		fails: 1,
	}
	acc := NewAccumulator(costs, batches, routings, writer, Policy{}, zap.NewNop())

	req := RecordCostRequest{
		EntryID: "c-1", BatchID: "BT-1", StageID: "st-1",
		CostType: domain.CostMaterial, Amount: 120,
	}

	// 写入失败：分录日志与汇总都不变
	_, err := acc.RecordCost(ctx, req)
	require.Error(t, err)
	assert.True(t, domain.IsDurability(err))

	entries, err := costs.ListByBatch(ctx, "BT-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	totals, err := acc.TotalWIPValue(ctx, "BT-1")
	require.NoError(t, err)
	assert.Zero(t, totals.Total)

	// 重试收敛，重放汇总与运行汇总一致
	_, err = acc.RecordCost(ctx, req)
	require.NoError(t, err)
	totals, err = acc.TotalWIPValue(ctx, "BT-1")
	require.NoError(t, err)
	assert.InDelta(t, 120, totals.Material, 1e-9)
	replayed, err := acc.ReplayTotals(ctx, "BT-1")
	require.NoError(t, err)
	assert.Equal(t, replayed, totals)
}

func TestRecordCostNegativeAmount(t *testing.T) {
	acc, _, _ := newTestAccumulator(t, Policy{})
	ctx := context.Background()

	_, err := acc.RecordCost(ctx, RecordCostRequest{
		BatchID: "BT-1", StageID: "st-1", CostType: domain.CostMaterial, Amount: -10,
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "InvalidCostAmount")

	// 拒绝后汇总完全不变
	totals, err := acc.TotalWIPValue(ctx, "BT-1")
	require.NoError(t, err)
	assert.Zero(t, totals.Total)
}

func TestRecordCostRunningTotalsMatchReplay(t *testing.T) {
	acc, _, _ := newTestAccumulator(t, Policy{})
	ctx := context.Background()

	_, err := acc.RecordCost(ctx, RecordCostRequest{
		BatchID: "BT-1", StageID: "st-1", CostType: domain.CostMaterial, Amount: 120.50, SourceRef: "PO-881",
	})
	require.NoError(t, err)
	_, err = acc.RecordCost(ctx, RecordCostRequest{
		BatchID: "BT-1", StageID: "st-2", CostType: domain.CostLabor, Amount: 80,
	})
	require.NoError(t, err)

	totals, err := acc.TotalWIPValue(ctx, "BT-1")
	require.NoError(t, err)
	assert.InDelta(t, 120.50, totals.Material, 1e-9)
	assert.InDelta(t, 80, totals.Labor, 1e-9)
	assert.InDelta(t, 200.50, totals.Total, 1e-9)

	replayed, err := acc.ReplayTotals(ctx, "BT-1")
	require.NoError(t, err)
	assert.Equal(t, replayed, totals)
}

func TestRecordCostUnvisitedStage(t *testing.T) {
	acc, _, _ := newTestAccumulator(t, Policy{})

	// 批次当前在 st-2，st-3 尚未到达
	_, err := acc.RecordCost(context.Background(), RecordCostRequest{
		BatchID: "BT-1", StageID: "st-3", CostType: domain.CostLabor, Amount: 10,
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestRecordCostClosedBatch(t *testing.T) {
	acc, batches, _ := newTestAccumulator(t, Policy{AllowRetroactive: false})
	ctx := context.Background()

	b, err := batches.Get(ctx, "BT-1")
	require.NoError(t, err)
	b.Status = domain.BatchCompleted
	require.NoError(t, batches.Update(ctx, b))

	_, err = acc.RecordCost(ctx, RecordCostRequest{
		BatchID: "BT-1", StageID: "st-1", CostType: domain.CostMaterial, Amount: 10,
	})
	require.Error(t, err)
	assert.True(t, domain.IsStateConflict(err))
}

func TestAllocateStageOverhead(t *testing.T) {
	acc, _, costs := newTestAccumulator(t, Policy{OverheadPercent: 0.15})
	ctx := context.Background()

	_, err := acc.RecordCost(ctx, RecordCostRequest{
		BatchID: "BT-1", StageID: "st-1", CostType: domain.CostMaterial, Amount: 100,
	})
	require.NoError(t, err)
	_, err = acc.RecordCost(ctx, RecordCostRequest{
		BatchID: "BT-1", StageID: "st-1", CostType: domain.CostLabor, Amount: 60,
	})
	require.NoError(t, err)

	require.NoError(t, acc.AllocateStageOverhead(ctx, "BT-1", "st-1", time.Now().UTC()))

	totals, err := acc.TotalWIPValue(ctx, "BT-1")
	require.NoError(t, err)
	assert.InDelta(t, 24, totals.Overhead, 1e-9) // (100 + 60) × 0.15

	entries, err := costs.ListByBatch(ctx, "BT-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	auto := entries[2]
	assert.True(t, auto.Auto)
	assert.Equal(t, domain.CostOverhead, auto.CostType)
	assert.Equal(t, "overhead-allocation", auto.SourceRef)

	replayed, err := acc.ReplayTotals(ctx, "BT-1")
	require.NoError(t, err)
	assert.Equal(t, replayed, totals)
}

func TestAllocateStageOverheadExplicitWins(t *testing.T) {
	acc, _, costs := newTestAccumulator(t, Policy{OverheadPercent: 0.15})
	ctx := context.Background()

	_, err := acc.RecordCost(ctx, RecordCostRequest{
		BatchID: "BT-1", StageID: "st-1", CostType: domain.CostMaterial, Amount: 100,
	})
	require.NoError(t, err)
	// 人工录入的间接费分录优先，自动分摊跳过
	_, err = acc.RecordCost(ctx, RecordCostRequest{
		BatchID: "BT-1", StageID: "st-1", CostType: domain.CostOverhead, Amount: 12,
	})
	require.NoError(t, err)

	require.NoError(t, acc.AllocateStageOverhead(ctx, "BT-1", "st-1", time.Now().UTC()))

	entries, err := costs.ListByBatch(ctx, "BT-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	totals, err := acc.TotalWIPValue(ctx, "BT-1")
	require.NoError(t, err)
	assert.InDelta(t, 12, totals.Overhead, 1e-9)
}
