package bottleneck

import (
	"context"
	"testing"
	"time"

	"shopfloor/internal/domain"
	"shopfloor/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDetector(t *testing.T) (*Detector, *repository.MemoryBatchesRepo) {
	t.Helper()
	batches := repository.NewMemoryBatchesRepo()
	routings := repository.NewMemoryRoutingsRepo()
	require.NoError(t, routings.CreateRouting(context.Background(), &domain.Routing{
		RoutingID: "rt-1",
		Name:      "gear assembly",
		Stages: []domain.ProductionStage{
			{StageID: "st-1", RoutingID: "rt-1", Name: "cutting", Seq: 1},
			{StageID: "st-2", RoutingID: "rt-1", Name: "welding", Seq: 2},
			{StageID: "st-3", RoutingID: "rt-1", Name: "qa", Seq: 3},
		},
	}))
	return NewDetector(batches, routings, DefaultThresholds(), zap.NewNop()), batches
}

func addBatch(t *testing.T, batches *repository.MemoryBatchesRepo, id, stageID string, material float64, qty int) {
	t.Helper()
	require.NoError(t, batches.Create(context.Background(), &domain.WIPBatch{
		BatchID:        id,
		WorkOrderRef:   "WO-" + id,
		RoutingID:      "rt-1",
		CurrentStageID: stageID,
		QtyStarted:     qty,
		Status:         domain.BatchInProgress,
		CostMaterial:   material,
		StartedAt:      time.Now().UTC(),
	}))
}

func TestScanFlagsOverloadedStage(t *testing.T) {
	detector, batches := newTestDetector(t)
	ctx := context.Background()

	// welding 工序积压的 WIP 价值远超路线均值
	addBatch(t, batches, "BT-1", "st-1", 100, 10)
	addBatch(t, batches, "BT-2", "st-2", 700, 10)
	addBatch(t, batches, "BT-3", "st-2", 500, 10)
	addBatch(t, batches, "BT-4", "st-3", 100, 10)

	loads, err := detector.Scan(ctx, "rt-1")
	require.NoError(t, err)
	require.Len(t, loads, 3)

	// 负荷倍数降序，welding 居首
	top := loads[0]
	assert.Equal(t, "st-2", top.StageID)
	assert.Equal(t, 2, top.BatchCount)
	assert.InDelta(t, 1200, top.TotalWIPValue, 1e-9)
	// 1200 / ((100+1200+100)/3) ≈ 2.57
	assert.Greater(t, top.Ratio, 2.5)
	assert.True(t, top.Bottleneck)
	assert.Equal(t, domain.SeverityHigh, top.Severity)

	for _, l := range loads[1:] {
		assert.False(t, l.Bottleneck)
		assert.Equal(t, domain.SeverityLow, l.Severity)
	}
}

func TestScanBalancedLoad(t *testing.T) {
	detector, batches := newTestDetector(t)
	ctx := context.Background()

	// 各工序负荷均衡：相对阈值自归一，不产生误报
	addBatch(t, batches, "BT-1", "st-1", 200, 10)
	addBatch(t, batches, "BT-2", "st-2", 210, 10)
	addBatch(t, batches, "BT-3", "st-3", 190, 10)

	loads, err := detector.Scan(ctx, "rt-1")
	require.NoError(t, err)
	for _, l := range loads {
		assert.False(t, l.Bottleneck)
	}
}

func TestScanNoOpenBatches(t *testing.T) {
	detector, _ := newTestDetector(t)

	loads, err := detector.Scan(context.Background(), "rt-1")
	require.NoError(t, err)
	require.Len(t, loads, 3)
	for _, l := range loads {
		assert.Zero(t, l.Ratio)
		assert.False(t, l.Bottleneck)
	}
}

func TestScanUnknownRouting(t *testing.T) {
	detector, _ := newTestDetector(t)

	_, err := detector.Scan(context.Background(), "rt-404")
	assert.True(t, domain.IsNotFound(err))
}
