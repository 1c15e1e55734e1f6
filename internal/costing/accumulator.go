package costing

import (
	"context"
	"time"

	"shopfloor/internal/domain"
	"shopfloor/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Policy 成本记账策略
type Policy struct {
	// OverheadPercent 工序完成时按 (material + labor) 自动分摊的间接费比例（如 0.15）
	OverheadPercent float64
	// AllowRetroactive 是否允许向已冻结批次的历史工序补记成本（默认 true）
	AllowRetroactive bool
}

// Totals 批次成本汇总
type Totals struct {
	Material float64 `json:"material"`
	Labor    float64 `json:"labor"`
	Overhead float64 `json:"overhead"`
	Total    float64 `json:"total"`
}

// Accumulator 作业成本累计器。
// 消费 CostEntry 事实并维护批次级运行汇总；
// 运行汇总必须始终等于对分录日志的完整重放。
type Accumulator struct {
	costs    repository.CostsRepo
	batches  repository.BatchesRepo
	routings repository.RoutingsRepo
	writer   repository.CostWriter
	policy   Policy
	logger   *zap.Logger
}

// NewAccumulator 创建成本累计器
func NewAccumulator(
	costs repository.CostsRepo,
	batches repository.BatchesRepo,
	routings repository.RoutingsRepo,
	writer repository.CostWriter,
	policy Policy,
	logger *zap.Logger,
) *Accumulator {
	return &Accumulator{
		costs:    costs,
		batches:  batches,
		routings: routings,
		writer:   writer,
		policy:   policy,
		logger:   logger,
	}
}

// RecordCostRequest 成本分录请求
type RecordCostRequest struct {
	EntryID   string // 调用方幂等ID，空则生成
	BatchID   string
	StageID   string
	CostType  string
	Amount    float64
	SourceRef string
	At        time.Time
}

// RecordCost 追加一条成本分录并累加批次汇总。
// 负金额同步拒绝，永不部分应用。
func (a *Accumulator) RecordCost(ctx context.Context, req RecordCostRequest) (*domain.CostEntry, error) {
	if req.Amount < 0 {
		return nil, domain.NewValidationError("amount", "InvalidCostAmount: must be >= 0")
	}
	if !domain.ValidCostType(req.CostType) {
		return nil, domain.NewValidationError("cost_type", "must be material, labor or overhead")
	}

	b, err := a.batches.Get(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if b.Closed() && !a.policy.AllowRetroactive {
		return nil, domain.NewStateConflict(domain.ConflictBatchClosed,
			"retroactive cost posting to batch %s is disabled", b.BatchID)
	}

	// 只允许记到批次已到达过的工序
	visited, err := a.stageVisited(ctx, b, req.StageID)
	if err != nil {
		return nil, err
	}
	if !visited {
		return nil, domain.NewValidationError("stage_id",
			"batch has not visited stage "+req.StageID)
	}

	entryID := req.EntryID
	if entryID == "" {
		entryID = uuid.New().String()
	}
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	entry := domain.CostEntry{
		EntryID:   entryID,
		BatchID:   req.BatchID,
		StageID:   req.StageID,
		CostType:  req.CostType,
		Amount:    req.Amount,
		SourceRef: req.SourceRef,
		Timestamp: at,
	}
	// 分录追加与汇总累加在同一持久化边界内生效
	if err := a.writer.ApplyCost(ctx, entry); err != nil {
		return nil, err
	}

	a.logger.Debug("Cost entry recorded",
		zap.String("batch_id", entry.BatchID),
		zap.String("stage_id", entry.StageID),
		zap.String("cost_type", entry.CostType),
		zap.Float64("amount", entry.Amount),
	)
	return &entry, nil
}

// stageVisited 判断批次是否到达过指定工序（序号不大于当前工序）
func (a *Accumulator) stageVisited(ctx context.Context, b *domain.WIPBatch, stageID string) (bool, error) {
	routing, err := a.routings.GetRouting(ctx, b.RoutingID)
	if err != nil {
		return false, err
	}
	stage, ok := routing.StageByID(stageID)
	if !ok {
		return false, domain.NewNotFound("stage", stageID)
	}
	current, ok := routing.StageByID(b.CurrentStageID)
	if !ok {
		return false, domain.NewNotFound("stage", b.CurrentStageID)
	}
	return stage.Seq <= current.Seq, nil
}

// AllocateStageOverhead 工序完成时自动分摊间接费。
// 若该 (batch, stage) 已有人工录入的间接费分录，则跳过自动分摊（人工分录优先）。
func (a *Accumulator) AllocateStageOverhead(ctx context.Context, batchID, stageID string, at time.Time) error {
	if a.policy.OverheadPercent <= 0 {
		return nil
	}

	explicit, err := a.costs.HasExplicitOverhead(ctx, batchID, stageID)
	if err != nil {
		return err
	}
	if explicit {
		a.logger.Debug("Explicit overhead present, skipping auto allocation",
			zap.String("batch_id", batchID),
			zap.String("stage_id", stageID),
		)
		return nil
	}

	entries, err := a.costs.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	var base float64
	for _, e := range entries {
		if e.StageID != stageID {
			continue
		}
		if e.CostType == domain.CostMaterial || e.CostType == domain.CostLabor {
			base += e.Amount
		}
	}
	if base == 0 {
		return nil
	}

	amount := base * a.policy.OverheadPercent
	if at.IsZero() {
		at = time.Now().UTC()
	}
	entry := domain.CostEntry{
		EntryID:   uuid.New().String(),
		BatchID:   batchID,
		StageID:   stageID,
		CostType:  domain.CostOverhead,
		Amount:    amount,
		SourceRef: "overhead-allocation",
		Auto:      true,
		Timestamp: at,
	}
	if err := a.writer.ApplyCost(ctx, entry); err != nil {
		return err
	}

	a.logger.Info("Overhead allocated",
		zap.String("batch_id", batchID),
		zap.String("stage_id", stageID),
		zap.Float64("amount", amount),
	)
	return nil
}

// TotalWIPValue 批次当前在制价值（运行汇总）
func (a *Accumulator) TotalWIPValue(ctx context.Context, batchID string) (Totals, error) {
	b, err := a.batches.Get(ctx, batchID)
	if err != nil {
		return Totals{}, err
	}
	return Totals{
		Material: b.CostMaterial,
		Labor:    b.CostLabor,
		Overhead: b.CostOverhead,
		Total:    b.TotalCost(),
	}, nil
}

// ReplayTotals 对分录日志完整重放得到的汇总（幂等重算校验用）
func (a *Accumulator) ReplayTotals(ctx context.Context, batchID string) (Totals, error) {
	entries, err := a.costs.ListByBatch(ctx, batchID)
	if err != nil {
		return Totals{}, err
	}
	var t Totals
	for _, e := range entries {
		switch e.CostType {
		case domain.CostMaterial:
			t.Material += e.Amount
		case domain.CostLabor:
			t.Labor += e.Amount
		case domain.CostOverhead:
			t.Overhead += e.Amount
		}
	}
	t.Total = t.Material + t.Labor + t.Overhead
	return t, nil
}
