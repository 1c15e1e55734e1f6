package bottleneck

import (
	"context"
	"sort"

	"shopfloor/internal/domain"
	"shopfloor/internal/repository"

	"go.uber.org/zap"
)

// Thresholds 瓶颈判定阈值（相对路线均值的倍数）。
// 相对阈值自归一：不同工序天然的在制水平差异不会产生误报。
type Thresholds struct {
	FlagMultiple float64 // 超过该倍数即标记瓶颈，默认 1.5
	HighMultiple float64 // 超过该倍数判为 high，默认 2.5
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{FlagMultiple: 1.5, HighMultiple: 2.5}
}

// StageLoad 单工序负荷
type StageLoad struct {
	StageID       string  `json:"stage_id"`
	StageName     string  `json:"stage_name"`
	Seq           int     `json:"seq"`
	BatchCount    int     `json:"batch_count"`
	TotalWIPValue float64 `json:"total_wip_value"`
	AvgInProcess  float64 `json:"avg_in_process"`
	Ratio         float64 `json:"ratio"` // 相对路线均值的倍数（取价值与数量的较大者）
	Severity      string  `json:"severity"`
	Bottleneck    bool    `json:"bottleneck"`
}

// Detector 瓶颈检测器（周期性或按需扫描所有在制工序）
type Detector struct {
	batches    repository.BatchesRepo
	routings   repository.RoutingsRepo
	thresholds Thresholds
	logger     *zap.Logger
}

// NewDetector 创建瓶颈检测器
func NewDetector(
	batches repository.BatchesRepo,
	routings repository.RoutingsRepo,
	thresholds Thresholds,
	logger *zap.Logger,
) *Detector {
	if thresholds.FlagMultiple <= 0 {
		thresholds.FlagMultiple = 1.5
	}
	if thresholds.HighMultiple <= thresholds.FlagMultiple {
		thresholds.HighMultiple = 2.5
	}
	return &Detector{
		batches:    batches,
		routings:   routings,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Scan 扫描一条路线的所有工序并按负荷倍数降序排列。
// 只读扫描，调用方可随时取消，不会留下部分变更。
func (d *Detector) Scan(ctx context.Context, routingID string) ([]StageLoad, error) {
	routing, err := d.routings.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}

	open, err := d.batches.ListOpenByRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}

	loads := make([]StageLoad, 0, len(routing.Stages))
	byStage := map[string]*StageLoad{}
	for _, s := range routing.Stages {
		loads = append(loads, StageLoad{StageID: s.StageID, StageName: s.Name, Seq: s.Seq})
	}
	for i := range loads {
		byStage[loads[i].StageID] = &loads[i]
	}

	for _, b := range open {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		load, ok := byStage[b.CurrentStageID]
		if !ok {
			continue
		}
		load.BatchCount++
		load.TotalWIPValue += b.TotalCost()
		load.AvgInProcess += float64(b.InProcess())
	}

	var meanValue, meanQty float64
	for i := range loads {
		if loads[i].BatchCount > 0 {
			loads[i].AvgInProcess /= float64(loads[i].BatchCount)
		}
		meanValue += loads[i].TotalWIPValue
		meanQty += loads[i].AvgInProcess
	}
	n := float64(len(loads))
	if n > 0 {
		meanValue /= n
		meanQty /= n
	}

	for i := range loads {
		loads[i].Ratio = loadRatio(&loads[i], meanValue, meanQty)
		switch {
		case loads[i].Ratio > d.thresholds.HighMultiple:
			loads[i].Severity = domain.SeverityHigh
		case loads[i].Ratio > d.thresholds.FlagMultiple:
			loads[i].Severity = domain.SeverityMedium
		default:
			loads[i].Severity = domain.SeverityLow
		}
		loads[i].Bottleneck = loads[i].Ratio > d.thresholds.FlagMultiple
	}

	sort.Slice(loads, func(i, j int) bool { return loads[i].Ratio > loads[j].Ratio })

	for _, l := range loads {
		if l.Bottleneck {
			d.logger.Info("Bottleneck stage flagged",
				zap.String("routing_id", routingID),
				zap.String("stage_id", l.StageID),
				zap.Float64("ratio", l.Ratio),
				zap.String("severity", l.Severity),
			)
		}
	}
	return loads, nil
}

// loadRatio 取 WIP 价值与平均在制数量相对均值倍数的较大者
func loadRatio(l *StageLoad, meanValue, meanQty float64) float64 {
	var ratio float64
	if meanValue > 0 {
		ratio = l.TotalWIPValue / meanValue
	}
	if meanQty > 0 {
		if r := l.AvgInProcess / meanQty; r > ratio {
			ratio = r
		}
	}
	return ratio
}
