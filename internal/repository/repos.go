package repository

import (
	"context"
	"time"

	"shopfloor/internal/domain"
)

// MachinesRepo 机台仓库
type MachinesRepo interface {
	Get(ctx context.Context, machineID string) (*domain.Machine, error)
	List(ctx context.Context) ([]domain.Machine, error)
	Create(ctx context.Context, m *domain.Machine) error
	UpdateStatus(ctx context.Context, machineID, status string, at time.Time) error
}

// RoutingsRepo 工艺路线仓库（路线一旦被批次引用即只读）
type RoutingsRepo interface {
	GetRouting(ctx context.Context, routingID string) (*domain.Routing, error)
	ListRoutings(ctx context.Context) ([]domain.Routing, error)
	CreateRouting(ctx context.Context, r *domain.Routing) error
}

// BatchesRepo 在制批次仓库
type BatchesRepo interface {
	Get(ctx context.Context, batchID string) (*domain.WIPBatch, error)
	Create(ctx context.Context, b *domain.WIPBatch) error
	Update(ctx context.Context, b *domain.WIPBatch) error
	// AddCost 原子累加批次成本汇总（与数量写入方互不覆盖）
	AddCost(ctx context.Context, batchID, costType string, amount float64) error
	ListOpenByRouting(ctx context.Context, routingID string) ([]domain.WIPBatch, error)
}

// TransitionsRepo 工序流转事件日志（追加写入）
type TransitionsRepo interface {
	Append(ctx context.Context, ev domain.StageTransitionEvent) error
	ListByBatch(ctx context.Context, batchID string) ([]domain.StageTransitionEvent, error)
}

// CostsRepo 成本分录日志（追加写入）
type CostsRepo interface {
	Append(ctx context.Context, e domain.CostEntry) error
	ListByBatch(ctx context.Context, batchID string) ([]domain.CostEntry, error)
	// HasExplicitOverhead 判断 (batch, stage) 是否已有人工录入的间接费分录
	HasExplicitOverhead(ctx context.Context, batchID, stageID string) (bool, error)
}

// TransitionWriter 在同一个持久化边界内追加流转事件并写入批次快照，
// 两者要么一起生效，要么都不生效，日志重放与快照不会分叉
type TransitionWriter interface {
	ApplyTransition(ctx context.Context, ev domain.StageTransitionEvent, b *domain.WIPBatch) error
}

// CostWriter 在同一个持久化边界内追加成本分录并累加批次汇总
type CostWriter interface {
	ApplyCost(ctx context.Context, e domain.CostEntry) error
}

// MachineEventsRepo 机台事件日志（追加写入）
type MachineEventsRepo interface {
	Append(ctx context.Context, ev domain.MachineEvent) error
	// ListByWindow 返回 [start, end) 内的事件，按时间升序
	ListByWindow(ctx context.Context, machineID string, start, end time.Time) ([]domain.MachineEvent, error)
}

// AlertFilters 报警查询过滤条件
type AlertFilters struct {
	Status    string // active / acknowledged / resolved，空为全部
	MachineID string
	Limit     int
}

// AlertsRepo 报警仓库（永不删除）
type AlertsRepo interface {
	Create(ctx context.Context, a *domain.Alert) error
	Get(ctx context.Context, alertID string) (*domain.Alert, error)
	Update(ctx context.Context, a *domain.Alert) error
	List(ctx context.Context, f AlertFilters) ([]domain.Alert, error)
	// FindOpen 返回 (machine, alert_type) 下处于 active/acknowledged 的报警，无则返回 nil
	FindOpen(ctx context.Context, machineID, alertType string) (*domain.Alert, error)
}
