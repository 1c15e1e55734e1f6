package domain

import "time"

// BatchStatus 批次状态
const (
	BatchOpen       = "open"
	BatchInProgress = "in_progress"
	BatchCompleted  = "completed"
	BatchCancelled  = "cancelled"
)

// WIPBatch 在制批次领域模型（对应 wip_batches 表）
// 批次由工单下达创建，只能通过工序流转事件变更；
// completed/cancelled 后冻结，不再接受任何变更。
type WIPBatch struct {
	BatchID      string `db:"batch_id"`       // VARCHAR(64), PRIMARY KEY（如 "BT-1001"）
	WorkOrderRef string `db:"work_order_ref"` // VARCHAR(64), NOT NULL
	RoutingID    string `db:"routing_id"`     // VARCHAR(64), NOT NULL, REFERENCES routings

	// 当前工序
	CurrentStageID string `db:"current_stage_id"` // VARCHAR(64), NOT NULL, REFERENCES production_stages

	// 数量（in_process 为派生值：started - completed - rejected，恒 >= 0）
	QtyStarted   int `db:"qty_started"`   // INT, NOT NULL
	QtyCompleted int `db:"qty_completed"` // INT, DEFAULT 0（通过终序的良品数）
	QtyRejected  int `db:"qty_rejected"`  // INT, DEFAULT 0（累计报废数）

	// 批次状态
	Status string `db:"status"` // VARCHAR(20), CHECK IN ('open','in_progress','completed','cancelled')

	// 累计成本（由 cost_entries 日志派生的运行汇总）
	CostMaterial float64 `db:"cost_material"` // NUMERIC(14,4), DEFAULT 0
	CostLabor    float64 `db:"cost_labor"`    // NUMERIC(14,4), DEFAULT 0
	CostOverhead float64 `db:"cost_overhead"` // NUMERIC(14,4), DEFAULT 0

	// 时间戳
	StartedAt   time.Time  `db:"started_at"`   // TIMESTAMPTZ, NOT NULL
	CompletedAt *time.Time `db:"completed_at"` // TIMESTAMPTZ, nullable
}

// InProcess 在制数量 = started - completed - rejected
func (b *WIPBatch) InProcess() int {
	return b.QtyStarted - b.QtyCompleted - b.QtyRejected
}

// TotalCost 累计成本合计
func (b *WIPBatch) TotalCost() float64 {
	return b.CostMaterial + b.CostLabor + b.CostOverhead
}

// Closed 批次是否已冻结（completed 或 cancelled）
func (b *WIPBatch) Closed() bool {
	return b.Status == BatchCompleted || b.Status == BatchCancelled
}
