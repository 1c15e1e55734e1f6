package ingest

import (
	"time"

	"shopfloor/internal/domain"
)

// 事件类型（机台与操作员上报的全部生产事实）
const (
	EventBatchRelease    = "batch_release"
	EventStageTransition = "stage_transition"
	EventBatchCancel     = "batch_cancel"
	EventCost            = "cost"
	EventRuntime         = "runtime"
	EventDowntime        = "downtime"
	EventProduction      = "production"
)

// Event 摄入事件（MQTT / Redis Streams / HTTP 共用的线格式）
type Event struct {
	IdempotencyKey string `json:"idempotency_key"`
	EventType      string `json:"event_type"`

	// 批次类事件
	BatchID      string `json:"batch_id,omitempty"`
	WorkOrderRef string `json:"work_order_ref,omitempty"`
	RoutingID    string `json:"routing_id,omitempty"`
	ToStageID    string `json:"to_stage_id,omitempty"`
	Qty          int    `json:"qty,omitempty"`
	QtyGood      int    `json:"qty_good,omitempty"`
	QtyRejected  int    `json:"qty_rejected,omitempty"`

	// 成本类事件
	StageID   string  `json:"stage_id,omitempty"`
	CostType  string  `json:"cost_type,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	SourceRef string  `json:"source_ref,omitempty"`

	// 机台类事件
	MachineID     string  `json:"machine_id,omitempty"`
	MachineStatus string  `json:"machine_status,omitempty"` // 可选：事件携带的机台状态
	Minutes       float64 `json:"minutes,omitempty"`
	UnitsProduced int     `json:"units_produced,omitempty"`
	UnitsGood     int     `json:"units_good,omitempty"`
	UnitsScrap    int     `json:"units_scrap,omitempty"`

	OperatorID string    `json:"operator_id,omitempty"`
	Shift      string    `json:"shift,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// Validate 同步校验；malformed 输入直接拒绝，永不部分应用
func (e *Event) Validate() error {
	if e.IdempotencyKey == "" {
		return domain.NewValidationError("idempotency_key", "required")
	}
	switch e.EventType {
	case EventBatchRelease:
		if e.BatchID == "" || e.RoutingID == "" {
			return domain.NewValidationError("batch_release", "batch_id and routing_id are required")
		}
		if e.Qty <= 0 {
			return domain.NewValidationError("qty", "must be > 0")
		}
	case EventStageTransition:
		if e.BatchID == "" || e.ToStageID == "" {
			return domain.NewValidationError("stage_transition", "batch_id and to_stage_id are required")
		}
		if e.QtyGood < 0 || e.QtyRejected < 0 {
			return domain.NewValidationError("quantity", "must be >= 0")
		}
	case EventBatchCancel:
		if e.BatchID == "" {
			return domain.NewValidationError("batch_cancel", "batch_id is required")
		}
	case EventCost:
		if e.BatchID == "" || e.StageID == "" {
			return domain.NewValidationError("cost", "batch_id and stage_id are required")
		}
	case EventRuntime, EventDowntime:
		if e.MachineID == "" {
			return domain.NewValidationError("machine_id", "required")
		}
		if e.Minutes <= 0 {
			return domain.NewValidationError("minutes", "must be > 0")
		}
	case EventProduction:
		if e.MachineID == "" {
			return domain.NewValidationError("machine_id", "required")
		}
		if e.UnitsProduced < 0 || e.UnitsGood < 0 || e.UnitsScrap < 0 {
			return domain.NewValidationError("units", "must be >= 0")
		}
	default:
		return domain.NewValidationError("event_type", "unknown event type "+e.EventType)
	}
	if e.MachineStatus != "" && !domain.ValidMachineStatus(e.MachineStatus) {
		return domain.NewValidationError("machine_status", "unknown status "+e.MachineStatus)
	}
	return nil
}

// Result 摄入结果。重复事件是幂等的成功（带标记），不是错误。
type Result struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
	Reason    string `json:"reason,omitempty"`
}
