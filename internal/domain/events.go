package domain

import "time"

// StageTransitionEvent 工序流转事件（对应 stage_transition_events 表）
// 追加写入、永不更新；该日志是权威事实，追溯索引按其重放。
type StageTransitionEvent struct {
	EventID     string    `db:"event_id"`      // VARCHAR(64), PRIMARY KEY（调用方幂等键）
	BatchID     string    `db:"batch_id"`      // VARCHAR(64), NOT NULL
	FromStageID string    `db:"from_stage_id"` // VARCHAR(64), NOT NULL
	ToStageID   string    `db:"to_stage_id"`   // VARCHAR(64), NOT NULL
	QtyGood     int       `db:"qty_good"`      // INT, NOT NULL（流转良品数）
	QtyRejected int       `db:"qty_rejected"`  // INT, DEFAULT 0（本次报废数）
	OperatorID  string    `db:"operator_id"`   // VARCHAR(64)
	MachineID   string    `db:"machine_id"`    // VARCHAR(64)
	Shift       string    `db:"shift"`         // VARCHAR(20)（如 "A", "night"）
	Timestamp   time.Time `db:"ts"`            // TIMESTAMPTZ, NOT NULL
}

// CostType 成本类型
const (
	CostMaterial = "material"
	CostLabor    = "labor"
	CostOverhead = "overhead"
)

// CostEntry 成本分录（对应 cost_entries 表）
// 追加写入、永不更新；批次累计成本必须等于对该日志的完整重放。
type CostEntry struct {
	EntryID   string    `db:"entry_id"`   // VARCHAR(64), PRIMARY KEY
	BatchID   string    `db:"batch_id"`   // VARCHAR(64), NOT NULL
	StageID   string    `db:"stage_id"`   // VARCHAR(64), NOT NULL
	CostType  string    `db:"cost_type"`  // VARCHAR(20), CHECK IN ('material','labor','overhead')
	Amount    float64   `db:"amount"`     // NUMERIC(14,4), NOT NULL, CHECK (amount >= 0)
	SourceRef string    `db:"source_ref"` // VARCHAR(128)（如领料单号）
	Auto      bool      `db:"auto_generated"` // 是否为系统自动分摊的间接费分录
	Timestamp time.Time `db:"ts"`         // TIMESTAMPTZ, NOT NULL
}

// ValidCostType 校验成本类型值
func ValidCostType(t string) bool {
	switch t {
	case CostMaterial, CostLabor, CostOverhead:
		return true
	}
	return false
}

// MachineEventType 机台事件类型
const (
	MachineEventRuntime    = "runtime"    // 运行时长（分钟）
	MachineEventDowntime   = "downtime"   // 停机时长（分钟）
	MachineEventProduction = "production" // 产量计数
)

// MachineEvent 机台事件（对应 machine_events 表）
// runtime/downtime 记录 Minutes；production 记录产量计数。
type MachineEvent struct {
	EventID       string    `db:"event_id"`       // VARCHAR(64), PRIMARY KEY（调用方幂等键）
	MachineID     string    `db:"machine_id"`     // VARCHAR(64), NOT NULL
	EventType     string    `db:"event_type"`     // VARCHAR(20), CHECK IN ('runtime','downtime','production')
	Minutes       float64   `db:"minutes"`        // NUMERIC(10,2), DEFAULT 0
	UnitsProduced int       `db:"units_produced"` // INT, DEFAULT 0
	UnitsGood     int       `db:"units_good"`     // INT, DEFAULT 0
	UnitsScrap    int       `db:"units_scrap"`    // INT, DEFAULT 0
	Shift         string    `db:"shift"`          // VARCHAR(20)
	Timestamp     time.Time `db:"ts"`             // TIMESTAMPTZ, NOT NULL
}
