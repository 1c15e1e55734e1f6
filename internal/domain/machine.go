package domain

import "time"

// MachineStatus 机台运行状态
const (
	MachineIdle        = "idle"
	MachineRunning     = "running"
	MachineMaintenance = "maintenance"
	MachineBreakdown   = "breakdown"
)

// Machine 机台领域模型（对应 machines 表）
type Machine struct {
	MachineID string `db:"machine_id"` // VARCHAR(64), PRIMARY KEY（如 "M-01"）
	Code      string `db:"code"`       // VARCHAR(50), NOT NULL, UNIQUE
	Name      string `db:"name"`       // VARCHAR(128)

	// 运行状态（由 runtime/downtime 事件驱动）
	Status string `db:"status"` // VARCHAR(20), CHECK IN ('idle','running','maintenance','breakdown')

	// OEE 计算参数
	IdealCycleTimeHours float64 `db:"ideal_cycle_time_hours"` // 单件理想节拍（小时/件），操作员配置
	ScheduledHoursPerDay float64 `db:"scheduled_hours_per_day"` // 班次日历：每日计划可用小时数

	UpdatedAt time.Time `db:"updated_at"` // TIMESTAMPTZ, NOT NULL
}

// ValidMachineStatus 校验机台状态值
func ValidMachineStatus(s string) bool {
	switch s {
	case MachineIdle, MachineRunning, MachineMaintenance, MachineBreakdown:
		return true
	}
	return false
}
