package domain

import "time"

// OEEWindow 机台在 [Start, End) 窗口内的 OEE 派生聚合。
// 可缓存、非权威；始终可由机台事件日志按需重算，禁止手工修改。
type OEEWindow struct {
	MachineID string    `json:"machine_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`

	// 输入聚合
	TheoreticalHours float64 `json:"theoretical_hours"` // 班次日历给出的理论可用小时
	RuntimeHours     float64 `json:"runtime_hours"`     // 实际运行小时
	DowntimeMinutes  float64 `json:"downtime_minutes"`  // 停机分钟
	UnitsProduced    int     `json:"units_produced"`
	UnitsGood        int     `json:"units_good"`
	UnitsScrap       int     `json:"units_scrap"`

	// 三因子（未舍入，用于报警比较，避免舍入边界抖动）
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"` // availability × performance × quality，[0,1]

	// 展示用百分比（两位小数舍入）
	OEEPercent float64 `json:"oee_percent"`
}
