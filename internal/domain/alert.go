package domain

import "time"

// AlertStatus 报警状态
const (
	AlertActive       = "active"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
)

// AlertSeverity 报警级别
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert 报警领域模型（对应 alerts 表）
// 由阈值评估器在首次观察到越限时创建；状态由操作员动作流转；
// 永不删除（resolved 报警保留审计）。
type Alert struct {
	AlertID   string `db:"alert_id"`   // VARCHAR(64), PRIMARY KEY (UUID)
	MachineID string `db:"machine_id"` // VARCHAR(64), NOT NULL
	StageID   string `db:"stage_id"`   // VARCHAR(64)（瓶颈类报警填工序）

	AlertType string  `db:"alert_type"` // VARCHAR(50), NOT NULL（如 "oee_low", "downtime_high"）
	Severity  string  `db:"severity"`   // VARCHAR(20), CHECK IN ('low','medium','high','critical')
	Threshold float64 `db:"threshold"`  // 配置阈值
	Observed  float64 `db:"observed"`   // 触发时观测值

	Status string `db:"status"` // VARCHAR(20), CHECK IN ('active','acknowledged','resolved')

	// 审计字段
	AcknowledgedBy *string    `db:"acknowledged_by"` // VARCHAR(64), nullable
	AcknowledgedAt *time.Time `db:"acknowledged_at"` // TIMESTAMPTZ, nullable
	ResolvedBy     *string    `db:"resolved_by"`     // VARCHAR(64), nullable
	ResolvedAt     *time.Time `db:"resolved_at"`     // TIMESTAMPTZ, nullable

	TriggeredAt time.Time `db:"triggered_at"` // TIMESTAMPTZ, NOT NULL
	UpdatedAt   time.Time `db:"updated_at"`   // TIMESTAMPTZ, NOT NULL
}

// Open 报警是否仍处于未关闭状态（active 或 acknowledged）
func (a *Alert) Open() bool {
	return a.Status == AlertActive || a.Status == AlertAcknowledged
}
