package oee

import (
	"context"
	"time"

	"shopfloor/internal/domain"
	"shopfloor/internal/repository"

	"go.uber.org/zap"
)

// WindowService 按需从机台事件日志重算 OEE 窗口。
// 读侧聚合只读事件日志快照，永不阻塞写入方。
type WindowService struct {
	machines repository.MachinesRepo
	events   repository.MachineEventsRepo
	logger   *zap.Logger
}

// NewWindowService 创建 OEE 窗口服务
func NewWindowService(
	machines repository.MachinesRepo,
	events repository.MachineEventsRepo,
	logger *zap.Logger,
) *WindowService {
	return &WindowService{
		machines: machines,
		events:   events,
		logger:   logger,
	}
}

// ComputeWindow 计算机台在 [start, end) 的 OEE 聚合
func (s *WindowService) ComputeWindow(ctx context.Context, machineID string, start, end time.Time) (*domain.OEEWindow, error) {
	if !end.After(start) {
		return nil, domain.NewValidationError("window", "end must be after start")
	}

	m, err := s.machines.Get(ctx, machineID)
	if err != nil {
		return nil, err
	}

	events, err := s.events.ListByWindow(ctx, machineID, start, end)
	if err != nil {
		return nil, err
	}

	in := Inputs{
		TheoreticalHours:    theoreticalHours(m, start, end),
		IdealCycleTimeHours: m.IdealCycleTimeHours,
	}
	var runtimeMinutes float64
	for _, ev := range events {
		// 支持调用方取消：长窗口的历史重算可被中断，读是纯的，取消总是安全的
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		switch ev.EventType {
		case domain.MachineEventRuntime:
			runtimeMinutes += ev.Minutes
		case domain.MachineEventDowntime:
			in.DowntimeMinutes += ev.Minutes
		case domain.MachineEventProduction:
			in.UnitsProduced += ev.UnitsProduced
			in.UnitsGood += ev.UnitsGood
			in.UnitsScrap += ev.UnitsScrap
		}
	}
	in.RuntimeHours = runtimeMinutes / 60.0

	w := Compute(machineID, start, end, in, s.logger)
	return &w, nil
}

// theoreticalHours 按机台班次日历折算窗口内理论可用小时
func theoreticalHours(m *domain.Machine, start, end time.Time) float64 {
	windowHours := end.Sub(start).Hours()
	scheduled := m.ScheduledHoursPerDay
	if scheduled <= 0 || scheduled > 24 {
		scheduled = 24
	}
	return windowHours * scheduled / 24.0
}
