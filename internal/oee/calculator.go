package oee

import (
	"math"
	"time"

	"shopfloor/internal/domain"

	"go.uber.org/zap"
)

// Inputs OEE 计算输入（窗口内聚合值）
type Inputs struct {
	TheoreticalHours    float64 // 班次日历给出的理论可用小时
	RuntimeHours        float64 // 实际运行小时；为 0 时按 theoretical - downtime 推导
	DowntimeMinutes     float64
	UnitsProduced       int
	UnitsGood           int
	UnitsScrap          int
	IdealCycleTimeHours float64 // 单件理想节拍（小时/件）
}

// Compute 计算机台在 [start, end) 窗口内的 OEE。
// 对输入是纯函数：相同事件日志与窗口必然得到相同结果，支持历史重算。
// performance 上限 1.0：理想节拍由操作员配置、可能错误，越限只记日志不报错。
func Compute(machineID string, start, end time.Time, in Inputs, logger *zap.Logger) domain.OEEWindow {
	w := domain.OEEWindow{
		MachineID:        machineID,
		Start:            start,
		End:              end,
		TheoreticalHours: in.TheoreticalHours,
		DowntimeMinutes:  in.DowntimeMinutes,
		UnitsProduced:    in.UnitsProduced,
		UnitsGood:        in.UnitsGood,
		UnitsScrap:       in.UnitsScrap,
	}

	runtime := in.RuntimeHours
	if runtime == 0 {
		runtime = in.TheoreticalHours - in.DowntimeMinutes/60.0
		if runtime < 0 {
			runtime = 0
		}
	}
	w.RuntimeHours = runtime

	// availability：theoretical_hours = 0 是定义过的边界情况，不是错误
	if in.TheoreticalHours > 0 {
		w.Availability = runtime / in.TheoreticalHours
		if w.Availability > 1.0 {
			logger.Warn("Availability capped at 1.0",
				zap.String("machine_id", machineID),
				zap.Float64("runtime_hours", runtime),
				zap.Float64("theoretical_hours", in.TheoreticalHours),
			)
			w.Availability = 1.0
		}
	}

	// performance：理想产出时间 / 实际运行时间，上限 1.0
	if runtime > 0 {
		w.Performance = float64(in.UnitsProduced) * in.IdealCycleTimeHours / runtime
		if w.Performance > 1.0 {
			logger.Warn("Performance capped at 1.0",
				zap.String("machine_id", machineID),
				zap.Float64("raw_performance", w.Performance),
				zap.Float64("ideal_cycle_time_hours", in.IdealCycleTimeHours),
			)
			w.Performance = 1.0
		}
	}

	// quality：total_units = 0 时为 0，无除零错误
	if in.UnitsProduced > 0 {
		w.Quality = float64(in.UnitsGood) / float64(in.UnitsProduced)
	}

	// 未舍入值保留用于报警比较；百分比仅用于展示
	w.OEE = w.Availability * w.Performance * w.Quality
	w.OEEPercent = math.Round(w.OEE*10000) / 100

	return w
}
