package alerting

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// 可评估的指标
const (
	MetricOEE             = "oee"
	MetricAvailability    = "availability"
	MetricPerformance     = "performance"
	MetricQuality         = "quality"
	MetricDowntimeMinutes = "downtime_minutes"
)

// Rule 阈值规则。oee/availability/performance/quality 取未舍入的 [0,1] 值比较，
// 避免展示舍入造成的阈值抖动；downtime_minutes 取窗口内停机分钟数。
type Rule struct {
	Name      string  `yaml:"name"`
	AlertType string  `yaml:"alert_type"`
	Metric    string  `yaml:"metric"`
	Operator  string  `yaml:"operator"` // "lt" 或 "gt"
	Threshold float64 `yaml:"threshold"`
	Severity  string  `yaml:"severity"` // low / medium / high / critical
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules 从 YAML 文件加载阈值规则
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules 解析并校验规则
func ParseRules(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	for i, r := range f.Rules {
		if r.Name == "" || r.AlertType == "" {
			return nil, fmt.Errorf("rule %d: name and alert_type are required", i)
		}
		switch r.Metric {
		case MetricOEE, MetricAvailability, MetricPerformance, MetricQuality, MetricDowntimeMinutes:
		default:
			return nil, fmt.Errorf("rule %q: unknown metric %q", r.Name, r.Metric)
		}
		if r.Operator != "lt" && r.Operator != "gt" {
			return nil, fmt.Errorf("rule %q: operator must be lt or gt", r.Name)
		}
	}
	return f.Rules, nil
}
