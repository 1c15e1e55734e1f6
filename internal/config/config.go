package config

import (
	"os"
	"strconv"
	"time"

	common "shopfloor/common/config"
)

// Config 服务配置
type Config struct {
	ServiceName string
	HTTPAddr    string
	UseMemory   bool // 仅内存仓库运行（开发/演示环境）

	Database common.DatabaseConfig
	Redis    common.RedisConfig
	MQTT     common.MQTTConfig
	NATS     common.NATSConfig

	Ingest     IngestConfig
	Costing    CostingConfig
	Bottleneck BottleneckConfig
	Trace      TraceConfig
	Alerting   AlertingConfig
	Log        LogConfig
}

// IngestConfig 事件摄入配置
type IngestConfig struct {
	Stream           string        // 事件入口流
	Group            string        // 消费者组
	Consumer         string        // 消费者名（多实例部署时区分）
	DeadLetterStream string        // 死信流
	MQTTTopic        string        // 机台事件主题
	DedupTTL         time.Duration // 幂等键保留时长
	RetryAttempts    int
	RetryBackoff     time.Duration
}

// CostingConfig 成本记账配置
type CostingConfig struct {
	OverheadPercent  float64 // 工序完成自动分摊比例
	AllowRetroactive bool    // 允许向冻结批次补记成本
}

// BottleneckConfig 瓶颈检测阈值
type BottleneckConfig struct {
	FlagMultiple float64
	HighMultiple float64
}

// TraceConfig 追溯配置
type TraceConfig struct {
	CacheTTL time.Duration
}

// AlertingConfig 报警评估配置
type AlertingConfig struct {
	RulesFile    string        // 阈值规则 YAML 文件
	EvalInterval time.Duration // 后台评估周期
	WindowHours  int           // 每轮评估回看的窗口长度
	WebhookURL   string        // 为空则不启用 webhook 通知
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string
}

// Load 从环境变量加载配置
func Load() *Config {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "shopfloor"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		UseMemory:   getEnvBool("USE_MEMORY_STORE", false),
		Database: common.DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "shopfloor",
			Password: "",
			Database: "shopfloor",
			SSLMode:  "disable",
			MaxConns: 25,
			MaxIdle:  5,
		},
		Redis: common.RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		MQTT: common.MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "shopfloor-ingest",
			QoS:      1,
		},
		NATS: common.NATSConfig{
			URL:     "",
			Subject: "shopfloor.alerts",
		},
		Ingest: IngestConfig{
			Stream:           getEnv("INGEST_STREAM", "shopfloor:events"),
			Group:            getEnv("INGEST_GROUP", "shopfloor-core"),
			Consumer:         getEnv("INGEST_CONSUMER", "consumer-1"),
			DeadLetterStream: getEnv("INGEST_DEAD_LETTER_STREAM", "shopfloor:dead-letter"),
			MQTTTopic:        getEnv("INGEST_MQTT_TOPIC", "floor/+/events"),
			DedupTTL:         getEnvDuration("INGEST_DEDUP_TTL", 24*time.Hour),
			RetryAttempts:    getEnvInt("INGEST_RETRY_ATTEMPTS", 3),
			RetryBackoff:     getEnvDuration("INGEST_RETRY_BACKOFF", 200*time.Millisecond),
		},
		Costing: CostingConfig{
			OverheadPercent:  getEnvFloat("COSTING_OVERHEAD_PERCENT", 0.15),
			AllowRetroactive: getEnvBool("COSTING_ALLOW_RETROACTIVE", true),
		},
		Bottleneck: BottleneckConfig{
			FlagMultiple: getEnvFloat("BOTTLENECK_FLAG_MULTIPLE", 1.5),
			HighMultiple: getEnvFloat("BOTTLENECK_HIGH_MULTIPLE", 2.5),
		},
		Trace: TraceConfig{
			CacheTTL: getEnvDuration("TRACE_CACHE_TTL", 5*time.Second),
		},
		Alerting: AlertingConfig{
			RulesFile:    getEnv("ALERT_RULES_FILE", "configs/alert_rules.yaml"),
			EvalInterval: getEnvDuration("ALERT_EVAL_INTERVAL", time.Minute),
			WindowHours:  getEnvInt("ALERT_WINDOW_HOURS", 1),
			WebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	cfg.Database.LoadFromEnv("DB")
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.NATS.LoadFromEnv("NATS")

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
