package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"shopfloor/common/database"
	mqttcommon "shopfloor/common/mqtt"
	rediscommon "shopfloor/common/redis"
	"shopfloor/internal/alerting"
	"shopfloor/internal/bottleneck"
	"shopfloor/internal/config"
	"shopfloor/internal/costing"
	"shopfloor/internal/httpapi"
	"shopfloor/internal/ingest"
	"shopfloor/internal/notify"
	"shopfloor/internal/oee"
	"shopfloor/internal/repository"
	"shopfloor/internal/store"
	"shopfloor/internal/trace"
	"shopfloor/internal/wip"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// FloorService 车间效率与成本核心服务。
// 组合事件摄入、批次状态机、成本累计、OEE 聚合、瓶颈检测、
// 追溯索引与报警评估，对外暴露 HTTP API。
type FloorService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	natsNotify  *notify.NATSNotifier

	machines repository.MachinesRepo
	oeeSvc   *oee.WindowService
	eval     *alerting.Evaluator

	mqttConsumer   *ingest.MQTTConsumer
	streamConsumer *ingest.StreamConsumer
	server         *Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFloorService 创建并装配服务
func NewFloorService(cfg *config.Config, logger *zap.Logger) (*FloorService, error) {
	s := &FloorService{config: cfg, logger: logger}

	var (
		machines      repository.MachinesRepo
		routings      repository.RoutingsRepo
		batches       repository.BatchesRepo
		transitions   repository.TransitionsRepo
		costs         repository.CostsRepo
		machineEvents repository.MachineEventsRepo
		alerts        repository.AlertsRepo
		txWriter      repository.TransitionWriter
		costWriter    repository.CostWriter
		dedup         store.KV
		traceCache    store.KV
		deadLetter    ingest.DeadLetter
	)

	if cfg.UseMemory {
		// 开发/演示模式：全内存，不依赖外部服务
		machines = repository.NewMemoryMachinesRepo()
		routings = repository.NewMemoryRoutingsRepo()
		memBatches := repository.NewMemoryBatchesRepo()
		memTransitions := repository.NewMemoryTransitionsRepo()
		memCosts := repository.NewMemoryCostsRepo()
		batches = memBatches
		transitions = memTransitions
		costs = memCosts
		memWriter := repository.NewMemoryBatchWriter(memTransitions, memCosts, memBatches)
		txWriter = memWriter
		costWriter = memWriter
		machineEvents = repository.NewMemoryMachineEventsRepo()
		alerts = repository.NewMemoryAlertsRepo()
		dedup = store.NewMemoryKV()
		traceCache = store.NewMemoryKV()
		logger.Warn("Running with in-memory repositories, data will not survive restart")
	} else {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db

		redisClient := rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
			database.Close(db)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redisClient = redisClient

		machines = repository.NewPostgresMachinesRepo(db)
		routings = repository.NewPostgresRoutingsRepo(db)
		batches = repository.NewPostgresBatchesRepo(db)
		transitions = repository.NewPostgresTransitionsRepo(db)
		costs = repository.NewPostgresCostsRepo(db)
		pgWriter := repository.NewPostgresBatchWriter(db)
		txWriter = pgWriter
		costWriter = pgWriter
		machineEvents = repository.NewPostgresMachineEventsRepo(db)
		alerts = repository.NewPostgresAlertsRepo(db)
		dedup = store.NewRedisKV(redisClient)
		traceCache = store.NewRedisKV(redisClient)
		deadLetter = ingest.NewRedisDeadLetter(redisClient, cfg.Ingest.DeadLetterStream, logger)
	}
	s.machines = machines

	stateMachine := wip.NewStateMachine(batches, routings, txWriter, logger)
	accumulator := costing.NewAccumulator(costs, batches, routings, costWriter, costing.Policy{
		OverheadPercent:  cfg.Costing.OverheadPercent,
		AllowRetroactive: cfg.Costing.AllowRetroactive,
	}, logger)
	s.oeeSvc = oee.NewWindowService(machines, machineEvents, logger)
	detector := bottleneck.NewDetector(batches, routings, bottleneck.Thresholds{
		FlagMultiple: cfg.Bottleneck.FlagMultiple,
		HighMultiple: cfg.Bottleneck.HighMultiple,
	}, logger)
	traceIndex := trace.NewIndex(batches, transitions, costs, traceCache, cfg.Trace.CacheTTL, logger)

	rules, err := alerting.LoadRules(cfg.Alerting.RulesFile)
	if err != nil {
		logger.Warn("Failed to load alert rules, alerting disabled",
			zap.String("file", cfg.Alerting.RulesFile),
			zap.Error(err),
		)
	}
	notifier := buildNotifier(s, cfg, logger)
	s.eval = alerting.NewEvaluator(alerts, rules, notifier, logger)

	ingestor := ingest.NewIngestor(
		dedup,
		stateMachine,
		accumulator,
		machines,
		machineEvents,
		deadLetter,
		ingest.RetryPolicy{
			Attempts: cfg.Ingest.RetryAttempts,
			Backoff:  cfg.Ingest.RetryBackoff,
		},
		cfg.Ingest.DedupTTL,
		logger,
	)

	if !cfg.UseMemory {
		mqttClient, err := mqttcommon.NewClient(&cfg.MQTT)
		if err != nil {
			logger.Warn("Failed to connect to MQTT broker, machine event topic disabled",
				zap.String("broker", cfg.MQTT.Broker),
				zap.Error(err),
			)
		} else {
			s.mqttClient = mqttClient
			s.mqttConsumer = ingest.NewMQTTConsumer(
				mqttClient, ingestor, cfg.Ingest.MQTTTopic, cfg.MQTT.QoS, logger)
		}

		s.streamConsumer = ingest.NewStreamConsumer(
			s.redisClient, ingestor,
			cfg.Ingest.Stream, cfg.Ingest.Group, cfg.Ingest.Consumer,
			logger,
		)
	}

	router := httpapi.NewRouter(logger)
	router.RegisterHealthRoutes()
	router.RegisterEventRoutes(httpapi.NewEventHandler(ingestor, logger))
	router.RegisterBatchRoutes(httpapi.NewBatchHandler(batches, accumulator, traceIndex, logger))
	router.RegisterMachineRoutes(httpapi.NewMachineHandler(machines, s.oeeSvc, logger))
	router.RegisterBottleneckRoutes(httpapi.NewBottleneckHandler(detector, logger))
	router.RegisterAlertRoutes(httpapi.NewAlertHandler(alerts, s.eval, logger))
	s.server = NewServer(cfg.HTTPAddr, router, logger)

	return s, nil
}

// buildNotifier 按配置组合报警通知器
func buildNotifier(s *FloorService, cfg *config.Config, logger *zap.Logger) notify.Notifier {
	var targets []notify.Notifier
	if cfg.NATS.URL != "" {
		n, err := notify.NewNATSNotifier(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Warn("Failed to connect to NATS, notification target disabled",
				zap.String("url", cfg.NATS.URL),
				zap.Error(err),
			)
		} else {
			s.natsNotify = n
			targets = append(targets, n)
		}
	}
	if cfg.Alerting.WebhookURL != "" {
		targets = append(targets, notify.NewWebhookNotifier(cfg.Alerting.WebhookURL, logger))
	}
	if len(targets) == 0 {
		return notify.NopNotifier{}
	}
	return notify.NewMultiNotifier(logger, targets...)
}

// Start 启动所有组件
func (s *FloorService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.streamConsumer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.streamConsumer.Start(ctx); err != nil {
				s.logger.Error("Stream consumer exited", zap.Error(err))
			}
		}()
	}

	if s.mqttConsumer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.mqttConsumer.Start(ctx); err != nil {
				s.logger.Error("MQTT consumer exited", zap.Error(err))
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runAlertLoop(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Start(); err != nil {
			s.logger.Error("HTTP server exited", zap.Error(err))
		}
	}()

	s.logger.Info("Floor service started")
	return nil
}

// runAlertLoop 周期性重算每台机台的近期 OEE 窗口并评估阈值规则
func (s *FloorService) runAlertLoop(ctx context.Context) {
	interval := s.config.Alerting.EvalInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evaluateAllMachines(ctx)
		}
	}
}

func (s *FloorService) evaluateAllMachines(ctx context.Context) {
	machines, err := s.machines.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list machines for alert evaluation", zap.Error(err))
		return
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(s.config.Alerting.WindowHours) * time.Hour)

	for _, m := range machines {
		window, err := s.oeeSvc.ComputeWindow(ctx, m.MachineID, start, end)
		if err != nil {
			s.logger.Error("Failed to compute OEE window",
				zap.String("machine_id", m.MachineID),
				zap.Error(err),
			)
			continue
		}
		if _, err := s.eval.EvaluateWindow(ctx, *window); err != nil {
			s.logger.Error("Alert evaluation failed",
				zap.String("machine_id", m.MachineID),
				zap.Error(err),
			)
		}
	}
}

// Stop 优雅停机
func (s *FloorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping floor service")

	if s.cancel != nil {
		s.cancel()
	}

	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Error shutting down HTTP server", zap.Error(err))
		}
	}

	if s.mqttConsumer != nil {
		if err := s.mqttConsumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping MQTT consumer", zap.Error(err))
		}
	}

	s.wg.Wait()

	if s.natsNotify != nil {
		s.natsNotify.Close()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		rediscommon.Close(s.redisClient)
	}
	if s.db != nil {
		database.Close(s.db)
	}

	s.logger.Info("Floor service stopped")
	return nil
}
