package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"shopfloor/common/logger"
	"shopfloor/internal/config"
	"shopfloor/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 本地开发时从 .env 加载环境变量（生产环境直接注入）
	_ = godotenv.Load()

	cfg := config.Load()

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.ServiceName)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting shopfloor service",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Bool("memory_store", cfg.UseMemory),
	)

	floorService, err := service.NewFloorService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create floor service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := floorService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start floor service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	cancel()
	if err := floorService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
