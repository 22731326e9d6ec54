// Package main 异步任务执行器入口（job-worker），消费 Redis Streams 中的 AI 转发消息
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"w4u-wizard-api/internal/config"
	"w4u-wizard-api/internal/infrastructure/messaging"
	"w4u-wizard-api/internal/wire"
	"w4u-wizard-api/pkg/logger"
	"w4u-wizard-api/pkg/tracer"
)

// dlqAlertThreshold 死信队列告警阈值
const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Messaging.Driver != config.MessagingDriverRedis {
		logger.Fatal(ctx, "job-worker requires messaging.driver=redis", fmt.Errorf("driver is %q", cfg.Messaging.Driver))
	}

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    "job-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	dl, cleanupData, err := wire.InitializeDataLayer(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to init data layer", err)
	}
	defer cleanupData()

	forwarder := wire.ProvideForwarder(cfg, dl, wire.ProvideHTTPClient())

	concurrency := cfg.Messaging.RedisStream.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	consumers := make([]*messaging.Consumer, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		consumer := wire.ProvideConsumer(cfg, dl, i)
		forwarder.Register(consumer)
		if err := consumer.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start consumer", err)
		}
		consumers = append(consumers, consumer)
	}
	go consumers[0].MonitorDLQ(ctx, dlqAlertThreshold)

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "consumers", concurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 先停止拉取并等待处理中的消息，再取消 context
	log.Info("job-worker shutting down")
	for _, c := range consumers {
		c.Stop()
	}
}
