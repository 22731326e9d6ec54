// Package wire 组装进程依赖；各 cmd 共享同一套 Provider
package wire

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"w4u-wizard-api/internal/application/aiagent"
	"w4u-wizard-api/internal/application/export"
	"w4u-wizard-api/internal/config"
	"w4u-wizard-api/internal/infrastructure/identity"
	"w4u-wizard-api/internal/infrastructure/messaging"
	"w4u-wizard-api/internal/infrastructure/persistence/postgres"
	"w4u-wizard-api/internal/infrastructure/persistence/redis"
	"w4u-wizard-api/internal/infrastructure/renderer"
	"w4u-wizard-api/internal/infrastructure/webhook"
	"w4u-wizard-api/internal/interfaces/http/handler"
	"w4u-wizard-api/internal/interfaces/http/middleware"
	"w4u-wizard-api/internal/interfaces/http/router"
	"w4u-wizard-api/pkg/logger"
)

// DataLayer 数据层依赖容器
type DataLayer struct {
	// PostgreSQL
	PgClient    *postgres.Client
	BookRepo    *postgres.BookRepository
	ChapterRepo *postgres.ChapterRepository
	ParaRepo    *postgres.ParagraphRepository
	AIRepo      *postgres.AIRequestRepository

	// Redis，cache.redis.enabled=false 时均为 nil
	RedisClient *redis.Client
	Cache       *redis.Cache
	RateLimiter *redis.RateLimiter
	Snapshots   *redis.JobSnapshotCache
}

// InitializeDataLayer 初始化数据层
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	pg, cleanupPg, err := ProvidePostgresClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	dl := &DataLayer{
		PgClient:    pg,
		BookRepo:    postgres.NewBookRepository(pg),
		ChapterRepo: postgres.NewChapterRepository(pg),
		ParaRepo:    postgres.NewParagraphRepository(pg),
		AIRepo:      postgres.NewAIRequestRepository(pg),
	}

	rc, cleanupRedis, err := ProvideRedisClient(cfg)
	if err != nil {
		cleanupPg()
		return nil, nil, err
	}
	if rc != nil {
		dl.RedisClient = rc
		dl.Cache = redis.NewCache(rc)
		dl.RateLimiter = redis.NewRateLimiter(rc)
		dl.Snapshots = redis.NewJobSnapshotCache(dl.Cache, cfg.Cache.JobSnapshotTTL)
	}

	return dl, func() {
		cleanupRedis()
		cleanupPg()
	}, nil
}

// ProvidePostgresClient 创建 PostgreSQL 客户端，auto_migrate 开启时建表
func ProvidePostgresClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres, cfg.App.Env)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Postgres.AutoMigrate {
		if err := client.AutoMigrate(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}
	return client, func() {
		_ = client.Close()
	}, nil
}

// ProvideRedisClient 创建 Redis 客户端，未启用时返回 nil
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	return client, func() {
		_ = client.Close()
	}, nil
}

// ProvideHTTPClient 出站 HTTP 客户端，超时由各调用方按配置控制
func ProvideHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// ProvideExportService 创建导出服务
func ProvideExportService(cfg *config.Config, dl *DataLayer, httpClient *http.Client) (*export.Service, error) {
	pdf, err := renderer.New(cfg.Renderer, httpClient)
	if err != nil {
		return nil, err
	}
	return export.NewService(dl.BookRepo, dl.ChapterRepo, dl.ParaRepo, pdf, cfg.Export), nil
}

// ProvideForwarder 创建后台转发器
func ProvideForwarder(cfg *config.Config, dl *DataLayer, httpClient *http.Client) *aiagent.Forwarder {
	return aiagent.NewForwarder(dl.AIRepo, webhook.NewClient(cfg.Webhook, httpClient))
}

// ConsumerName 当前进程的消费者名，index 区分同进程内的多个消费者
func ConsumerName(index int) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), index)
}

func consumerGroup(prefix string) messaging.ConsumerGroup {
	if prefix == "" {
		return messaging.ConsumerGroupForwarder
	}
	return messaging.ConsumerGroup(prefix + ":" + string(messaging.ConsumerGroupForwarder))
}

// ProvideConsumer 创建 Redis Streams 转发消费者
func ProvideConsumer(cfg *config.Config, dl *DataLayer, index int) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	return messaging.NewConsumer(dl.RedisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamAIForward,
		Group:         consumerGroup(rs.ConsumerGroupPrefix),
		ConsumerName:  ConsumerName(index),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		ClaimMinIdle:  ClaimMinIdle(cfg),
		MaxDeliveries: rs.MaxDeliveries,
	})
}

// ClaimMinIdle 接管阈值不低于一次转发可能耗费的最长时间（含全部 webhook 重试），
// 否则仍在处理中的任务会被误判为消费者失联
func ClaimMinIdle(cfg *config.Config) time.Duration {
	wh := cfg.Webhook
	attempts := time.Duration(wh.MaxRetries + 1)
	longest := wh.Timeout*attempts + wh.Backoff.Max*time.Duration(wh.MaxRetries) + time.Minute
	return max(cfg.Messaging.RedisStream.ClaimMinIdle, longest)
}

// ProvidePublisher 按 messaging.driver 创建发布端。
// memory 驱动下转发器在本进程内消费，返回的 cleanup 会排空队列
func ProvidePublisher(ctx context.Context, cfg *config.Config, dl *DataLayer, httpClient *http.Client) (messaging.Publisher, func(), error) {
	switch cfg.Messaging.Driver {
	case config.MessagingDriverRedis:
		if dl.RedisClient == nil {
			return nil, nil, fmt.Errorf("messaging.driver=redis requires cache.redis.enabled")
		}
		return messaging.NewProducer(dl.RedisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen)), func() {}, nil
	case config.MessagingDriverMemory:
		q := messaging.NewMemoryQueue(cfg.Messaging.Memory.Buffer, cfg.Messaging.Memory.Workers)
		ProvideForwarder(cfg, dl, httpClient).Register(q)
		if err := q.Start(ctx); err != nil {
			return nil, nil, err
		}
		return q, q.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging driver %q", cfg.Messaging.Driver)
	}
}

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config, version string) (*router.Router, func(), error) {
	dl, cleanupData, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	httpClient := ProvideHTTPClient()

	verifier, err := identity.New(cfg.Security, httpClient)
	if err != nil {
		cleanupData()
		return nil, nil, err
	}

	exportSvc, err := ProvideExportService(cfg, dl, httpClient)
	if err != nil {
		cleanupData()
		return nil, nil, err
	}

	publisher, cleanupQueue, err := ProvidePublisher(ctx, cfg, dl, httpClient)
	if err != nil {
		cleanupData()
		return nil, nil, err
	}

	// 接口变量必须保持无类型 nil，避免 typed-nil 被当作已配置
	var (
		snapshots aiagent.SnapshotCache
		limiter   middleware.RateLimiter
		redisPing handler.HealthChecker
	)
	if dl.RedisClient != nil {
		snapshots = dl.Snapshots
		limiter = dl.RateLimiter
		redisPing = dl.RedisClient
	}

	r := router.New(cfg, router.Handlers{
		Health:   handler.NewHealthHandler(version, dl.PgClient, redisPing),
		Export:   handler.NewExportHandler(exportSvc),
		AIAgent:  handler.NewAIAgentHandler(aiagent.NewService(dl.AIRepo, publisher, snapshots), cfg.Server.HTTP.MaxBodyBytes),
		Sanitize: handler.NewSanitizeHandler(cfg.Export.Language),
		Project:  handler.NewProjectHandler(dl.BookRepo),
	}, verifier, limiter)

	logger.Info(ctx, "application initialized",
		"messaging_driver", cfg.Messaging.Driver,
		"identity_mode", cfg.Security.Identity.Mode,
		"renderer", cfg.Renderer.Provider,
		"redis", dl.RedisClient != nil,
	)

	return r, func() {
		// 先排空进程内队列，再关闭数据库
		cleanupQueue()
		cleanupData()
	}, nil
}
