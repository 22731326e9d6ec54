// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"w4u-wizard-api/internal/application/export"
	"w4u-wizard-api/internal/config"
	"w4u-wizard-api/internal/infrastructure/identity"
	"w4u-wizard-api/internal/interfaces/http/handler"
	"w4u-wizard-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health   *handler.HealthHandler
	Export   *handler.ExportHandler
	AIAgent  *handler.AIAgentHandler
	Sanitize *handler.SanitizeHandler
	Project  *handler.ProjectHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	verifier identity.Verifier
	limiter  middleware.RateLimiter
}

// New 创建新的路由器，limiter 为 nil 时不限流
func New(cfg *config.Config, handlers Handlers, verifier identity.Verifier, limiter middleware.RateLimiter) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		cfg:      cfg,
		handlers: handlers,
		verifier: verifier,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) healthPaths() []string {
	paths := []string{"/health", "/ready", "/live"}
	if r.cfg.Observability.Metrics.Path != "" {
		paths = append(paths, r.cfg.Observability.Metrics.Path)
	}
	return paths
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// CORS 中间件
	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name, r.healthPaths()...))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(r.healthPaths()...))
	}

	r.engine.Use(middleware.Audit(middleware.AuditConfig{
		Enabled:   true,
		SkipPaths: r.healthPaths(),
	}))
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	h := r.handlers

	// 系统端点
	if h.Health != nil {
		r.engine.GET("/health", h.Health.Health)
		r.engine.GET("/ready", h.Health.Ready)
		r.engine.GET("/live", h.Health.Live)
	}

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled && r.cfg.Observability.Metrics.Path != "" {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	requireAuth := middleware.Auth(middleware.AuthConfig{Verifier: r.verifier})

	// 文档导出
	if h.Export != nil {
		exports := r.engine.Group("/export")
		if r.cfg.Security.ExportAuth {
			exports.Use(requireAuth)
		}
		exports.POST("/epub", h.Export.Export(export.FormatEPUB))
		exports.POST("/docx", h.Export.Export(export.FormatDOCX))
		exports.POST("/pdf", h.Export.Export(export.FormatPDF))
	}

	api := r.engine.Group("/api")
	{
		if h.Sanitize != nil {
			api.POST("/sanitize", h.Sanitize.Sanitize)
		}

		if h.AIAgent != nil {
			agent := api.Group("/ai-agent", requireAuth)
			agent.POST("", middleware.RateLimit(middleware.RateLimitConfig{
				Enabled:   r.cfg.Security.RateLimit.Enabled,
				Limit:     r.cfg.Security.RateLimit.Limit,
				Window:    r.cfg.Security.RateLimit.Window,
				KeyPrefix: "ratelimit:ai-agent",
			}, r.limiter), h.AIAgent.Submit)
			agent.GET("/status/:requestId", h.AIAgent.GetStatus)
		}

		if h.Project != nil {
			api.POST("/projects/delete", requireAuth, h.Project.DeleteProject)
		}
	}
}
