// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构，进程启动时加载一次并显式传入各组件
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Webhook       WebhookConfig       `yaml:"webhook" mapstructure:"webhook"`
	Renderer      RendererConfig      `yaml:"renderer" mapstructure:"renderer"`
	Export        ExportConfig        `yaml:"export" mapstructure:"export"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// MaxBodyBytes 请求体上限
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	// AutoMigrate 启动时建表（仅限本地开发，生产环境表由 Supabase 管理）
	AutoMigrate bool `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	// JobSnapshotTTL 终态任务快照缓存时长
	JobSnapshotTTL time.Duration `yaml:"job_snapshot_ttl" mapstructure:"job_snapshot_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// 消息驱动
const (
	MessagingDriverRedis  = "redis"
	MessagingDriverMemory = "memory"
)

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	// Driver 队列驱动: redis | memory
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
	Memory      MemoryQueueConfig `yaml:"memory" mapstructure:"memory"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	// ClaimMinIdle 消息空闲超过该时长才会被其他消费者接管，需大于一次转发的最长耗时
	ClaimMinIdle        time.Duration `yaml:"claim_min_idle" mapstructure:"claim_min_idle"`
	MaxDeliveries       int           `yaml:"max_deliveries" mapstructure:"max_deliveries"`
	Concurrency         int           `yaml:"concurrency" mapstructure:"concurrency"`
}

// MemoryQueueConfig 进程内队列配置
type MemoryQueueConfig struct {
	Buffer  int `yaml:"buffer" mapstructure:"buffer"`
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter   string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	Identity  IdentityConfig  `yaml:"identity" mapstructure:"identity"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
	// ExportAuth 导出接口是否要求 Bearer Token
	ExportAuth bool `yaml:"export_auth" mapstructure:"export_auth"`
}

// JWTConfig JWT 配置（Supabase 访问令牌使用 HS256 签名）
type JWTConfig struct {
	Secret   string `yaml:"secret" mapstructure:"secret"`
	Issuer   string `yaml:"issuer" mapstructure:"issuer"`
	Audience string `yaml:"audience" mapstructure:"audience"`
}

// 身份校验模式
const (
	IdentityModeJWT    = "jwt"
	IdentityModeRemote = "remote"
)

// IdentityConfig 身份提供方配置
type IdentityConfig struct {
	// Mode 校验方式: jwt（本地验签）| remote（调用 /auth/v1/user）
	Mode    string        `yaml:"mode" mapstructure:"mode"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Limit   int           `yaml:"limit" mapstructure:"limit"`
	Window  time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// WebhookConfig 外部工作流 Webhook 配置
type WebhookConfig struct {
	// URL 绝对地址或以 / 开头的相对路径
	URL string `yaml:"url" mapstructure:"url"`
	// BaseURL 解析相对 URL 时使用的主机
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey       string        `yaml:"api_key" mapstructure:"api_key"`
	APIKeyHeader string        `yaml:"api_key_header" mapstructure:"api_key_header"`
	Secret       string        `yaml:"secret" mapstructure:"secret"`
	SecretHeader string        `yaml:"secret_header" mapstructure:"secret_header"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	Backoff      BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
	// RatePerSecond 出站请求速率，<=0 表示不限制
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

// 渲染服务
const (
	RendererGotenberg   = "gotenberg"
	RendererBrowserless = "browserless"
)

// RendererConfig 无头浏览器 PDF 渲染配置
type RendererConfig struct {
	Provider   string        `yaml:"provider" mapstructure:"provider"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint"`
	Token      string        `yaml:"token" mapstructure:"token"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	Backoff    BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
	// 页边距（厘米）
	MarginTopCM    float64 `yaml:"margin_top_cm" mapstructure:"margin_top_cm"`
	MarginBottomCM float64 `yaml:"margin_bottom_cm" mapstructure:"margin_bottom_cm"`
	MarginSideCM   float64 `yaml:"margin_side_cm" mapstructure:"margin_side_cm"`
}

// ExportConfig 文档导出配置
type ExportConfig struct {
	// TempDir 导出临时文件目录，空值使用系统临时目录
	TempDir   string `yaml:"temp_dir" mapstructure:"temp_dir"`
	Publisher string `yaml:"publisher" mapstructure:"publisher"`
	// Language 文档语言与章节标签: it | en
	Language string `yaml:"language" mapstructure:"language"`
}
