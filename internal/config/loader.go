package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// DefaultDir 默认配置目录
const DefaultDir = "configs"

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	return LoadFrom(DefaultDir)
}

// LoadFrom 从指定目录加载配置
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), false); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// 执行环境变量替换
	expanded := expandEnv(string(content))

	// 加载到 viper
	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，防止后续 ReadInConfig 报错
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
// 未定义且没有默认值的变量原样保留，便于排查
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验枚举类配置项
func (c *Config) Validate() error {
	switch c.Messaging.Driver {
	case MessagingDriverRedis, MessagingDriverMemory:
	default:
		return fmt.Errorf("invalid messaging.driver %q", c.Messaging.Driver)
	}
	switch c.Security.Identity.Mode {
	case IdentityModeJWT, IdentityModeRemote:
	default:
		return fmt.Errorf("invalid security.identity.mode %q", c.Security.Identity.Mode)
	}
	switch c.Renderer.Provider {
	case RendererGotenberg, RendererBrowserless:
	default:
		return fmt.Errorf("invalid renderer.provider %q", c.Renderer.Provider)
	}
	if c.Messaging.Driver == MessagingDriverRedis && !c.Cache.Redis.Enabled {
		return fmt.Errorf("messaging.driver=redis requires cache.redis.enabled")
	}
	return nil
}

// HTTPAddr 返回 HTTP 监听地址
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.HTTP.Host, c.Server.HTTP.Port)
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 应用默认值
	v.SetDefault("app.name", "w4u-wizard-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "120s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.max_body_bytes", 1<<20)

	// 数据库默认值
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "postgres")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")
	v.SetDefault("database.postgres.auto_migrate", false)

	// Redis 默认值
	v.SetDefault("cache.redis.enabled", true)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.job_snapshot_ttl", "10m")

	// 消息队列默认值
	v.SetDefault("messaging.driver", MessagingDriverRedis)
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.consumer_group_prefix", "w4u")
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.claim_min_idle", "10m")
	v.SetDefault("messaging.redis_stream.max_deliveries", 3)
	v.SetDefault("messaging.redis_stream.concurrency", 4)
	v.SetDefault("messaging.memory.buffer", 256)
	v.SetDefault("messaging.memory.workers", 4)

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output", "stdout")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.exporter", "otlp")
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9464)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.jwt.audience", "authenticated")
	v.SetDefault("security.identity.mode", IdentityModeJWT)
	v.SetDefault("security.identity.timeout", "5s")
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.limit", 30)
	v.SetDefault("security.rate_limit.window", "1m")
	v.SetDefault("security.export_auth", false)

	// Webhook 默认值
	v.SetDefault("webhook.api_key_header", "X-API-Key")
	v.SetDefault("webhook.secret_header", "X-Webhook-Secret")
	v.SetDefault("webhook.timeout", "120s")
	v.SetDefault("webhook.max_retries", 2)
	v.SetDefault("webhook.backoff.initial", "500ms")
	v.SetDefault("webhook.backoff.max", "5s")
	v.SetDefault("webhook.backoff.multiplier", 2.0)
	v.SetDefault("webhook.rate_per_second", 5.0)
	v.SetDefault("webhook.burst", 10)

	// 渲染服务默认值
	v.SetDefault("renderer.provider", RendererGotenberg)
	v.SetDefault("renderer.endpoint", "http://localhost:3000")
	v.SetDefault("renderer.timeout", "60s")
	v.SetDefault("renderer.max_retries", 1)
	v.SetDefault("renderer.backoff.initial", "1s")
	v.SetDefault("renderer.backoff.max", "5s")
	v.SetDefault("renderer.backoff.multiplier", 2.0)
	v.SetDefault("renderer.margin_top_cm", 2.5)
	v.SetDefault("renderer.margin_bottom_cm", 2.5)
	v.SetDefault("renderer.margin_side_cm", 2.0)

	// 导出默认值
	v.SetDefault("export.temp_dir", "")
	v.SetDefault("export.publisher", "W4U Publishing")
	v.SetDefault("export.language", "it")
}
