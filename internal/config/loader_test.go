package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("W4U_TEST_HOST", "db.internal")

	assert.Equal(t, "host: db.internal", expandEnv("host: ${W4U_TEST_HOST:localhost}"))
	assert.Equal(t, "port: 5432", expandEnv("port: ${W4U_TEST_MISSING_PORT:5432}"))
	assert.Equal(t, "key: ", expandEnv("key: ${W4U_TEST_MISSING_KEY:}"))
	assert.Equal(t, "raw: ${W4U_TEST_UNDEFINED}", expandEnv("raw: ${W4U_TEST_UNDEFINED}"))
}

func TestLoadFrom_MergesEnvFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
app:
  name: w4u-test
webhook:
  url: ${W4U_TEST_WEBHOOK:/webhook/default}
  base_url: http://n8n:5678
messaging:
  driver: redis
`)
	writeConfig(t, dir, "config.ci.yaml", `
messaging:
  driver: memory
cache:
  redis:
    enabled: false
`)
	t.Setenv("APP_ENV", "ci")
	t.Setenv("W4U_TEST_WEBHOOK", "/webhook/book")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "w4u-test", cfg.App.Name)
	assert.Equal(t, MessagingDriverMemory, cfg.Messaging.Driver)
	assert.False(t, cfg.Cache.Redis.Enabled)
	assert.Equal(t, "/webhook/book", cfg.Webhook.URL)
	assert.Equal(t, "http://n8n:5678", cfg.Webhook.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "X-API-Key", cfg.Webhook.APIKeyHeader)
	assert.Equal(t, RendererGotenberg, cfg.Renderer.Provider)
	assert.Equal(t, "it", cfg.Export.Language)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
	assert.Equal(t, 10*time.Minute, cfg.Messaging.RedisStream.ClaimMinIdle)
	assert.Equal(t, 3, cfg.Messaging.RedisStream.MaxDeliveries)
}

func TestLoadFrom_MissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	cfg := &Config{}
	cfg.Messaging.Driver = "kafka"
	cfg.Security.Identity.Mode = IdentityModeJWT
	cfg.Renderer.Provider = RendererGotenberg
	assert.ErrorContains(t, cfg.Validate(), "messaging.driver")

	cfg.Messaging.Driver = MessagingDriverRedis
	assert.ErrorContains(t, cfg.Validate(), "cache.redis.enabled")

	cfg.Cache.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}
