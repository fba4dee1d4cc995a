package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_DSN", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.AIProvider)
	assert.Equal(t, "openai/gpt-3.5-turbo", cfg.OpenRouterModel)
	assert.Equal(t, 5*time.Second, cfg.SandboxTimeout)
	assert.Contains(t, cfg.DBDSN, "tcp(127.0.0.1:3306)")
	assert.Equal(t, 2, cfg.WorkerConcurrency)
}

func TestLoad_EmptyRedisAndRabbitDisableFeatures(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("RABBIT_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.RabbitURL)
}

func TestLoad_RedisAndRabbitFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RABBIT_URL", "amqp://u:p@rabbit:5672/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "amqp://u:p@rabbit:5672/", cfg.RabbitURL)
}

func TestLoad_SQLiteDefaultDSN(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_DSN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Contains(t, cfg.DBDSN, "codemate.db")
}

func TestLoad_ClampsWorkerConcurrency(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "500")
	t.Setenv("PUBLIC_BASE_URL", "https://codemate.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.WorkerConcurrency)
	assert.Equal(t, "https://codemate.example.com", cfg.PublicBaseURL)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SANDBOX_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}
