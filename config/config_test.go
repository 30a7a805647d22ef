package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ReasonsTTL)
	assert.Equal(t, time.Hour, cfg.Drift.Interval)
	assert.Equal(t, 7, cfg.Drift.LookbackDays)
	assert.Equal(t, 8, cfg.Engine.Parallelism)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "earnings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  env: production
server:
  http_addr: ":9090"
db:
  driver: memory
drift:
  interval: 30m
`), 0o644))

	t.Setenv("EARNINGS_SERVER_HTTP_ADDR", ":7070")
	t.Setenv("EARNINGS_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":7070", cfg.Server.HTTPAddr)
	assert.Equal(t, "memory", cfg.DB.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Drift.Interval)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("EARNINGS_DB_DRIVER", "postgres")
	_, err := Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
