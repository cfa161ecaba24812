package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoadConfig_Defaults 测试只配置 token 时使用默认参数
func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TUSHARE_TOKEN", "")
	path := writeConfig(t, `
tushare:
  token: test_token
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test_token", cfg.Tushare.Token)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 55, cfg.Strategy.BoxDays)
	assert.Equal(t, 20, cfg.Strategy.VolMaDays)
	assert.Equal(t, 1.5, cfg.Strategy.VolMultiplier)
	assert.Equal(t, 1.01, cfg.Strategy.BreakoutThreshold)
	assert.Equal(t, 3, cfg.Strategy.FlowDays)
	assert.Equal(t, 50, cfg.Strategy.BatchSize)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Sync.RetryInitialInterval)
	assert.Equal(t, 300*time.Millisecond, cfg.Sync.DayDelay)
}

// TestLoadConfig_MissingToken 测试未配置 token
func TestLoadConfig_MissingToken(t *testing.T) {
	t.Setenv("TUSHARE_TOKEN", "")
	path := writeConfig(t, `
tushare:
  token: your_tushare_token_here
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tushare Token")
}

// TestLoadConfig_TokenFromEnv 测试环境变量覆盖 token
func TestLoadConfig_TokenFromEnv(t *testing.T) {
	t.Setenv("TUSHARE_TOKEN", "env_token")
	path := writeConfig(t, `
database:
  type: sqlite
  path: ./quant.db
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env_token", cfg.Tushare.Token)
}

// TestLoadConfig_InvalidStrategy 测试策略参数越界
func TestLoadConfig_InvalidStrategy(t *testing.T) {
	t.Setenv("TUSHARE_TOKEN", "")
	path := writeConfig(t, `
tushare:
  token: test_token
sync:
  max_retries: 1
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxRetries")
}

// TestLoadConfig_InvalidDatabaseType 测试不支持的数据库类型
func TestLoadConfig_InvalidDatabaseType(t *testing.T) {
	t.Setenv("TUSHARE_TOKEN", "")
	path := writeConfig(t, `
tushare:
  token: test_token
database:
  type: oracle
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestGetDSN(t *testing.T) {
	sqlite := DatabaseConfig{Type: "sqlite", Path: "/tmp/quant.db"}
	assert.Equal(t, "/tmp/quant.db", sqlite.GetDSN())

	pg := DatabaseConfig{Type: "postgres", Host: "localhost", Port: 5432, User: "u", Password: "p", DBName: "stock"}
	assert.Contains(t, pg.GetDSN(), "host=localhost port=5432")

	unknown := DatabaseConfig{Type: "oracle"}
	assert.Empty(t, unknown.GetDSN())
}
