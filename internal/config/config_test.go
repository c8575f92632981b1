package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tick_trader/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "wss://ws.derivws.com/websockets/v3", cfg.Deriv.Endpoint)
	assert.Equal(t, "1089", cfg.Deriv.AppID)
	assert.Equal(t, 30000, cfg.Deriv.PingIntervalMs)
	require.NotNil(t, cfg.Deriv.MaxReconnectAttempts)
	assert.Equal(t, 5, *cfg.Deriv.MaxReconnectAttempts)
	assert.Equal(t, "R_100", cfg.Bot.Symbol)
	assert.Equal(t, domain.StrategyRiseFall, cfg.Bot.Strategy)
	assert.Equal(t, 1.0, cfg.Bot.Stake)
	assert.Equal(t, 50, cfg.Bot.HistorySize)
	assert.Equal(t, 100, cfg.Bot.TickBufferSize)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "bot.db", cfg.Storage.Path)
	assert.NoError(t, cfg.Validate())

	dc := cfg.DerivConfig()
	assert.Equal(t, 30*time.Second, dc.PingInterval)
	assert.Equal(t, 2*time.Second, dc.ReconnectBaseDelay)
	assert.Equal(t, 5, dc.MaxReconnectAttempts)
	assert.False(t, dc.DisableReconnect)
}

func TestLoad_ZeroReconnectAttemptsDisablesReconnect(t *testing.T) {
	path := writeFile(t, "config.yaml", "deriv:\n  max_reconnect_attempts: 0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Deriv.MaxReconnectAttempts)
	assert.Equal(t, 0, *cfg.Deriv.MaxReconnectAttempts)
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.DerivConfig().DisableReconnect)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "config.yaml", `
deriv:
  app_id: "4242"
  max_reconnect_attempts: 3
bot:
  symbol: R_50
  strategy: kyros_scalper
  stake: 2.5
  apply_reduced_stake: true
logging:
  level: debug
  encoding: console
server:
  port: 9090
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "4242", cfg.Deriv.AppID)
	assert.Equal(t, 3, *cfg.Deriv.MaxReconnectAttempts)
	assert.Equal(t, 2000, cfg.Deriv.ReconnectBaseDelayMs)
	assert.Equal(t, "R_50", cfg.Bot.Symbol)
	assert.Equal(t, domain.StrategyKyrosScalper, cfg.Bot.Strategy)
	assert.True(t, cfg.Bot.ApplyReducedStake)
	assert.Equal(t, "console", cfg.Logging.Encoding)
	assert.Equal(t, 9090, cfg.Server.Port)

	bc := cfg.BotConfig()
	assert.Equal(t, 2.5, bc.Stake)
	assert.True(t, bc.ApplyReducedStake)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "bot: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	envPath := writeFile(t, ".env", "DERIV_API_TOKEN=from-file\n")
	t.Setenv("DERIV_APP_ID", "777")

	// godotenv does not override variables that are already set
	t.Setenv("DERIV_API_TOKEN", "")
	os.Unsetenv("DERIV_API_TOKEN")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.NoError(t, cfg.LoadEnv(envPath))
	assert.Equal(t, "from-file", cfg.Deriv.Token)
	assert.Equal(t, "777", cfg.Deriv.AppID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown strategy", func(c *Config) { c.Bot.Strategy = "martingale" }},
		{"negative stake", func(c *Config) { c.Bot.Stake = -1 }},
		{"stake below minimum", func(c *Config) { c.Bot.Stake = 0.1 }},
		{"negative reconnect attempts", func(c *Config) {
			attempts := -1
			c.Deriv.MaxReconnectAttempts = &attempts
		}},
		{"max delay below base", func(c *Config) { c.Deriv.ReconnectMaxDelayMs = 100 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
