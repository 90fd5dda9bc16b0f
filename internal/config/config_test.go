package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
broker:
  name: paper
trading:
  symbols: [BTCUSDT]
strategies:
  enabled: [orb]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1, cfg.Trading.ExecutionInterval)
	assert.Equal(t, 60, cfg.Trading.HTFInterval)
	assert.Equal(t, "09:30", cfg.Trading.SessionStart)
	assert.Equal(t, 5, cfg.Strategies.ORB.Timeframe)
	assert.Equal(t, 0.0005, cfg.Strategies.ORB.BreakoutThreshold)
	assert.Equal(t, "level", cfg.StopLoss.Type)
	assert.Equal(t, 2.0, cfg.TakeProfit.RiskRewardRatio)
	assert.Equal(t, 0.01, cfg.Risk.PerTrade)
	assert.Equal(t, 3, cfg.Risk.MaxTradesPerDay)
	assert.Equal(t, "EMA", cfg.HTFFilter.MAType)
	assert.Equal(t, "@every 15m", cfg.Strategies.OrderBlock.RescanCron)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, `
broker:
  name: paper
trading:
  symbols: [BTCUSDT]
`))
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Broker.Name = "ftx"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Trading.Symbols = nil
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Strategies.Enabled = []string{"martingale"}
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Risk.PerTrade = 1.5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.StopLoss.Type = "trailing"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.HTFFilter.MAType = "WMA"
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
