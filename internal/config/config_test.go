package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
backtest:
  initial_capital: 50000
  start_date: "2023-01-03"
  end_date: "2023-12-29"
risk:
  max_positions_per_strategy: 5
  max_positions_per_symbol: 2
strategies:
  mean_reversion:
    enabled: true
    rsi_threshold: 25
storage:
  data_dir: "/tmp/quantfolio/data"
logging:
  level: "debug"
`)
	t.Setenv("DATA_DIR", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, "2023-01-03", cfg.Backtest.StartDate)
	assert.Equal(t, 25.0, cfg.Strategies.MeanReversion.RSIThreshold)
	assert.True(t, cfg.Strategies.MeanReversion.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched keys keep their documented defaults.
	assert.Equal(t, 7.5, cfg.Costs.SlippageBps)
	assert.Equal(t, 0.005, cfg.Costs.CommissionPerShare)
	assert.Equal(t, 2.5, cfg.Stops.ATRMultiplier)
	assert.Equal(t, 1.0, cfg.Risk.MaxPortfolioLeverage)
	assert.Equal(t, 20, cfg.Strategies.MeanReversion.HoldDays)
	assert.Equal(t, 50, cfg.Strategies.MACrossover.ShortWindow)
	assert.Equal(t, 200, cfg.Strategies.MACrossover.LongWindow)
	assert.Equal(t, 0.2, cfg.Strategies.MeanReversion.PositionFraction)
	assert.False(t, cfg.Injection.Enabled, "injection must never default to enabled")

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("APCA_API_KEY_ID", "")
	t.Setenv("APCA_API_SECRET_KEY", "")
	t.Setenv("ALPACA_API_SECRET", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Alpaca.APIKey)
	assert.Equal(t, "yaml-secret", cfg.Alpaca.APISecret)
	assert.Equal(t, "/env/data", cfg.Storage.DataDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	cfg := Default()
	cfg.Risk.MaxPositionsPerStrategy = 5
	cfg.Risk.MaxPositionsPerSymbol = 2
	cfg.Strategies.MeanReversion.Enabled = true
	return cfg
}

func TestValidateRequiresPositionLimits(t *testing.T) {
	cfg := Default()
	cfg.Strategies.MeanReversion.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_positions_per_strategy")
	assert.Contains(t, err.Error(), "max_positions_per_symbol")
}

func TestValidateSafetyCriticalParameters(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.MaxPortfolioLeverage = 0
	cfg.Stops.ATRMultiplier = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_portfolio_leverage")
	assert.Contains(t, err.Error(), "atr_multiplier")
}

func TestValidateDates(t *testing.T) {
	cfg := validConfig()
	cfg.Backtest.StartDate = "2023-13-01"
	assert.ErrorContains(t, cfg.Validate(), "start_date")

	cfg = validConfig()
	cfg.Backtest.StartDate = "2023-06-01"
	cfg.Backtest.EndDate = "2023-01-01"
	assert.ErrorContains(t, cfg.Validate(), "before start_date")
}

func TestValidateWindows(t *testing.T) {
	cfg := validConfig()
	cfg.Strategies.MACrossover.Enabled = true
	cfg.Strategies.MACrossover.ShortWindow = 200
	cfg.Strategies.MACrossover.LongWindow = 50
	assert.ErrorContains(t, cfg.Validate(), "short_window < long_window")
}

func TestValidateInjection(t *testing.T) {
	cfg := validConfig()
	cfg.Injection.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inject_count")
	assert.Contains(t, err.Error(), "templates")

	cfg.Injection.InjectCount = 1
	cfg.Injection.Templates = []InjectionTemplate{
		{Strategy: "ma_crossover", Symbol: "AAPL", Side: "BUY", Shares: 10},
	}
	assert.ErrorContains(t, cfg.Validate(), "not an enabled strategy")

	cfg.Injection.Templates[0].Strategy = "mean_reversion"
	assert.NoError(t, cfg.Validate())
}

func TestEnabledStrategiesOrder(t *testing.T) {
	cfg := Default()
	cfg.Strategies.Sentiment.Enabled = true
	cfg.Strategies.MeanReversion.Enabled = true
	assert.Equal(t, []string{"mean_reversion", "sentiment"}, cfg.EnabledStrategies())
}

func TestValidateControlParameters(t *testing.T) {
	cfg := validConfig()
	cfg.Strategies.VolatilityBreakout.Enabled = true
	cfg.Strategies.VolatilityBreakout.VolatilityMultiple = 0
	cfg.Regime.Enabled = true
	cfg.Regime.Lookback = 0
	cfg.Correlation.Enabled = true
	cfg.Correlation.Lookback = 0
	cfg.Correlation.MinObservations = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volatility_multiple")
	assert.Contains(t, err.Error(), "regime.lookback")
	assert.Contains(t, err.Error(), "correlation.lookback")
	assert.Contains(t, err.Error(), "correlation.min_observations")

	// Disabled controls are not checked.
	cfg = validConfig()
	cfg.Regime.Lookback = 0
	cfg.Correlation.Lookback = 0
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Strategies.VolatilityBreakout.Enabled = true
	cfg.Regime.Enabled = true
	cfg.Correlation.Enabled = true
	assert.NoError(t, cfg.Validate(), "defaults must validate")
}
