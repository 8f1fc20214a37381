// Package config loads and validates the YAML configuration for a
// multi-strategy simulation run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the layout used for every date string in the configuration.
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration.
type Config struct {
	Backtest    Backtest      `yaml:"backtest"`
	Costs       Costs         `yaml:"costs"`
	Stops       Stops         `yaml:"stops"`
	Risk        Risk          `yaml:"risk"`
	Strategies  Strategies    `yaml:"strategies"`
	Regime      Regime        `yaml:"regime"`
	Correlation Correlation   `yaml:"correlation"`
	Injection   Injection     `yaml:"injection"`
	Guardrail   Guardrail     `yaml:"guardrail"`
	Storage     Storage       `yaml:"storage"`
	Alpaca      Alpaca        `yaml:"alpaca"`
	Logging     Logging       `yaml:"logging"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// Backtest controls the simulated date range and starting capital.
type Backtest struct {
	InitialCapital  float64 `yaml:"initial_capital"`
	StartDate       string  `yaml:"start_date"`
	EndDate         string  `yaml:"end_date"`
	Market          string  `yaml:"market"`
	ParallelSignals bool    `yaml:"parallel_signals"`
	WarmupDays      int     `yaml:"warmup_days"` // calendar days of history loaded before start_date
}

// Costs holds the execution cost model rates.
type Costs struct {
	SlippageBps        float64 `yaml:"slippage_bps"`
	CommissionPerShare float64 `yaml:"commission_per_share"`
}

// Stops configures ATR-based catastrophe stops.
type Stops struct {
	ATRMultiplier float64 `yaml:"atr_multiplier"`
	Trailing      bool    `yaml:"trailing"`
}

// Risk holds the portfolio-wide constraints.
type Risk struct {
	MaxPositionsPerStrategy int     `yaml:"max_positions_per_strategy"`
	MaxPositionsPerSymbol   int     `yaml:"max_positions_per_symbol"`
	MaxPortfolioLeverage    float64 `yaml:"max_portfolio_leverage"`
	AllowPartialFills       bool    `yaml:"allow_partial_fills"`
}

// StrategyCommon carries the sizing parameters every strategy shares.
type StrategyCommon struct {
	Enabled          bool    `yaml:"enabled"`
	Allocation       float64 `yaml:"allocation"`        // fraction of initial capital
	PositionFraction float64 `yaml:"position_fraction"` // fraction of the allocation per entry
}

// MeanReversion configures the RSI mean-reversion strategy.
type MeanReversion struct {
	StrategyCommon `yaml:",inline"`
	RSIThreshold   float64 `yaml:"rsi_threshold"`
	HoldDays       int     `yaml:"hold_days"`
}

// MACrossover configures the moving-average crossover strategy.
type MACrossover struct {
	StrategyCommon `yaml:",inline"`
	ShortWindow    int `yaml:"short_window"`
	LongWindow     int `yaml:"long_window"`
}

// VolatilityBreakout configures the volatility/volume breakout strategy.
type VolatilityBreakout struct {
	StrategyCommon     `yaml:",inline"`
	VolatilityMultiple float64 `yaml:"volatility_multiple"`
	VolumeMultiple     float64 `yaml:"volume_multiple"`
	MaxHoldDays        int     `yaml:"max_hold_days"`
}

// Sentiment configures the sentiment + technical strategy.
type Sentiment struct {
	StrategyCommon `yaml:",inline"`
	BuyThreshold   float64 `yaml:"buy_threshold"`
	SellThreshold  float64 `yaml:"sell_threshold"`
	RSIOversold    float64 `yaml:"rsi_oversold"`
	MaxHoldDays    int     `yaml:"max_hold_days"`
}

// Strategies groups the per-strategy blocks.
type Strategies struct {
	MeanReversion      MeanReversion      `yaml:"mean_reversion"`
	MACrossover        MACrossover        `yaml:"ma_crossover"`
	VolatilityBreakout VolatilityBreakout `yaml:"volatility_breakout"`
	Sentiment          Sentiment          `yaml:"sentiment"`
}

// RegimeRule suppresses or rescales one strategy's entries in one regime.
type RegimeRule struct {
	Regime   string  `yaml:"regime"`
	Strategy string  `yaml:"strategy"`
	Action   string  `yaml:"action"` // "suppress" or "scale"
	Factor   float64 `yaml:"factor"`
}

// Regime configures the regime detector and its gating rules.
type Regime struct {
	Enabled        bool         `yaml:"enabled"`
	Lookback       int          `yaml:"lookback"`
	HighVolatility float64      `yaml:"high_volatility"` // annualised
	LowVolatility  float64      `yaml:"low_volatility"`  // annualised
	TrendThreshold float64      `yaml:"trend_threshold"` // efficiency ratio
	Rules          []RegimeRule `yaml:"rules"`
}

// Correlation configures the correlation filter.
type Correlation struct {
	Enabled         bool    `yaml:"enabled"`
	Lookback        int     `yaml:"lookback"`
	Threshold       float64 `yaml:"threshold"`
	MinObservations int     `yaml:"min_observations"`
}

// InjectionTemplate describes one synthetic signal.
type InjectionTemplate struct {
	Strategy   string  `yaml:"strategy"`
	Symbol     string  `yaml:"symbol"`
	Side       string  `yaml:"side"`
	Shares     int64   `yaml:"shares"`
	Price      float64 `yaml:"price"` // 0 means use the period close
	Confidence float64 `yaml:"confidence"`
}

// Injection configures validation-only synthetic signal injection.
type Injection struct {
	Enabled     bool                `yaml:"enabled"`
	InjectCount int                 `yaml:"inject_count"`
	Templates   []InjectionTemplate `yaml:"templates"`
}

// Guardrail configures automatic window-boundary checks.
type Guardrail struct {
	WindowPeriods int `yaml:"window_periods"` // 0 checks the whole run only
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns a Config populated with the documented defaults. The
// per-strategy and per-symbol position limits have no default and must be
// set explicitly.
func Default() *Config {
	return &Config{
		Backtest: Backtest{
			InitialCapital: 100000,
			Market:         "us",
			WarmupDays:     400,
		},
		Costs: Costs{
			SlippageBps:        7.5,
			CommissionPerShare: 0.005,
		},
		Stops: Stops{
			ATRMultiplier: 2.5,
			Trailing:      true,
		},
		Risk: Risk{
			MaxPortfolioLeverage: 1.0,
		},
		Strategies: Strategies{
			MeanReversion: MeanReversion{
				StrategyCommon: StrategyCommon{Allocation: 0.25, PositionFraction: 0.2},
				RSIThreshold:   30,
				HoldDays:       20,
			},
			MACrossover: MACrossover{
				StrategyCommon: StrategyCommon{Allocation: 0.25, PositionFraction: 0.2},
				ShortWindow:    50,
				LongWindow:     200,
			},
			VolatilityBreakout: VolatilityBreakout{
				StrategyCommon:     StrategyCommon{Allocation: 0.25, PositionFraction: 0.2},
				VolatilityMultiple: 1.5,
				VolumeMultiple:     2.0,
				MaxHoldDays:        10,
			},
			Sentiment: Sentiment{
				StrategyCommon: StrategyCommon{Allocation: 0.25, PositionFraction: 0.2},
				BuyThreshold:   0.6,
				SellThreshold:  0.2,
				RSIOversold:    40,
				MaxHoldDays:    15,
			},
		},
		Regime: Regime{
			Lookback:       20,
			HighVolatility: 0.35,
			LowVolatility:  0.10,
			TrendThreshold: 0.5,
			Rules: []RegimeRule{
				{Regime: "quiet", Strategy: "volatility_breakout", Action: "suppress"},
				{Regime: "volatile", Strategy: "mean_reversion", Action: "scale", Factor: 0.5},
			},
		},
		Correlation: Correlation{
			Lookback:        60,
			Threshold:       0.8,
			MinObservations: 20,
		},
		Alpaca: Alpaca{
			Feed: "sip",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, then applies environment variable overrides. It does not
// validate; callers run Validate before starting a simulation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}

	// Standard Alpaca env vars take priority over the generic names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// DateRange parses the backtest start and end dates. An empty bound yields
// the zero time, meaning unbounded.
func (c *Config) DateRange() (start, end time.Time, err error) {
	if c.Backtest.StartDate != "" {
		start, err = time.Parse(DateLayout, c.Backtest.StartDate)
		if err != nil {
			return start, end, fmt.Errorf("parsing start_date %q: %w", c.Backtest.StartDate, err)
		}
	}
	if c.Backtest.EndDate != "" {
		end, err = time.Parse(DateLayout, c.Backtest.EndDate)
		if err != nil {
			return start, end, fmt.Errorf("parsing end_date %q: %w", c.Backtest.EndDate, err)
		}
	}
	return start, end, nil
}

// Validate reports every configuration problem that makes a run unsafe.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Backtest.InitialCapital <= 0 {
		add("backtest.initial_capital must be positive, got %v", c.Backtest.InitialCapital)
	}
	start, end, err := c.DateRange()
	if err != nil {
		errs = append(errs, err)
	} else if !start.IsZero() && !end.IsZero() && end.Before(start) {
		add("backtest.end_date %s is before start_date %s", c.Backtest.EndDate, c.Backtest.StartDate)
	}

	if c.Costs.SlippageBps < 0 {
		add("costs.slippage_bps must be non-negative, got %v", c.Costs.SlippageBps)
	}
	if c.Costs.CommissionPerShare < 0 {
		add("costs.commission_per_share must be non-negative, got %v", c.Costs.CommissionPerShare)
	}
	if c.Stops.ATRMultiplier <= 0 {
		add("stops.atr_multiplier must be positive, got %v", c.Stops.ATRMultiplier)
	}

	if c.Risk.MaxPositionsPerStrategy <= 0 {
		add("risk.max_positions_per_strategy is required and must be positive")
	}
	if c.Risk.MaxPositionsPerSymbol <= 0 {
		add("risk.max_positions_per_symbol is required and must be positive")
	}
	if c.Risk.MaxPortfolioLeverage <= 0 {
		add("risk.max_portfolio_leverage must be positive, got %v", c.Risk.MaxPortfolioLeverage)
	}

	s := c.Strategies
	enabled := c.EnabledStrategies()
	if len(enabled) == 0 {
		add("strategies: at least one strategy must be enabled")
	}
	for name, common := range c.strategyCommons() {
		if !common.Enabled {
			continue
		}
		if common.Allocation <= 0 || common.Allocation > 1 {
			add("strategies.%s.allocation must be in (0, 1], got %v", name, common.Allocation)
		}
		if common.PositionFraction <= 0 || common.PositionFraction > 1 {
			add("strategies.%s.position_fraction must be in (0, 1], got %v", name, common.PositionFraction)
		}
	}
	if s.MeanReversion.Enabled && s.MeanReversion.HoldDays <= 0 {
		add("strategies.mean_reversion.hold_days must be positive")
	}
	if s.MACrossover.Enabled {
		if s.MACrossover.ShortWindow <= 0 || s.MACrossover.ShortWindow >= s.MACrossover.LongWindow {
			add("strategies.ma_crossover requires 0 < short_window < long_window, got %d/%d",
				s.MACrossover.ShortWindow, s.MACrossover.LongWindow)
		}
	}

	if vb := s.VolatilityBreakout; vb.Enabled {
		if vb.VolatilityMultiple <= 0 || vb.VolumeMultiple <= 0 {
			add("strategies.volatility_breakout volatility_multiple and volume_multiple must be positive, got %v/%v",
				vb.VolatilityMultiple, vb.VolumeMultiple)
		}
		if vb.MaxHoldDays <= 0 {
			add("strategies.volatility_breakout.max_hold_days must be positive")
		}
	}
	if s.Sentiment.Enabled && s.Sentiment.MaxHoldDays <= 0 {
		add("strategies.sentiment.max_hold_days must be positive")
	}

	if c.Regime.Enabled {
		if c.Regime.Lookback < 2 {
			add("regime.lookback must be at least 2 when regime is enabled, got %d", c.Regime.Lookback)
		}
		if c.Regime.LowVolatility < 0 || c.Regime.HighVolatility <= c.Regime.LowVolatility {
			add("regime requires 0 <= low_volatility < high_volatility, got %v/%v",
				c.Regime.LowVolatility, c.Regime.HighVolatility)
		}
		if c.Regime.TrendThreshold <= 0 || c.Regime.TrendThreshold > 1 {
			add("regime.trend_threshold must be in (0, 1], got %v", c.Regime.TrendThreshold)
		}
	}
	for i, r := range c.Regime.Rules {
		if r.Action != "suppress" && r.Action != "scale" {
			add("regime.rules[%d].action must be suppress or scale, got %q", i, r.Action)
		}
		if r.Action == "scale" && (r.Factor <= 0 || r.Factor > 1) {
			add("regime.rules[%d].factor must be in (0, 1], got %v", i, r.Factor)
		}
	}

	if c.Correlation.Enabled {
		if c.Correlation.Threshold <= 0 || c.Correlation.Threshold > 1 {
			add("correlation.threshold must be in (0, 1], got %v", c.Correlation.Threshold)
		}
		if c.Correlation.Lookback < 2 {
			add("correlation.lookback must be at least 2 when correlation is enabled, got %d", c.Correlation.Lookback)
		}
		if c.Correlation.MinObservations <= 0 {
			add("correlation.min_observations must be positive when correlation is enabled, got %d", c.Correlation.MinObservations)
		}
	}

	if c.Injection.Enabled {
		if c.Injection.InjectCount <= 0 {
			add("injection.inject_count must be positive when injection is enabled")
		}
		if len(c.Injection.Templates) == 0 {
			add("injection.templates must not be empty when injection is enabled")
		}
		for i, tpl := range c.Injection.Templates {
			if !contains(enabled, tpl.Strategy) {
				add("injection.templates[%d].strategy %q is not an enabled strategy", i, tpl.Strategy)
			}
			if tpl.Side != "BUY" && tpl.Side != "SELL" {
				add("injection.templates[%d].side must be BUY or SELL, got %q", i, tpl.Side)
			}
			if tpl.Shares <= 0 {
				add("injection.templates[%d].shares must be positive", i)
			}
		}
	}

	if c.Guardrail.WindowPeriods < 0 {
		add("guardrail.window_periods must be non-negative")
	}

	return errors.Join(errs...)
}

// EnabledStrategies returns the names of the enabled strategies in a fixed
// order.
func (c *Config) EnabledStrategies() []string {
	var names []string
	for _, name := range StrategyNames {
		if c.strategyCommons()[name].Enabled {
			names = append(names, name)
		}
	}
	return names
}

// StrategyNames lists every built-in strategy in registration order.
var StrategyNames = []string{"mean_reversion", "ma_crossover", "volatility_breakout", "sentiment"}

func (c *Config) strategyCommons() map[string]StrategyCommon {
	s := c.Strategies
	return map[string]StrategyCommon{
		"mean_reversion":      s.MeanReversion.StrategyCommon,
		"ma_crossover":        s.MACrossover.StrategyCommon,
		"volatility_breakout": s.VolatilityBreakout.StrategyCommon,
		"sentiment":           s.Sentiment.StrategyCommon,
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
