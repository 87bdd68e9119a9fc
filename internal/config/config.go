package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/quantified/hindcast/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Simulation SimulationConfig          `mapstructure:"simulation"`
	Optimizer  OptimizerConfig           `mapstructure:"optimizer"`
	Data       DataConfig                `mapstructure:"data"`
	Store      StoreConfig               `mapstructure:"store"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
}

// SimulationConfig holds the engine parameters.
type SimulationConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
	CommissionRate float64 `mapstructure:"commission_rate"`
	SlippageRate   float64 `mapstructure:"slippage_rate"`
	RiskPerTrade   float64 `mapstructure:"risk_per_trade"`
	MaxHoldingBars int     `mapstructure:"max_holding_bars"`
	WarmupBars     int     `mapstructure:"warmup_bars"`
}

// OptimizerConfig holds parameter search settings.
type OptimizerConfig struct {
	Workers int   `mapstructure:"workers"`
	Trials  int   `mapstructure:"trials"`
	Seed    int64 `mapstructure:"seed"`
}

// DataConfig holds market data source settings.
type DataConfig struct {
	Path     string `mapstructure:"path"`
	Symbol   string `mapstructure:"symbol"`
	Interval string `mapstructure:"interval"`
}

// StoreConfig holds result persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type StrategyConfig struct {
	Enabled bool               `mapstructure:"enabled"`
	Params  map[string]float64 `mapstructure:"params"`
}

// LoggingConfig holds logger construction settings.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	Verbose     bool `mapstructure:"verbose"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides, e.g. HINDCAST_STORE_PATH
	v.SetEnvPrefix("HINDCAST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Simulation: SimulationConfig{
			InitialBalance: 10000,
			CommissionRate: 0.001,
			SlippageRate:   0.0002,
			RiskPerTrade:   0.02,
			MaxHoldingBars: 50,
			WarmupBars:     50,
		},
		Optimizer: OptimizerConfig{
			Workers: runtime.NumCPU(),
			Trials:  50,
			Seed:    42,
		},
		Data: DataConfig{
			Symbol:   "BTC/USDT",
			Interval: "15m",
		},
		Store: StoreConfig{
			Path: "hindcast.db",
		},
		Logging: LoggingConfig{
			Development: false,
			Verbose:     false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Simulation.InitialBalance <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_balance must be positive, got %f", c.Simulation.InitialBalance))
	}
	if c.Simulation.CommissionRate < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission_rate cannot be negative, got %f", c.Simulation.CommissionRate))
	}
	if c.Simulation.SlippageRate < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage_rate cannot be negative, got %f", c.Simulation.SlippageRate))
	}
	if c.Simulation.RiskPerTrade <= 0 || c.Simulation.RiskPerTrade > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("risk_per_trade must be in (0, 1], got %f", c.Simulation.RiskPerTrade))
	}
	if c.Simulation.MaxHoldingBars < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_holding_bars must be positive, got %d", c.Simulation.MaxHoldingBars))
	}
	if c.Simulation.WarmupBars < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("warmup_bars cannot be negative, got %d", c.Simulation.WarmupBars))
	}

	if c.Optimizer.Workers < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("optimizer workers must be positive, got %d", c.Optimizer.Workers))
	}
	if c.Optimizer.Trials < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("optimizer trials must be positive, got %d", c.Optimizer.Trials))
	}

	if c.Store.Path == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("store path is required"))
	}

	return nil
}
