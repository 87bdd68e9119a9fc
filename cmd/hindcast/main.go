package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantified/hindcast/internal/backtest"
	"github.com/quantified/hindcast/internal/config"
	"github.com/quantified/hindcast/internal/core"
	"github.com/quantified/hindcast/internal/logger"
	"github.com/quantified/hindcast/internal/marketdata"
	"github.com/quantified/hindcast/internal/store"
	"github.com/quantified/hindcast/internal/strategy"
	"github.com/quantified/hindcast/internal/strategy/emacross"
	"github.com/quantified/hindcast/internal/strategy/rsirevert"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "hindcast",
	Short: "hindcast - historical strategy simulation and optimization",
	Long: `hindcast replays trading strategies against historical OHLCV data,
computes performance statistics, and searches parameter spaces in parallel.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file when given, falling back to defaults.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Defaults(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logger.Must(cfg.Logging.Development || debug, cfg.Logging.Verbose || debug)
}

// newRegistry returns the registry with the bundled reference strategies.
func newRegistry() *strategy.Registry {
	reg := strategy.NewRegistry()
	reg.Register(emacross.New())
	reg.Register(rsirevert.New())
	return reg
}

func lookupStrategy(reg *strategy.Registry, name string) (strategy.Strategy, error) {
	strat, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %s)",
			name, strings.Join(reg.Names(), ", "))
	}
	return strat, nil
}

func engineConfig(cfg *config.Config) backtest.Config {
	return backtest.Config{
		InitialBalance: cfg.Simulation.InitialBalance,
		CommissionRate: cfg.Simulation.CommissionRate,
		SlippageRate:   cfg.Simulation.SlippageRate,
		RiskPerTrade:   cfg.Simulation.RiskPerTrade,
		MaxHoldingBars: cfg.Simulation.MaxHoldingBars,
		WarmupBars:     cfg.Simulation.WarmupBars,
	}
}

// newProvider builds the CSV provider behind a read-through cache.
func newProvider(path string) marketdata.Provider {
	return marketdata.NewCachedProvider(marketdata.NewCSVProvider(path), nil)
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.NewSQLiteStore(cfg.Store.Path)
}

// parseParams converts repeated key=value flags into Params.
func parseParams(pairs []string) (core.Params, error) {
	params := core.Params{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid param %q (expected key=value)", pair)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid param value %q: %w", pair, err)
		}
		params[strings.TrimSpace(key)] = v
	}
	return params, nil
}

// parseDate accepts YYYY-MM-DD; empty means unbounded.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", raw, err)
	}
	return ts, nil
}
