package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantified/hindcast/internal/backtest"
	"github.com/quantified/hindcast/internal/core"
	"github.com/quantified/hindcast/internal/metrics"
	"github.com/quantified/hindcast/internal/store"
)

var (
	optimizeData      string
	optimizeSymbol    string
	optimizeInterval  string
	optimizeFrom      string
	optimizeTo        string
	optimizeTrials    int
	optimizeSeed      int64
	optimizeWorkers   int
	optimizeObjective string
	optimizeTop       int
	optimizeSave      bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [strategy]",
	Short: "Search a strategy's parameter space",
	Long:  "Run randomized parameter search over a CSV bar series and rank trials by score",
	Args:  cobra.ExactArgs(1),
	RunE:  runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVar(&optimizeData, "data", "", "CSV file with OHLCV bars (required)")
	optimizeCmd.Flags().StringVar(&optimizeSymbol, "symbol", "", "symbol label for the series")
	optimizeCmd.Flags().StringVar(&optimizeInterval, "interval", "", "bar interval label, e.g. 15m")
	optimizeCmd.Flags().StringVar(&optimizeFrom, "from", "", "start date YYYY-MM-DD")
	optimizeCmd.Flags().StringVar(&optimizeTo, "to", "", "end date YYYY-MM-DD")
	optimizeCmd.Flags().IntVar(&optimizeTrials, "trials", 0, "trial budget (defaults to config)")
	optimizeCmd.Flags().Int64Var(&optimizeSeed, "seed", 0, "random seed (defaults to config)")
	optimizeCmd.Flags().IntVar(&optimizeWorkers, "workers", 0, "concurrent trials (defaults to config)")
	optimizeCmd.Flags().StringVar(&optimizeObjective, "objective", "composite", "objective: composite, sharpe, sortino, calmar, return, drawdown")
	optimizeCmd.Flags().IntVar(&optimizeTop, "top", 10, "number of best trials to print")
	optimizeCmd.Flags().BoolVar(&optimizeSave, "save", false, "persist ranked trials to the result store")

	optimizeCmd.MarkFlagRequired("data")

	rootCmd.AddCommand(optimizeCmd)
}

// searchRanges returns the tunable ranges for the named reference strategy.
func searchRanges(strategy string) (map[string]backtest.Range, error) {
	common := map[string]backtest.Range{
		"stop_loss_pct":   {Min: 0.01, Max: 0.05},
		"take_profit_pct": {Min: 0.02, Max: 0.08},
	}
	switch strategy {
	case "ema_crossover":
		common["ema_fast"] = backtest.Range{Min: 8, Max: 15}
		common["ema_slow"] = backtest.Range{Min: 20, Max: 30}
		common["rsi_period"] = backtest.Range{Min: 10, Max: 20}
	case "rsi_mean_reversion":
		common["rsi_period"] = backtest.Range{Min: 10, Max: 20}
		common["rsi_oversold"] = backtest.Range{Min: 20, Max: 35}
		common["rsi_overbought"] = backtest.Range{Min: 65, Max: 80}
	default:
		return nil, fmt.Errorf("no search ranges defined for strategy %q", strategy)
	}
	return common, nil
}

func objectiveByName(name string) (backtest.Objective, error) {
	switch name {
	case "composite", "":
		return backtest.DefaultObjective, nil
	case "sharpe":
		return backtest.MaximizeSharpe, nil
	case "sortino":
		return backtest.MaximizeSortino, nil
	case "calmar":
		return backtest.MaximizeCalmar, nil
	case "return":
		return backtest.MaximizeTotalReturn, nil
	case "drawdown":
		return backtest.MinimizeDrawdown, nil
	default:
		return nil, fmt.Errorf("unknown objective %q", name)
	}
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Sync()

	reg := newRegistry()
	strat, err := lookupStrategy(reg, args[0])
	if err != nil {
		return err
	}

	ranges, err := searchRanges(strat.Name())
	if err != nil {
		return err
	}
	objective, err := objectiveByName(optimizeObjective)
	if err != nil {
		return err
	}

	trials := cfg.Optimizer.Trials
	if optimizeTrials > 0 {
		trials = optimizeTrials
	}
	seed := cfg.Optimizer.Seed
	if optimizeSeed != 0 {
		seed = optimizeSeed
	}
	workers := cfg.Optimizer.Workers
	if optimizeWorkers > 0 {
		workers = optimizeWorkers
	}

	symbol := cfg.Data.Symbol
	if optimizeSymbol != "" {
		symbol = optimizeSymbol
	}
	interval := cfg.Data.Interval
	if optimizeInterval != "" {
		interval = optimizeInterval
	}
	from, err := parseDate(optimizeFrom)
	if err != nil {
		return err
	}
	to, err := parseDate(optimizeTo)
	if err != nil {
		return err
	}

	provider := newProvider(optimizeData)
	bars, err := provider.FetchHistory(cmd.Context(), symbol, interval, from, to)
	if err != nil {
		return err
	}

	opt := backtest.NewOptimizer(engineConfig(cfg), objective)
	opt.SetParallelism(workers)
	opt.SetLogger(log)
	if cfg.Metrics.Enabled {
		opt.SetRecorder(metrics.NewRegistry())
	}

	space := backtest.NewRandomSpace(ranges, trials, seed)
	results, err := opt.Search(cmd.Context(), bars, strat, space)
	if err != nil {
		return err
	}

	printTrials(strat.Name(), symbol, results, optimizeTop)

	if optimizeSave {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		saved := 0
		for _, trial := range results {
			if trial.Err != nil {
				continue
			}
			rec := &store.OptimizationRecord{
				Strategy:    strat.Name(),
				Symbol:      symbol,
				Interval:    interval,
				Params:      trial.Params,
				Score:       trial.Score,
				TotalReturn: trial.Metrics.TotalReturn,
				SharpeRatio: trial.Metrics.SharpeRatio,
				MaxDrawdown: trial.Metrics.MaxDrawdown,
				TradesCount: trial.Metrics.TotalTrades,
				Rank:        trial.Rank,
			}
			if err := db.SaveOptimization(cmd.Context(), rec); err != nil {
				return err
			}
			saved++
		}
		log.Info("trials saved", zap.Int("count", saved))
	}

	return nil
}

func printTrials(strategy, symbol string, trials []backtest.Trial, top int) {
	fmt.Println("=== hindcast optimize ===")
	fmt.Printf("Strategy: %s\n", strategy)
	fmt.Printf("Symbol:   %s\n", symbol)
	fmt.Printf("Trials:   %d\n", len(trials))
	fmt.Println()

	if top > len(trials) {
		top = len(trials)
	}
	for _, trial := range trials[:top] {
		if trial.Err != nil {
			fmt.Printf("#%-3d score=-inf     error: %v\n", trial.Rank, trial.Err)
			continue
		}
		fmt.Printf("#%-3d score=%-8.4f return=%+.2f%% sharpe=%.3f dd=%.2f%% trades=%d  %s\n",
			trial.Rank, trial.Score,
			trial.Metrics.TotalReturn*100,
			trial.Metrics.SharpeRatio,
			trial.Metrics.MaxDrawdown*100,
			trial.Metrics.TotalTrades,
			formatParams(trial.Params),
		)
	}
}

func formatParams(params core.Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.4g", k, params[k]))
	}
	return strings.Join(parts, " ")
}
