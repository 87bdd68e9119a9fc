package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantified/hindcast/internal/backtest"
	"github.com/quantified/hindcast/internal/metrics"
	"github.com/quantified/hindcast/internal/store"
)

var (
	backtestData     string
	backtestSymbol   string
	backtestInterval string
	backtestFrom     string
	backtestTo       string
	backtestParams   []string
	backtestSave     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run a strategy against historical data",
	Long:  "Replay a strategy over a CSV bar series and print performance statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestData, "data", "", "CSV file with OHLCV bars (required)")
	backtestCmd.Flags().StringVar(&backtestSymbol, "symbol", "", "symbol label for the series")
	backtestCmd.Flags().StringVar(&backtestInterval, "interval", "", "bar interval label, e.g. 15m")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "start date YYYY-MM-DD")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "end date YYYY-MM-DD")
	backtestCmd.Flags().StringArrayVarP(&backtestParams, "param", "p", nil, "strategy parameter key=value (repeatable)")
	backtestCmd.Flags().BoolVar(&backtestSave, "save", false, "persist the run to the result store")

	backtestCmd.MarkFlagRequired("data")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
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

	params, err := parseParams(backtestParams)
	if err != nil {
		return err
	}

	symbol := cfg.Data.Symbol
	if backtestSymbol != "" {
		symbol = backtestSymbol
	}
	interval := cfg.Data.Interval
	if backtestInterval != "" {
		interval = backtestInterval
	}
	from, err := parseDate(backtestFrom)
	if err != nil {
		return err
	}
	to, err := parseDate(backtestTo)
	if err != nil {
		return err
	}

	provider := newProvider(backtestData)
	bars, err := provider.FetchHistory(cmd.Context(), symbol, interval, from, to)
	if err != nil {
		return err
	}
	log.Info("loaded bars",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(bars)),
	)

	var prom *metrics.Registry
	if cfg.Metrics.Enabled {
		prom = metrics.NewRegistry()
	}

	started := time.Now()
	engine := backtest.NewEngine(engineConfig(cfg))
	result, err := engine.Run(cmd.Context(), bars, strat, params)
	if err != nil {
		prom.RecordBacktest("failed", time.Since(started).Seconds())
		return err
	}
	prom.RecordBacktest("completed", time.Since(started).Seconds())
	prom.RecordTrades(len(result.Trades))

	m := backtest.ComputeMetrics(result.Trades, result.Equity, cfg.Simulation.InitialBalance)
	printReport(strat.Name(), symbol, result, m)

	if backtestSave {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		rec := &store.BacktestRecord{
			Strategy:       strat.Name(),
			Symbol:         symbol,
			Interval:       interval,
			StartTime:      bars[0].Time,
			EndTime:        bars[len(bars)-1].Time,
			InitialBalance: m.InitialBalance,
			FinalBalance:   m.FinalBalance,
			TotalReturn:    m.TotalReturn,
			TradesCount:    m.TotalTrades,
			WinRate:        m.WinRate,
			MaxDrawdown:    m.MaxDrawdown,
			SharpeRatio:    m.SharpeRatio,
			ProfitFactor:   m.ProfitFactor,
			Params:         params,
		}
		if err := db.SaveBacktest(cmd.Context(), rec); err != nil {
			return err
		}
		if err := db.SaveTrades(cmd.Context(), rec.ID, tradeRecords(result)); err != nil {
			return err
		}
		log.Info("run saved", zap.String("id", rec.ID), zap.Int("trades", len(result.Trades)))
	}

	return nil
}

func tradeRecords(result *backtest.Result) []store.TradeRecord {
	records := make([]store.TradeRecord, len(result.Trades))
	for i, trade := range result.Trades {
		records[i] = store.TradeRecord{
			Symbol:      trade.Symbol,
			Side:        string(trade.Side),
			EntryTime:   trade.EntryTime,
			ExitTime:    trade.ExitTime,
			EntryPrice:  trade.EntryPrice,
			ExitPrice:   trade.ExitPrice,
			Quantity:    trade.Quantity,
			Commission:  trade.Commission,
			PnL:         trade.PnL,
			PnLPct:      trade.PnLPct,
			ExitReason:  string(trade.ExitReason),
			HoldingBars: trade.HoldingBars,
		}
	}
	return records
}

func printReport(strategy, symbol string, result *backtest.Result, m backtest.Metrics) {
	fmt.Println("=== hindcast backtest ===")
	fmt.Printf("Strategy:  %s\n", strategy)
	fmt.Printf("Symbol:    %s\n", symbol)
	if len(result.Equity) > 0 {
		first := result.Equity[0].Time
		last := result.Equity[len(result.Equity)-1].Time
		fmt.Printf("Period:    %s to %s\n", first.Format("2006-01-02"), last.Format("2006-01-02"))
	}
	fmt.Println()
	fmt.Printf("Balance:          %.2f -> %.2f\n", m.InitialBalance, m.FinalBalance)
	fmt.Printf("Total return:     %+.2f%%\n", m.TotalReturn*100)
	fmt.Printf("Annualized:       %+.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("Max drawdown:     %.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("Sharpe ratio:     %.3f\n", m.SharpeRatio)
	fmt.Printf("Sortino ratio:    %.3f\n", m.SortinoRatio)
	fmt.Printf("Calmar ratio:     %s\n", formatRatio(m.CalmarRatio))
	fmt.Println()
	fmt.Printf("Trades:           %d (%d wins / %d losses)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	fmt.Printf("Win rate:         %.1f%%\n", m.WinRate*100)
	fmt.Printf("Profit factor:    %s\n", formatRatio(m.ProfitFactor))
	fmt.Printf("Expectancy:       %.2f\n", m.Expectancy)
	fmt.Printf("Avg win / loss:   %.2f / %.2f\n", m.AvgWin, m.AvgLoss)
	fmt.Printf("VaR 95 / CVaR 95: %.2f / %.2f\n", m.VaR95, m.CVaR95)
	fmt.Printf("Streaks:          %d wins, %d losses\n", m.ConsecutiveWins, m.ConsecutiveLosses)
}

func formatRatio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.3f", v)
}
