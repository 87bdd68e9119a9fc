package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantified/hindcast/internal/store"
)

var (
	resultsStrategy string
	resultsSymbol   string
	resultsLimit    int
	resultsTrials   bool
	resultsRun      string
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List persisted runs and optimization trials",
	RunE:  runResults,
}

func init() {
	resultsCmd.Flags().StringVar(&resultsStrategy, "strategy", "", "filter by strategy name")
	resultsCmd.Flags().StringVar(&resultsSymbol, "symbol", "", "filter by symbol")
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 20, "maximum rows to print")
	resultsCmd.Flags().BoolVar(&resultsTrials, "trials", false, "list optimization trials instead of runs")
	resultsCmd.Flags().StringVar(&resultsRun, "run", "", "print the trade ledger of one run by ID")

	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if resultsRun != "" {
		return printTradeLedger(cmd, db, resultsRun)
	}

	filter := store.ListFilter{
		Strategy: resultsStrategy,
		Symbol:   resultsSymbol,
		Limit:    resultsLimit,
	}

	if resultsTrials {
		trials, err := db.ListOptimizations(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(trials) == 0 {
			fmt.Println("no optimization trials stored")
			return nil
		}
		for _, rec := range trials {
			fmt.Printf("%s  #%-3d %-20s %-10s score=%-8.4f return=%+.2f%% sharpe=%.3f  %s\n",
				rec.CreatedAt.Format("2006-01-02 15:04"),
				rec.Rank, rec.Strategy, rec.Symbol,
				rec.Score, rec.TotalReturn*100, rec.SharpeRatio,
				formatParams(rec.Params),
			)
		}
		return nil
	}

	runs, err := db.ListBacktests(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs stored")
		return nil
	}
	for _, rec := range runs {
		fmt.Printf("%s  %-36s %-20s %-10s return=%+.2f%% trades=%-4d dd=%.2f%%\n",
			rec.CreatedAt.Format("2006-01-02 15:04"),
			rec.ID, rec.Strategy, rec.Symbol,
			rec.TotalReturn*100, rec.TradesCount, rec.MaxDrawdown*100,
		)
	}
	return nil
}

func printTradeLedger(cmd *cobra.Command, db store.Store, runID string) error {
	run, err := db.GetBacktest(cmd.Context(), runID)
	if err != nil {
		return err
	}
	trades, err := db.ListTrades(cmd.Context(), runID)
	if err != nil {
		return err
	}

	fmt.Printf("%s on %s (%d trades)\n", run.Strategy, run.Symbol, len(trades))
	for _, trade := range trades {
		fmt.Printf("%s -> %s  %-5s entry=%.4f exit=%.4f qty=%.4f pnl=%+.2f (%+.2f%%)  %s\n",
			trade.EntryTime.Format("2006-01-02 15:04"),
			trade.ExitTime.Format("2006-01-02 15:04"),
			trade.Side, trade.EntryPrice, trade.ExitPrice, trade.Quantity,
			trade.PnL, trade.PnLPct*100, trade.ExitReason,
		)
	}
	return nil
}
