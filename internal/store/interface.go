// internal/store/interface.go
package store

import (
	"context"
	"time"

	"github.com/quantified/hindcast/internal/core"
)

// BacktestRecord is one persisted simulation run with its headline metrics.
type BacktestRecord struct {
	ID             string
	Strategy       string
	Symbol         string
	Interval       string
	StartTime      time.Time
	EndTime        time.Time
	InitialBalance float64
	FinalBalance   float64
	TotalReturn    float64
	TradesCount    int
	WinRate        float64
	MaxDrawdown    float64
	SharpeRatio    float64
	ProfitFactor   float64
	Params         core.Params
	CreatedAt      time.Time
}

// TradeRecord is one persisted round trip belonging to a backtest run.
type TradeRecord struct {
	ID          string
	BacktestID  string
	Symbol      string
	Side        string
	EntryTime   time.Time
	ExitTime    time.Time
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	Commission  float64
	PnL         float64
	PnLPct      float64
	ExitReason  string
	HoldingBars int
}

// OptimizationRecord is one persisted optimizer trial.
type OptimizationRecord struct {
	ID          string
	Strategy    string
	Symbol      string
	Interval    string
	Params      core.Params
	Score       float64
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	TradesCount int
	Rank        int
	CreatedAt   time.Time
}

// ListFilter defines criteria for listing persisted records.
type ListFilter struct {
	Strategy string
	Symbol   string
	Limit    int
	Offset   int
}

// Store defines the interface for result persistence.
type Store interface {
	// SaveBacktest persists a run, assigning ID and CreatedAt when unset.
	SaveBacktest(ctx context.Context, rec *BacktestRecord) error

	// GetBacktest retrieves a run by ID. Missing IDs are ErrNotFound.
	GetBacktest(ctx context.Context, id string) (*BacktestRecord, error)

	// ListBacktests retrieves runs matching the filter, newest first.
	ListBacktests(ctx context.Context, filter ListFilter) ([]BacktestRecord, error)

	// SaveTrades persists the trade ledger of one run, assigning trade IDs.
	SaveTrades(ctx context.Context, backtestID string, trades []TradeRecord) error

	// ListTrades retrieves a run's trades in entry-time order.
	ListTrades(ctx context.Context, backtestID string) ([]TradeRecord, error)

	// SaveOptimization persists one optimizer trial.
	SaveOptimization(ctx context.Context, rec *OptimizationRecord) error

	// ListOptimizations retrieves trials matching the filter, best score first.
	ListOptimizations(ctx context.Context, filter ListFilter) ([]OptimizationRecord, error)

	// Close releases underlying resources.
	Close() error
}
