package backtest

import (
	"time"

	"github.com/quantified/hindcast/internal/core"
)

// ExitReason identifies which exit condition closed a position.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitSignal     ExitReason = "signal"
	ExitTimeLimit  ExitReason = "time_limit"
)

// position is the engine's in-flight lifecycle state. At most one exists per
// run; it is converted into a Trade on exit and never escapes the engine.
type position struct {
	side       core.Side
	entryPrice float64 // post-slippage fill
	quantity   float64
	entryTime  time.Time
	entryIndex int
	stopLoss   float64 // 0 = not set
	takeProfit float64 // 0 = not set
	reason     string
}

// unrealized returns the mark-to-market P&L of the position at price.
func (p *position) unrealized(price float64) float64 {
	if p.side == core.SideShort {
		return (p.entryPrice - price) * p.quantity
	}
	return (price - p.entryPrice) * p.quantity
}

// Trade is an immutable record of one closed position.
type Trade struct {
	Symbol      string
	Side        core.Side
	EntryTime   time.Time
	ExitTime    time.Time
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	Commission  float64
	PnL         float64 // net of commission
	PnLPct      float64 // PnL relative to entry notional
	ExitReason  ExitReason
	HoldingBars int
	Reason      string // strategy's entry reason
}

// IsWin returns true if the trade was profitable.
func (t Trade) IsWin() bool {
	return t.PnL > 0
}

// EquityPoint is one mark-to-market observation of account value.
type EquityPoint struct {
	Time    time.Time
	Equity  float64 // cash balance plus unrealized P&L of any open position
	Balance float64 // realized cash balance
}

// Result holds the complete output of one simulation run.
type Result struct {
	Strategy     string
	Symbol       string
	Params       core.Params
	Trades       []Trade
	Equity       []EquityPoint
	FinalBalance float64
}

// FinalEquity returns the last equity observation, or the final balance when
// the curve is empty.
func (r *Result) FinalEquity() float64 {
	if len(r.Equity) == 0 {
		return r.FinalBalance
	}
	return r.Equity[len(r.Equity)-1].Equity
}
