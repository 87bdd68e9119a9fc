package backtest

import (
	"context"
	"fmt"
	"math"

	"github.com/quantified/hindcast/internal/core"
	"github.com/quantified/hindcast/internal/strategy"
)

// Engine replays a bar series through a position-lifecycle state machine,
// applying one strategy's signals, transaction costs and exit rules.
//
// A run is single-threaded and pure: it performs no I/O, mutates no state
// outside its own structures, and is deterministic for deterministic input.
// That purity is what lets the optimizer run many engines concurrently over
// a shared, read-only bar series.
type Engine struct {
	config Config
}

// NewEngine creates an engine with the given simulation config.
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Run simulates strat over bars with the given strategy parameters.
//
// Bars must be ordered by strictly increasing timestamp. The strategy is
// evaluated from index WarmupBars onward, each time over the prefix up to
// and including the current bar, so it can never observe future bars.
func (e *Engine) Run(ctx context.Context, bars []core.Bar, strat strategy.Strategy, params core.Params) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if len(bars) <= e.config.WarmupBars {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("%d bars, need more than %d warmup bars", len(bars), e.config.WarmupBars))
	}

	var (
		balance = e.config.InitialBalance
		pos     *position
		trades  []Trade
		equity  = make([]EquityPoint, 0, len(bars)-e.config.WarmupBars)
		symbol  = bars[0].Symbol
	)

	for i := e.config.WarmupBars; i < len(bars); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		bar := bars[i]

		sig, err := strat.Evaluate(bars[:i+1], params)
		if err != nil {
			// Skipping the bar would silently shift signal timing, so a
			// failing strategy aborts the whole run.
			return nil, core.WrapError(core.ErrStrategyFailed,
				fmt.Errorf("bar %d (%s): %w", i, bar.Time.Format("2006-01-02 15:04"), err))
		}

		if pos == nil && sig.IsEntry() {
			pos = e.openPosition(bar, i, sig, balance)
		} else if pos != nil {
			if reason, ok := e.shouldExit(pos, bar, i, sig); ok {
				trade := e.closePosition(pos, bar, i, reason)
				balance += trade.PnL
				trades = append(trades, trade)
				pos = nil
			}
		}

		eq := balance
		if pos != nil {
			eq += pos.unrealized(bar.Close)
		}
		equity = append(equity, EquityPoint{Time: bar.Time, Equity: eq, Balance: balance})
	}

	return &Result{
		Strategy:     strat.Name(),
		Symbol:       symbol,
		Params:       params,
		Trades:       trades,
		Equity:       equity,
		FinalBalance: balance,
	}, nil
}

// openPosition sizes and opens a position for an entry signal. Returns nil
// when the computed quantity is not positive.
func (e *Engine) openPosition(bar core.Bar, index int, sig core.Signal, balance float64) *position {
	side := sig.EntrySide()

	// Slippage moves the fill against the trader.
	fill := bar.Close
	if side == core.SideLong {
		fill *= 1 + e.config.SlippageRate
	} else {
		fill *= 1 - e.config.SlippageRate
	}
	if fill <= 0 {
		return nil
	}

	// Risk-based sizing: with a stop, quantity is chosen so that hitting the
	// stop loses risk_per_trade of the balance; without one, the risk amount
	// is simply deployed at the fill price.
	riskAmount := balance * e.config.RiskPerTrade
	var quantity float64
	if sig.StopLoss > 0 {
		stopDistance := math.Abs(fill - sig.StopLoss)
		if stopDistance > 0 {
			quantity = riskAmount / stopDistance
		}
	} else {
		quantity = riskAmount / fill
	}
	if quantity <= 0 {
		return nil
	}

	return &position{
		side:       side,
		entryPrice: fill,
		quantity:   quantity,
		entryTime:  bar.Time,
		entryIndex: index,
		stopLoss:   sig.StopLoss,
		takeProfit: sig.TakeProfit,
		reason:     sig.Reason,
	}
}

// shouldExit evaluates the exit conditions in precedence order: stop-loss,
// take-profit, explicit signal, time limit. First match wins.
func (e *Engine) shouldExit(pos *position, bar core.Bar, index int, sig core.Signal) (ExitReason, bool) {
	if pos.stopLoss > 0 {
		if (pos.side == core.SideLong && bar.Low <= pos.stopLoss) ||
			(pos.side == core.SideShort && bar.High >= pos.stopLoss) {
			return ExitStopLoss, true
		}
	}
	if pos.takeProfit > 0 {
		if (pos.side == core.SideLong && bar.High >= pos.takeProfit) ||
			(pos.side == core.SideShort && bar.Low <= pos.takeProfit) {
			return ExitTakeProfit, true
		}
	}
	if sig.IsExit() {
		return ExitSignal, true
	}
	if index-pos.entryIndex > e.config.MaxHoldingBars {
		return ExitTimeLimit, true
	}
	return "", false
}

// closePosition converts the open position into a Trade at the bar's close,
// applying exit slippage and round-trip commission.
func (e *Engine) closePosition(pos *position, bar core.Bar, index int, reason ExitReason) Trade {
	fill := bar.Close
	if pos.side == core.SideLong {
		fill *= 1 - e.config.SlippageRate
	} else {
		fill *= 1 + e.config.SlippageRate
	}

	grossPnL := pos.unrealized(fill)
	commission := (pos.entryPrice + fill) * pos.quantity * e.config.CommissionRate
	netPnL := grossPnL - commission

	return Trade{
		Symbol:      bar.Symbol,
		Side:        pos.side,
		EntryTime:   pos.entryTime,
		ExitTime:    bar.Time,
		EntryPrice:  pos.entryPrice,
		ExitPrice:   fill,
		Quantity:    pos.quantity,
		Commission:  commission,
		PnL:         netPnL,
		PnLPct:      netPnL / (pos.entryPrice * pos.quantity),
		ExitReason:  reason,
		HoldingBars: index - pos.entryIndex,
		Reason:      pos.reason,
	}
}
