package emacross

import (
	"fmt"

	"github.com/quantified/hindcast/internal/core"
	"github.com/quantified/hindcast/internal/indicator"
)

// EMACross is an EMA crossover policy with an RSI filter. It enters long on
// a bullish fast/slow crossover, short on a bearish one, and exits on RSI
// extremes. Stops and targets are percentage offsets from the entry close.
//
// Tunable parameters (with defaults): ema_fast (12), ema_slow (26),
// rsi_period (14), rsi_oversold (30), rsi_overbought (70),
// stop_loss_pct (0.02), take_profit_pct (0.04).
type EMACross struct{}

// New creates the EMA crossover policy.
func New() *EMACross {
	return &EMACross{}
}

func (s *EMACross) Name() string {
	return "ema_crossover"
}

func (s *EMACross) Description() string {
	return "EMA fast/slow crossover with RSI filter"
}

func (s *EMACross) Evaluate(bars []core.Bar, params core.Params) (core.Signal, error) {
	fast := params.GetInt("ema_fast", 12)
	slow := params.GetInt("ema_slow", 26)
	rsiPeriod := params.GetInt("rsi_period", 14)
	oversold := params.Get("rsi_oversold", 30)
	overbought := params.Get("rsi_overbought", 70)

	if fast <= 0 || slow <= fast {
		return core.Signal{}, core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("ema_fast=%d ema_slow=%d", fast, slow))
	}
	if len(bars) < slow+2 || len(bars) <= rsiPeriod {
		return core.Signal{Action: core.ActionNone}, nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	fastEMA := indicator.EMA(closes, fast)
	slowEMA := indicator.EMA(closes, slow)
	rsi := indicator.RSI(closes, rsiPeriod)
	if len(fastEMA) < 2 || len(slowEMA) < 2 || len(rsi) == 0 {
		return core.Signal{Action: core.ActionNone}, nil
	}

	close := closes[len(closes)-1]
	currFast := fastEMA[len(fastEMA)-1]
	currRSI := rsi[len(rsi)-1]

	stopPct := params.Get("stop_loss_pct", 0.02)
	takePct := params.Get("take_profit_pct", 0.04)

	switch {
	case indicator.CrossUp(fastEMA, slowEMA) && currRSI < overbought && close > currFast:
		return core.Signal{
			Action:     core.ActionEnterLong,
			StopLoss:   close * (1 - stopPct),
			TakeProfit: close * (1 + takePct),
			Reason:     fmt.Sprintf("EMA %d/%d bullish crossover, RSI %.1f", fast, slow, currRSI),
		}, nil

	case indicator.CrossDown(fastEMA, slowEMA) && currRSI > oversold && close < currFast:
		return core.Signal{
			Action:     core.ActionEnterShort,
			StopLoss:   close * (1 + stopPct),
			TakeProfit: close * (1 - takePct),
			Reason:     fmt.Sprintf("EMA %d/%d bearish crossover, RSI %.1f", fast, slow, currRSI),
		}, nil

	case currRSI > overbought || currRSI < oversold:
		return core.Signal{
			Action: core.ActionExit,
			Reason: fmt.Sprintf("RSI extreme %.1f", currRSI),
		}, nil
	}

	return core.Signal{Action: core.ActionNone}, nil
}
