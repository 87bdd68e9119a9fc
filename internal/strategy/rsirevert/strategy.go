package rsirevert

import (
	"fmt"

	"github.com/quantified/hindcast/internal/core"
	"github.com/quantified/hindcast/internal/indicator"
)

// RSIRevert is a mean-reversion policy: it buys oversold, shorts overbought,
// and exits once RSI returns to the neutral zone.
//
// Tunable parameters (with defaults): rsi_period (14), rsi_oversold (30),
// rsi_overbought (70), stop_loss_pct (0.03), take_profit_pct (0.06).
type RSIRevert struct{}

// New creates the RSI mean-reversion policy.
func New() *RSIRevert {
	return &RSIRevert{}
}

func (s *RSIRevert) Name() string {
	return "rsi_mean_reversion"
}

func (s *RSIRevert) Description() string {
	return "RSI mean reversion with neutral-zone exit"
}

func (s *RSIRevert) Evaluate(bars []core.Bar, params core.Params) (core.Signal, error) {
	period := params.GetInt("rsi_period", 14)
	oversold := params.Get("rsi_oversold", 30)
	overbought := params.Get("rsi_overbought", 70)

	if period <= 0 {
		return core.Signal{}, core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("rsi_period=%d", period))
	}
	if len(bars) <= period {
		return core.Signal{Action: core.ActionNone}, nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	rsi := indicator.RSI(closes, period)
	if len(rsi) == 0 {
		return core.Signal{Action: core.ActionNone}, nil
	}
	curr := rsi[len(rsi)-1]
	close := closes[len(closes)-1]

	stopPct := params.Get("stop_loss_pct", 0.03)
	takePct := params.Get("take_profit_pct", 0.06)

	switch {
	case curr < oversold:
		return core.Signal{
			Action:     core.ActionEnterLong,
			StopLoss:   close * (1 - stopPct),
			TakeProfit: close * (1 + takePct),
			Reason:     fmt.Sprintf("RSI oversold %.1f", curr),
		}, nil

	case curr > overbought:
		return core.Signal{
			Action:     core.ActionEnterShort,
			StopLoss:   close * (1 + stopPct),
			TakeProfit: close * (1 - takePct),
			Reason:     fmt.Sprintf("RSI overbought %.1f", curr),
		}, nil

	case curr > 40 && curr < 60:
		return core.Signal{
			Action: core.ActionExit,
			Reason: fmt.Sprintf("RSI neutral %.1f", curr),
		}, nil
	}

	return core.Signal{Action: core.ActionNone}, nil
}
