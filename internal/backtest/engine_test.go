package backtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/quantified/hindcast/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptStrategy emits a fixed signal at specific absolute bar indices and
// holds otherwise. It is pure in the bars it is given.
type scriptStrategy struct {
	signals map[int]core.Signal
	failAt  int // bar index that returns an error; -1 disables
}

func newScript(signals map[int]core.Signal) *scriptStrategy {
	return &scriptStrategy{signals: signals, failAt: -1}
}

func (s *scriptStrategy) Name() string        { return "script" }
func (s *scriptStrategy) Description() string { return "scripted test strategy" }

func (s *scriptStrategy) Evaluate(bars []core.Bar, params core.Params) (core.Signal, error) {
	idx := len(bars) - 1
	if idx == s.failAt {
		return core.Signal{}, fmt.Errorf("scripted failure at bar %d", idx)
	}
	if sig, ok := s.signals[idx]; ok {
		return sig, nil
	}
	return core.Signal{Action: core.ActionNone}, nil
}

// flatBars builds n identical bars at the given price.
func flatBars(n int, price float64) []core.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, n)
	for i := range bars {
		bars[i] = core.Bar{
			Symbol: "BTC/USDT", Interval: "15m",
			Open: price, High: price, Low: price, Close: price, Volume: 1000,
			Time: start.Add(time.Duration(i) * 15 * time.Minute),
		}
	}
	return bars
}

// testConfig is the deterministic baseline: no slippage so fills are exact.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SlippageRate = 0
	return cfg
}

func TestRun_InsufficientData(t *testing.T) {
	engine := NewEngine(testConfig())

	_, err := engine.Run(context.Background(), flatBars(50, 100), newScript(nil), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientData), "expected INSUFFICIENT_DATA, got %v", err)
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative commission", func(c *Config) { c.CommissionRate = -0.001 }},
		{"negative slippage", func(c *Config) { c.SlippageRate = -0.01 }},
		{"zero risk", func(c *Config) { c.RiskPerTrade = 0 }},
		{"zero balance", func(c *Config) { c.InitialBalance = 0 }},
		{"zero holding limit", func(c *Config) { c.MaxHoldingBars = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewEngine(cfg).Run(context.Background(), flatBars(200, 100), newScript(nil), nil)
			assert.True(t, errors.Is(err, core.ErrInvalidParameter), "expected INVALID_PARAMETER, got %v", err)
		})
	}
}

func TestRun_FlatMarketNoSignals(t *testing.T) {
	cfg := testConfig()
	engine := NewEngine(cfg)

	result, err := engine.Run(context.Background(), flatBars(200, 100), newScript(nil), nil)
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Len(t, result.Equity, 200-cfg.WarmupBars)
	for _, point := range result.Equity {
		assert.Equal(t, cfg.InitialBalance, point.Equity)
		assert.Equal(t, cfg.InitialBalance, point.Balance)
	}

	m := ComputeMetrics(result.Trades, result.Equity, cfg.InitialBalance)
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.TotalReturn)
	assert.Equal(t, 0.0, m.MaxDrawdown)
}

func TestRun_SingleStopLossRoundTrip(t *testing.T) {
	cfg := testConfig()
	bars := flatBars(200, 100)
	// Bar 51 trades down through the stop at 95 and closes at 94.
	bars[51].Low = 94
	bars[51].Close = 94

	strat := newScript(map[int]core.Signal{
		50: {Action: core.ActionEnterLong, StopLoss: 95},
	})

	result, err := NewEngine(cfg).Run(context.Background(), bars, strat, nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, ExitStopLoss, trade.ExitReason)
	assert.Equal(t, core.SideLong, trade.Side)
	assert.Less(t, trade.PnL, 0.0)

	// Sizing: 2% of 10000 risked over a 5-point stop distance = 40 units.
	assert.InDelta(t, 40.0, trade.Quantity, 1e-9)
	// Exit fills at the bar close, not at the stop price.
	assert.InDelta(t, 94.0, trade.ExitPrice, 1e-9)
	// PnL = (94-100)*40 - (100+94)*40*0.001
	assert.InDelta(t, -240.0-7.76, trade.PnL, 1e-9)

	assert.InDelta(t, cfg.InitialBalance+trade.PnL, result.FinalEquity(), 1e-9)
}

func TestRun_TakeProfit(t *testing.T) {
	cfg := testConfig()
	bars := flatBars(200, 100)
	bars[53].High = 106
	bars[53].Close = 106

	strat := newScript(map[int]core.Signal{
		50: {Action: core.ActionEnterLong, StopLoss: 95, TakeProfit: 105},
	})

	result, err := NewEngine(cfg).Run(context.Background(), bars, strat, nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, ExitTakeProfit, trade.ExitReason)
	assert.Greater(t, trade.PnL, 0.0)
	assert.Equal(t, 3, trade.HoldingBars)
}

func TestRun_StopLossTakesPrecedenceOverTakeProfit(t *testing.T) {
	cfg := testConfig()
	bars := flatBars(200, 100)
	// One wild bar that breaches both levels: the stop must win.
	bars[52].Low = 90
	bars[52].High = 110

	strat := newScript(map[int]core.Signal{
		50: {Action: core.ActionEnterLong, StopLoss: 95, TakeProfit: 105},
	})

	result, err := NewEngine(cfg).Run(context.Background(), bars, strat, nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitStopLoss, result.Trades[0].ExitReason)
}

func TestRun_SignalExit(t *testing.T) {
	cfg := testConfig()
	bars := flatBars(200, 100)

	strat := newScript(map[int]core.Signal{
		50: {Action: core.ActionEnterLong}, // no stop: sized as risk/price
		55: {Action: core.ActionExit},
	})

	result, err := NewEngine(cfg).Run(context.Background(), bars, strat, nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, ExitSignal, trade.ExitReason)
	assert.Equal(t, 5, trade.HoldingBars)
	// Flat prices: the only loss is round-trip commission.
	assert.InDelta(t, -(100.0+100.0)*2.0*0.001, trade.PnL, 1e-9)
}

func TestRun_TimeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHoldingBars = 5
	bars := flatBars(200, 100)

	strat := newScript(map[int]core.Signal{
		60: {Action: core.ActionEnterLong},
	})

	result, err := NewEngine(cfg).Run(context.Background(), bars, strat, nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, ExitTimeLimit, trade.ExitReason)
	assert.Equal(t, 6, trade.HoldingBars)
}

func TestRun_ShortTrade(t *testing.T) {
	cfg := testConfig()
	bars := flatBars(200, 100)
	// Price falls after the short entry; the short profits.
	for i := 53; i < len(bars); i++ {
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = 90, 90, 90, 90
	}

	strat := newScript(map[int]core.Signal{
		52: {Action: core.ActionEnterShort},
		54: {Action: core.ActionExit},
	})

	result, err := NewEngine(cfg).Run(context.Background(), bars, strat, nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, core.SideShort, trade.Side)
	assert.Greater(t, trade.PnL, 0.0)
}

func TestRun_SlippageAppliedAgainstTrader(t *testing.T) {
	cfg := testConfig()
	cfg.SlippageRate = 0.01
	bars := flatBars(200, 100)

	strat := newScript(map[int]core.Signal{
		50: {Action: core.ActionEnterLong},
		55: {Action: core.ActionExit},
	})

	result, err := NewEngine(cfg).Run(context.Background(), bars, strat, nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	// Long entry slips up, long exit slips down.
	assert.InDelta(t, 101.0, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 99.0, trade.ExitPrice, 1e-9)
	assert.Less(t, trade.PnL, 0.0)
}

func TestRun_ZeroStopDistanceOpensNothing(t *testing.T) {
	cfg := testConfig()
	bars := flatBars(200, 100)

	// Stop equal to the fill price: zero distance, zero quantity.
	strat := newScript(map[int]core.Signal{
		50: {Action: core.ActionEnterLong, StopLoss: 100},
	})

	result, err := NewEngine(cfg).Run(context.Background(), bars, strat, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, cfg.InitialBalance, result.FinalBalance)
}

func TestRun_AtMostOnePosition(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHoldingBars = 10
	bars := flatBars(300, 100)

	// Enter on every bar: only the first entry per cycle may be honored.
	signals := make(map[int]core.Signal, 300)
	for i := 0; i < 300; i++ {
		signals[i] = core.Signal{Action: core.ActionEnterLong}
	}

	result, err := NewEngine(cfg).Run(context.Background(), bars, newScript(signals), nil)
	require.NoError(t, err)

	// Entries honored never exceed exits plus one.
	openAtEnd := 0
	if result.FinalEquity() != result.FinalBalance {
		openAtEnd = 1
	}
	entries := len(result.Trades) + openAtEnd
	assert.LessOrEqual(t, entries, len(result.Trades)+1)

	// Trades never overlap in time.
	for i := 1; i < len(result.Trades); i++ {
		assert.False(t, result.Trades[i].EntryTime.Before(result.Trades[i-1].ExitTime),
			"trade %d entered before trade %d exited", i, i-1)
	}
}

func TestRun_EquityIdentityAndAccounting(t *testing.T) {
	cfg := testConfig()
	bars := flatBars(260, 100)
	// A drifting tail so the open position carries unrealized P&L.
	for i := 120; i < len(bars); i++ {
		price := 100 + float64(i-120)*0.5
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = price, price, price, price
	}

	strat := newScript(map[int]core.Signal{
		60:  {Action: core.ActionEnterLong},
		80:  {Action: core.ActionExit},
		130: {Action: core.ActionEnterLong},
	})

	result, err := NewEngine(cfg).Run(context.Background(), bars, strat, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)

	// Equity identity: in this scenario the open position only ever gains,
	// so marked equity never drops below the cash balance.
	for _, point := range result.Equity {
		assert.GreaterOrEqual(t, point.Equity+1e-9, point.Balance)
	}

	// Accounting round-trip: realized + final unrealized = final equity delta.
	var realized float64
	for _, trade := range result.Trades {
		realized += trade.PnL
	}
	unrealized := result.FinalEquity() - result.FinalBalance
	assert.InDelta(t, result.FinalEquity()-cfg.InitialBalance, realized+unrealized, 1e-9)
	assert.InDelta(t, cfg.InitialBalance+realized, result.FinalBalance, 1e-9)
}

func TestRun_Deterministic(t *testing.T) {
	cfg := testConfig()
	cfg.SlippageRate = 0.0002
	bars := flatBars(220, 100)
	for i := range bars {
		price := 100 + float64(i%13) - float64(i%7)
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = price, price+1, price-1, price
	}

	strat := newScript(map[int]core.Signal{
		55:  {Action: core.ActionEnterLong, StopLoss: 80},
		70:  {Action: core.ActionExit},
		90:  {Action: core.ActionEnterShort, StopLoss: 130},
		110: {Action: core.ActionExit},
	})

	first, err := NewEngine(cfg).Run(context.Background(), bars, strat, core.Params{"x": 1})
	require.NoError(t, err)
	second, err := NewEngine(cfg).Run(context.Background(), bars, strat, core.Params{"x": 1})
	require.NoError(t, err)

	assert.True(t, reflect.DeepEqual(first.Trades, second.Trades), "trades must be identical")
	assert.True(t, reflect.DeepEqual(first.Equity, second.Equity), "equity curves must be identical")
}

func TestRun_StrategyErrorAbortsRun(t *testing.T) {
	strat := newScript(nil)
	strat.failAt = 75

	_, err := NewEngine(testConfig()).Run(context.Background(), flatBars(200, 100), strat, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStrategyFailed), "expected STRATEGY_FAILED, got %v", err)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(testConfig()).Run(ctx, flatBars(200, 100), newScript(nil), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
