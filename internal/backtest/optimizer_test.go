package backtest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/quantified/hindcast/internal/core"
	"github.com/quantified/hindcast/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trendBars builds n bars rising by step per bar.
func trendBars(n int, start, step float64) []core.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, n)
	for i := range bars {
		price := start + float64(i)*step
		bars[i] = core.Bar{
			Symbol: "BTC/USDT", Interval: "15m",
			Open: price, High: price, Low: price, Close: price, Volume: 1000,
			Time: t0.Add(time.Duration(i) * 15 * time.Minute),
		}
	}
	return bars
}

// holdStrategy enters long at the first tradeable bar and rides the trend for
// params["hold"] bars: on rising bars, a longer hold earns a higher return.
var holdStrategy = strategy.Func{
	StrategyName: "hold_n",
	Fn: func(bars []core.Bar, params core.Params) (core.Signal, error) {
		if params.Get("fail", 0) > 0 {
			return core.Signal{}, fmt.Errorf("forced trial failure")
		}
		if params.Get("skip", 0) > 0 {
			return core.Signal{Action: core.ActionNone}, nil
		}
		idx := len(bars) - 1
		entry := 50
		hold := int(params.Get("hold", 5))
		switch {
		case idx == entry:
			return core.Signal{Action: core.ActionEnterLong}, nil
		case idx == entry+hold:
			return core.Signal{Action: core.ActionExit}, nil
		}
		return core.Signal{Action: core.ActionNone}, nil
	},
}

func optimizerConfig() Config {
	cfg := DefaultConfig()
	cfg.SlippageRate = 0
	cfg.CommissionRate = 0
	cfg.MaxHoldingBars = 100
	return cfg
}

func TestSearch_GridCompleteness(t *testing.T) {
	opt := NewOptimizer(optimizerConfig(), nil)
	space := NewGridSpace(map[string][]float64{
		"skip": {1},
		"a":    {1, 2, 3},
		"b":    {4, 5},
	})

	trials, err := opt.Search(context.Background(), trendBars(200, 100, 0), holdStrategy, space)
	require.NoError(t, err)

	// Grid of size K yields exactly K trials.
	require.Len(t, trials, 6)
	for i, trial := range trials {
		assert.Equal(t, i+1, trial.Rank)
		assert.NoError(t, trial.Err)
		require.NotNil(t, trial.Metrics)
		assert.Equal(t, 0, trial.Metrics.TotalTrades)
	}
	// Scores are non-increasing.
	for i := 1; i < len(trials); i++ {
		assert.GreaterOrEqual(t, trials[i-1].Score, trials[i].Score)
	}
}

func TestSearch_RanksByScore(t *testing.T) {
	opt := NewOptimizer(optimizerConfig(), MaximizeTotalReturn)
	opt.SetParallelism(4)

	space := NewGridSpace(map[string][]float64{
		"hold": {2, 10, 25},
	})

	trials, err := opt.Search(context.Background(), trendBars(200, 100, 1), holdStrategy, space)
	require.NoError(t, err)
	require.Len(t, trials, 3)

	// Longer holds ride the uptrend further: best first.
	assert.Equal(t, 25.0, trials[0].Params["hold"])
	assert.Equal(t, 10.0, trials[1].Params["hold"])
	assert.Equal(t, 2.0, trials[2].Params["hold"])
	assert.Greater(t, trials[0].Score, trials[2].Score)
}

func TestSearch_SentinelPropagation(t *testing.T) {
	opt := NewOptimizer(optimizerConfig(), MaximizeTotalReturn)
	space := NewGridSpace(map[string][]float64{
		"fail": {0, 1},
		"hold": {5},
	})

	trials, err := opt.Search(context.Background(), trendBars(200, 100, 1), holdStrategy, space)
	require.NoError(t, err)
	require.Len(t, trials, 2, "failed trials must be retained, not dropped")

	last := trials[len(trials)-1]
	assert.Error(t, last.Err)
	assert.True(t, math.IsInf(last.Score, -1), "failed trial score must be -Inf")
	assert.Nil(t, last.Metrics)

	assert.NoError(t, trials[0].Err)
}

func TestSearch_InsufficientDataBecomesSentinel(t *testing.T) {
	cfg := optimizerConfig()
	cfg.WarmupBars = 500 // more warmup than bars: every run fails

	opt := NewOptimizer(cfg, nil)
	space := NewGridSpace(map[string][]float64{"hold": {1, 2}})

	trials, err := opt.Search(context.Background(), trendBars(200, 100, 1), holdStrategy, space)
	require.NoError(t, err, "per-trial failures must not abort the search")
	require.Len(t, trials, 2)
	for _, trial := range trials {
		assert.True(t, math.IsInf(trial.Score, -1))
		assert.ErrorIs(t, trial.Err, core.ErrInsufficientData)
	}
}

func TestSearch_EmptyInputs(t *testing.T) {
	opt := NewOptimizer(optimizerConfig(), nil)

	_, err := opt.Search(context.Background(), nil, holdStrategy, NewGridSpace(map[string][]float64{"hold": {1}}))
	assert.ErrorIs(t, err, core.ErrNoData)

	_, err = opt.Search(context.Background(), trendBars(200, 100, 1), holdStrategy, Space{})
	assert.ErrorIs(t, err, core.ErrEmptySpace)
}

func TestSearch_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := NewOptimizer(optimizerConfig(), nil)
	space := NewGridSpace(map[string][]float64{"hold": {1, 2, 3}})

	trials, err := opt.Search(ctx, trendBars(200, 100, 1), holdStrategy, space)
	require.NoError(t, err, "cancellation returns completed trials, not an error")
	assert.Empty(t, trials, "nothing was scheduled before cancellation")
}

func TestSearch_DeterministicAcrossRuns(t *testing.T) {
	space := NewRandomSpace(map[string]Range{
		"hold": {Min: 1, Max: 40},
	}, 16, 7)
	bars := trendBars(200, 100, 1)

	run := func() []Trial {
		opt := NewOptimizer(optimizerConfig(), MaximizeTotalReturn)
		opt.SetParallelism(8)
		trials, err := opt.Search(context.Background(), bars, holdStrategy, space)
		require.NoError(t, err)
		return trials
	}

	first := run()
	second := run()

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Params, second[i].Params, "trial %d params differ", i)
		assert.Equal(t, first[i].Score, second[i].Score, "trial %d score differs", i)
	}
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordTrial(status string, duration float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[status]++
}

func TestSearch_RecordsTrials(t *testing.T) {
	rec := &countingRecorder{}
	opt := NewOptimizer(optimizerConfig(), nil)
	opt.SetRecorder(rec)

	space := NewGridSpace(map[string][]float64{"fail": {0, 0, 1}, "hold": {5}})

	_, err := opt.Search(context.Background(), trendBars(200, 100, 1), holdStrategy, space)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 2, rec.counts["completed"])
	assert.Equal(t, 1, rec.counts["failed"])
}

func TestDefaultObjective_Weights(t *testing.T) {
	m := Metrics{
		TotalReturn:  0.5,
		SharpeRatio:  2.0,
		ProfitFactor: 3.0,
		WinRate:      0.6,
		MaxDrawdown:  0.2,
	}
	// 0.30*0.5 + 0.25*2.0 + 0.20*3.0 + 0.10*0.6 - 0.15*0.2
	want := 0.15 + 0.5 + 0.6 + 0.06 - 0.03
	assert.InDelta(t, want, DefaultObjective(m), 1e-9)
}
