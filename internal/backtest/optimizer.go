package backtest

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/quantified/hindcast/internal/core"
	"github.com/quantified/hindcast/internal/strategy"
	"go.uber.org/zap"
)

// Objective maps a trial's metrics to a scalar fitness score (higher is better).
type Objective func(Metrics) float64

// DefaultObjective is the composite score used when no objective is supplied:
// 0.30*total_return + 0.25*sharpe + 0.20*profit_factor + 0.10*win_rate
// - 0.15*max_drawdown.
var DefaultObjective Objective = func(m Metrics) float64 {
	return 0.30*m.TotalReturn +
		0.25*m.SharpeRatio +
		0.20*m.ProfitFactor +
		0.10*m.WinRate -
		0.15*m.MaxDrawdown
}

// Predefined single-metric objectives.
var (
	MaximizeSharpe Objective = func(m Metrics) float64 { return m.SharpeRatio }

	MaximizeSortino Objective = func(m Metrics) float64 { return m.SortinoRatio }

	MaximizeCalmar Objective = func(m Metrics) float64 { return m.CalmarRatio }

	MaximizeTotalReturn Objective = func(m Metrics) float64 { return m.TotalReturn }

	MinimizeDrawdown Objective = func(m Metrics) float64 { return -m.MaxDrawdown }
)

// Trial pairs one parameter set with its simulation outcome. A trial whose
// run failed carries the error and a score of -Inf; it is ranked last but
// never dropped from the output.
type Trial struct {
	Params  core.Params
	Metrics *Metrics
	Score   float64
	Rank    int
	Err     error
}

// Recorder receives per-trial instrumentation events. Implemented by
// metrics.Registry; a nil Recorder disables recording.
type Recorder interface {
	RecordTrial(status string, duration float64)
}

// Optimizer searches a parameter space by running one independent
// engine+metrics pass per parameter set, in parallel.
type Optimizer struct {
	config    Config
	objective Objective
	workers   int
	logger    *zap.Logger
	recorder  Recorder
}

// NewOptimizer creates an optimizer with the given simulation config and
// objective. A nil objective falls back to DefaultObjective.
func NewOptimizer(config Config, objective Objective) *Optimizer {
	if objective == nil {
		objective = DefaultObjective
	}
	return &Optimizer{
		config:    config,
		objective: objective,
		workers:   runtime.NumCPU(),
		logger:    zap.NewNop(),
	}
}

// SetParallelism bounds the number of concurrently running trials.
func (o *Optimizer) SetParallelism(n int) {
	if n > 0 {
		o.workers = n
	}
}

// SetLogger injects a logger for progress reporting.
func (o *Optimizer) SetLogger(logger *zap.Logger) {
	if logger != nil {
		o.logger = logger
	}
}

// SetRecorder injects a trial instrumentation sink.
func (o *Optimizer) SetRecorder(r Recorder) {
	o.recorder = r
}

// Search runs one trial per parameter set in the space and returns all
// completed trials sorted by descending score, ties broken by materialization
// order. Trials share the bar series read-only; no state crosses trials.
//
// Cancelling ctx stops the scheduling of new trials; trials already completed
// are still returned.
func (o *Optimizer) Search(ctx context.Context, bars []core.Bar, strat strategy.Strategy, space Space) ([]Trial, error) {
	if len(bars) == 0 {
		return nil, core.ErrNoData
	}
	paramSets, err := space.ParamSets()
	if err != nil {
		return nil, err
	}

	o.logger.Info("starting parameter search",
		zap.String("strategy", strat.Name()),
		zap.Int("trials", len(paramSets)),
		zap.Int("workers", o.workers),
	)

	type indexed struct {
		idx   int
		trial Trial
	}

	resultCh := make(chan indexed, len(paramSets))
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	scheduled := 0
	for i, params := range paramSets {
		if ctx.Err() != nil {
			o.logger.Warn("search cancelled, returning completed trials",
				zap.Int("scheduled", scheduled),
				zap.Int("total", len(paramSets)),
			)
			break
		}
		scheduled++

		wg.Add(1)
		go func(idx int, ps core.Params) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			resultCh <- indexed{idx: idx, trial: o.runTrial(ctx, bars, strat, ps)}
		}(i, params)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Fan-in: a single collector owns the result slice, so workers never
	// share mutable state.
	byIndex := make(map[int]Trial, scheduled)
	for res := range resultCh {
		byIndex[res.idx] = res.trial
	}

	trials := make([]Trial, 0, scheduled)
	failed := 0
	for i := 0; i < len(paramSets); i++ {
		if trial, ok := byIndex[i]; ok {
			trials = append(trials, trial)
			if trial.Err != nil {
				failed++
			}
		}
	}

	sort.SliceStable(trials, func(i, j int) bool {
		return trials[i].Score > trials[j].Score
	})
	for i := range trials {
		trials[i].Rank = i + 1
	}

	o.logger.Info("parameter search complete",
		zap.Int("completed", len(trials)),
		zap.Int("failed", failed),
	)

	return trials, nil
}

// runTrial executes one engine+metrics pass. Errors are converted into a
// sentinel-scored trial instead of aborting the search.
func (o *Optimizer) runTrial(ctx context.Context, bars []core.Bar, strat strategy.Strategy, params core.Params) Trial {
	start := time.Now()

	engine := NewEngine(o.config)
	result, err := engine.Run(ctx, bars, strat, params)
	if err != nil {
		o.logger.Debug("trial failed", zap.Error(err))
		o.record("failed", start)
		return Trial{Params: params, Score: math.Inf(-1), Err: err}
	}

	m := ComputeMetrics(result.Trades, result.Equity, o.config.InitialBalance)
	o.record("completed", start)

	return Trial{
		Params:  params,
		Metrics: &m,
		Score:   o.objective(m),
	}
}

func (o *Optimizer) record(status string, start time.Time) {
	if o.recorder != nil {
		o.recorder.RecordTrial(status, time.Since(start).Seconds())
	}
}
