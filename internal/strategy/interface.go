package strategy

import (
	"github.com/quantified/hindcast/internal/core"
)

// Strategy defines the decision policy the simulation engine consumes.
//
// Evaluate is called once per simulated bar with the bar history up to and
// including the current bar, in increasing timestamp order. Implementations
// must be pure functions of the bars and params they are given: the result
// for bar i may not depend on anything beyond bars[i], and no state may leak
// between concurrent simulation runs.
type Strategy interface {
	Name() string
	Description() string
	Evaluate(bars []core.Bar, params core.Params) (core.Signal, error)
}

// Func adapts a plain function to the Strategy interface.
type Func struct {
	StrategyName string
	Fn           func(bars []core.Bar, params core.Params) (core.Signal, error)
}

func (f Func) Name() string {
	return f.StrategyName
}

func (f Func) Description() string {
	return f.StrategyName
}

func (f Func) Evaluate(bars []core.Bar, params core.Params) (core.Signal, error) {
	return f.Fn(bars, params)
}
