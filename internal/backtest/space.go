package backtest

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/quantified/hindcast/internal/core"
)

// Range bounds one parameter for random search.
type Range struct {
	Min float64
	Max float64
}

// Space enumerates the parameter combinations an optimization explores:
// either an explicit grid (cartesian product of per-key value lists) or a
// budgeted random search drawing Trials vectors from per-key ranges.
//
// Materialization is deterministic: keys are iterated in sorted order and
// random draws come from a fixed-seed source, so the same Space always
// yields the same sequence of parameter sets.
type Space struct {
	Grid   map[string][]float64
	Ranges map[string]Range
	Trials int
	Seed   int64
}

// NewGridSpace creates an exhaustive grid space.
func NewGridSpace(grid map[string][]float64) Space {
	return Space{Grid: grid}
}

// NewRandomSpace creates a seeded random-search space with a fixed trial budget.
func NewRandomSpace(ranges map[string]Range, trials int, seed int64) Space {
	return Space{Ranges: ranges, Trials: trials, Seed: seed}
}

// Size returns the number of parameter sets the space will materialize.
func (s Space) Size() int {
	if len(s.Grid) > 0 {
		size := 1
		for _, values := range s.Grid {
			size *= len(values)
		}
		return size
	}
	if len(s.Ranges) > 0 {
		return s.Trials
	}
	return 0
}

// ParamSets materializes the deterministic sequence of parameter sets.
func (s Space) ParamSets() ([]core.Params, error) {
	switch {
	case len(s.Grid) > 0:
		return s.gridSets()
	case len(s.Ranges) > 0:
		return s.randomSets()
	default:
		return nil, core.ErrEmptySpace
	}
}

func (s Space) gridSets() ([]core.Params, error) {
	keys := make([]string, 0, len(s.Grid))
	for k, values := range s.Grid {
		if len(values) == 0 {
			return nil, core.WrapError(core.ErrEmptySpace,
				fmt.Errorf("grid key %q has no values", k))
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := []core.Params{{}}
	for _, key := range keys {
		next := make([]core.Params, 0, len(sets)*len(s.Grid[key]))
		for _, base := range sets {
			for _, v := range s.Grid[key] {
				p := base.Clone()
				p[key] = v
				next = append(next, p)
			}
		}
		sets = next
	}
	return sets, nil
}

func (s Space) randomSets() ([]core.Params, error) {
	if s.Trials <= 0 {
		return nil, core.WrapError(core.ErrEmptySpace,
			fmt.Errorf("random search needs a positive trial budget, got %d", s.Trials))
	}

	keys := make([]string, 0, len(s.Ranges))
	for k, r := range s.Ranges {
		if r.Max < r.Min {
			return nil, core.WrapError(core.ErrInvalidParameter,
				fmt.Errorf("range for %q has max %f below min %f", k, r.Max, r.Min))
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rng := rand.New(rand.NewSource(s.Seed))
	sets := make([]core.Params, s.Trials)
	for i := range sets {
		p := make(core.Params, len(keys))
		for _, key := range keys {
			r := s.Ranges[key]
			p[key] = r.Min + rng.Float64()*(r.Max-r.Min)
		}
		sets[i] = p
	}
	return sets, nil
}
