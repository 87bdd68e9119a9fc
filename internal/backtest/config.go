package backtest

import (
	"fmt"

	"github.com/quantified/hindcast/internal/core"
)

// Config holds the simulation parameters of one engine run.
type Config struct {
	InitialBalance float64 // starting cash
	CommissionRate float64 // fraction of notional, charged on both legs
	SlippageRate   float64 // adverse fill adjustment, applied on both legs
	RiskPerTrade   float64 // fraction of current balance risked per entry
	MaxHoldingBars int     // forced time-based exit
	WarmupBars     int     // leading history the strategy never trades on
}

// DefaultConfig returns the simulation defaults used by the original system.
func DefaultConfig() Config {
	return Config{
		InitialBalance: 10000.0,
		CommissionRate: 0.001,
		SlippageRate:   0.0002,
		RiskPerTrade:   0.02,
		MaxHoldingBars: 50,
		WarmupBars:     50,
	}
}

// Validate rejects configurations before any simulation starts.
func (c Config) Validate() error {
	if c.InitialBalance <= 0 {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("initial_balance must be positive, got %f", c.InitialBalance))
	}
	if c.CommissionRate < 0 {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("commission_rate must not be negative, got %f", c.CommissionRate))
	}
	if c.SlippageRate < 0 {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("slippage_rate must not be negative, got %f", c.SlippageRate))
	}
	if c.RiskPerTrade <= 0 {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("risk_per_trade must be positive, got %f", c.RiskPerTrade))
	}
	if c.MaxHoldingBars <= 0 {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("max_holding_bars must be positive, got %d", c.MaxHoldingBars))
	}
	if c.WarmupBars < 0 {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("warmup_bars must not be negative, got %d", c.WarmupBars))
	}
	return nil
}
