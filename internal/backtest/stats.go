package backtest

import (
	"math"
	"sort"
)

// Estimator conventions, fixed so metrics stay comparable across runs:
// population standard deviation (not sample), 252 annualization periods
// regardless of bar interval, 2% annual risk-free rate, and linear
// interpolation for percentiles.
const (
	annualizationFactor = 252.0
	riskFreeRate        = 0.02
)

// Metrics is the flat set of performance statistics computed once per
// completed simulation run.
type Metrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	SharpeRatio      float64
	SortinoRatio     float64
	MaxDrawdown      float64
	CalmarRatio      float64
	WinRate          float64
	ProfitFactor     float64
	Expectancy       float64
	VaR95            float64
	CVaR95           float64

	ConsecutiveWins   int
	ConsecutiveLosses int

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	GrossProfit   float64
	GrossLoss     float64
	AvgWin        float64
	AvgLoss       float64

	InitialBalance float64
	FinalBalance   float64
}

// ComputeMetrics derives performance statistics from a trade ledger and an
// equity curve. It is total: degenerate inputs produce defined sentinel
// values (zero ratios, +Inf profit factor on no losses) rather than errors,
// and an empty ledger simply reports zero trades.
func ComputeMetrics(trades []Trade, equity []EquityPoint, initialBalance float64) Metrics {
	m := Metrics{
		InitialBalance: initialBalance,
		FinalBalance:   initialBalance,
	}
	if len(equity) > 0 {
		m.FinalBalance = equity[len(equity)-1].Equity
	}
	if len(trades) == 0 {
		return m
	}

	m.TotalTrades = len(trades)
	m.TotalReturn = (m.FinalBalance - initialBalance) / initialBalance

	// Bar-to-bar returns for the risk-adjusted ratios.
	if len(equity) > 1 {
		returns := make([]float64, 0, len(equity)-1)
		excess := make([]float64, 0, len(equity)-1)
		for i := 1; i < len(equity); i++ {
			r := equity[i].Equity/equity[i-1].Equity - 1
			returns = append(returns, r)
			excess = append(excess, r-riskFreeRate/annualizationFactor)
		}

		if sd := stdDev(returns); sd > 0 {
			m.SharpeRatio = mean(excess) / sd * math.Sqrt(annualizationFactor)
		}

		var downside []float64
		for _, r := range excess {
			if r < 0 {
				downside = append(downside, r)
			}
		}
		if sd := stdDev(downside); sd > 0 {
			m.SortinoRatio = mean(excess) / sd * math.Sqrt(annualizationFactor)
		}
	}

	// Max drawdown with a running peak seeded at the initial balance.
	peak := initialBalance
	for _, point := range equity {
		if point.Equity > peak {
			peak = point.Equity
		}
		if dd := (peak - point.Equity) / peak; dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
	}

	if len(equity) > 0 {
		m.AnnualizedReturn = m.TotalReturn * annualizationFactor / float64(len(equity))
	}
	switch {
	case m.MaxDrawdown > 0:
		m.CalmarRatio = m.AnnualizedReturn / m.MaxDrawdown
	case m.AnnualizedReturn > 0:
		m.CalmarRatio = math.Inf(1)
	}

	// Per-trade statistics.
	pnls := make([]float64, len(trades))
	for i, t := range trades {
		pnls[i] = t.PnL
		if t.PnL > 0 {
			m.WinningTrades++
			m.GrossProfit += t.PnL
		} else if t.PnL < 0 {
			m.LosingTrades++
			m.GrossLoss += -t.PnL
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = m.GrossLoss / float64(m.LosingTrades)
	}
	m.Expectancy = m.WinRate*m.AvgWin - (1-m.WinRate)*m.AvgLoss

	m.VaR95 = percentile(pnls, 0.05)
	var tail []float64
	for _, p := range pnls {
		if p <= m.VaR95 {
			tail = append(tail, p)
		}
	}
	m.CVaR95 = mean(tail)

	// Longest same-outcome streaks, single forward scan.
	var winStreak, lossStreak int
	for _, t := range trades {
		if t.PnL > 0 {
			winStreak++
			lossStreak = 0
			if winStreak > m.ConsecutiveWins {
				m.ConsecutiveWins = winStreak
			}
		} else {
			lossStreak++
			winStreak = 0
			if lossStreak > m.ConsecutiveLosses {
				m.ConsecutiveLosses = lossStreak
			}
		}
	}

	return m
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev computes the population standard deviation.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// percentile computes the q-th quantile (0..1) with linear interpolation at
// rank (n-1)*q over the sorted values.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := float64(len(sorted)-1) * q
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
