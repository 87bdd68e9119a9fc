package core

import (
	"math"
	"time"
)

// Bar represents one OHLCV observation for a fixed interval.
// Bars are owned by the caller and treated as read-only by the engine.
type Bar struct {
	Symbol   string
	Interval string // "1m", "15m", "1d"
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Time     time.Time

	// Extra holds preprocessor-derived fields (indicator values etc.) that
	// the engine never computes or interprets itself.
	Extra map[string]float64
}

// IsValid checks if the bar has required fields.
func (b Bar) IsValid() bool {
	return b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0 && !b.Time.IsZero()
}

// Params maps strategy parameter names to numeric values. A Params instance
// is fixed for the duration of one simulation run; concurrent runs must each
// receive their own copy (see Clone).
type Params map[string]float64

// Get returns the value for key, or def when the key is absent.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// GetInt returns the value for key rounded to the nearest int.
func (p Params) GetInt(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(math.Round(v))
	}
	return def
}

// Clone returns an independent copy of the parameter set.
func (p Params) Clone() Params {
	clone := make(Params, len(p))
	for k, v := range p {
		clone[k] = v
	}
	return clone
}

// Side represents the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Action is the decision a strategy emits for one bar. At most one action is
// ever set; a signal is never both an entry and an exit.
type Action string

const (
	ActionNone       Action = "none"
	ActionEnterLong  Action = "enter_long"
	ActionEnterShort Action = "enter_short"
	ActionExit       Action = "exit"
)

// Signal is the strategy output for one evaluation point.
type Signal struct {
	Action     Action
	StopLoss   float64 // 0 = not set
	TakeProfit float64 // 0 = not set
	Reason     string
}

// IsEntry returns true if the signal requests opening a position.
func (s Signal) IsEntry() bool {
	return s.Action == ActionEnterLong || s.Action == ActionEnterShort
}

// IsExit returns true if the signal requests closing the open position.
func (s Signal) IsExit() bool {
	return s.Action == ActionExit
}

// EntrySide returns the position side an entry signal requests.
func (s Signal) EntrySide() Side {
	if s.Action == ActionEnterShort {
		return SideShort
	}
	return SideLong
}
