// Package domain defines the core value types shared across the simulation
// engine: price bars, signals, positions, fills, and regimes.
package domain

import (
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Market identifies the exchange group a symbol trades on.
type Market string

// MarketUS is the market the daily gatherer writes to.
const MarketUS Market = "us"

// Indicator names attached to a Bar by the upstream enrichment step.
const (
	IndRSI             = "rsi"
	IndMAShort         = "ma_short"
	IndMALong          = "ma_long"
	IndATR             = "atr"
	IndVolumeRatio     = "volume_ratio"
	IndVolatilityRatio = "volatility_ratio"
	IndSentiment       = "sentiment"
)

// Indicators holds precomputed indicator values keyed by name. A missing key
// means the value could not be computed for that bar.
type Indicators map[string]float64

// Get returns the named indicator and whether it is present.
func (ind Indicators) Get(name string) (float64, bool) {
	v, ok := ind[name]
	return v, ok
}

// Bar is a single daily OHLCV bar with its derived indicators. Bars are
// immutable once produced.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
	Indicators Indicators
}

// Indicator is a shorthand for b.Indicators.Get(name).
func (b Bar) Indicator(name string) (float64, bool) {
	return b.Indicators.Get(name)
}

// Series maps a symbol to its bars in strictly increasing timestamp order.
type Series map[string][]Bar

// Slice is the read-only view handed to strategies for a single period. Each
// history ends at Date; symbols without a bar on Date are absent.
type Slice struct {
	Date    time.Time
	History map[string][]Bar
}

// Latest returns the most recent bar for symbol within the slice.
func (s Slice) Latest(symbol string) (Bar, bool) {
	h := s.History[symbol]
	if len(h) == 0 {
		return Bar{}, false
	}
	return h[len(h)-1], true
}

// ---------------------------------------------------------------------------
// Signals and fills
// ---------------------------------------------------------------------------

// Side is the direction of a signal or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Signal is a proposed action emitted by exactly one strategy.
type Signal struct {
	Strategy   string
	Symbol     string
	Side       Side
	Shares     int64
	Price      float64 // reference (quoted) price
	Confidence float64 // in [0, 1]
	Reason     string
	Synthetic  bool
	InjectedAt time.Time
}

// Fill is a realised execution derived from a Signal and the cost model.
type Fill struct {
	ID             string
	Strategy       string
	Symbol         string
	Side           Side
	Shares         int64
	QuotedPrice    float64
	ExecutionPrice float64
	SlippageCost   float64
	CommissionCost float64
	TotalCost      float64
	Timestamp      time.Time
	Reason         string
	Synthetic      bool
	StopLoss       bool
	RealizedPnL    float64 // set on exits, net of entry and exit costs
}

// Notional returns shares multiplied by the execution price.
func (f Fill) Notional() float64 {
	return float64(f.Shares) * f.ExecutionPrice
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// Position is a single strategy's holding in one symbol. AvgCost is the
// quoted reference price; execution costs are accounted separately.
type Position struct {
	Strategy   string
	Symbol     string
	Shares     int64
	AvgCost    float64
	EntryCosts float64 // slippage + commission paid on entries still held
	EntryTime  time.Time
	DaysHeld   int
}

// MarketValue returns the position marked at price.
func (p Position) MarketValue(price float64) float64 {
	return float64(p.Shares) * price
}

// UnrealizedPnL returns the mark-to-market gain against the quoted cost basis.
func (p Position) UnrealizedPnL(price float64) float64 {
	return float64(p.Shares) * (price - p.AvgCost)
}

// ---------------------------------------------------------------------------
// Regimes
// ---------------------------------------------------------------------------

// Regime is a coarse classification of recent market behaviour.
type Regime string

const (
	RegimeUnknown  Regime = "unknown"
	RegimeTrending Regime = "trending"
	RegimeChoppy   Regime = "choppy"
	RegimeVolatile Regime = "volatile"
	RegimeQuiet    Regime = "quiet"
)
