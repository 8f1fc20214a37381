package engine

import (
	"fmt"
	"math"

	"quantfolio/internal/broker"
	"quantfolio/internal/config"
	"quantfolio/internal/domain"
)

// Decision is the risk manager's verdict on one signal. When Accepted is
// true, Signal holds the possibly trimmed signal to execute; otherwise
// Reason explains the rejection.
type Decision struct {
	Accepted bool
	Signal   domain.Signal
	Reason   string
}

// RiskManager enforces portfolio-wide constraints on entries: position
// counts per strategy and per symbol, available cash, and gross leverage.
type RiskManager struct {
	maxPerStrategy int
	maxPerSymbol   int
	maxLeverage    float64
	allowPartial   bool
	costs          broker.CostModel
}

// NewRiskManager creates a RiskManager with the configured limits.
//
//   - MaxPositionsPerStrategy: open positions one strategy may hold.
//   - MaxPositionsPerSymbol: strategies that may hold the same symbol.
//   - MaxPortfolioLeverage: gross exposure over equity after the fill.
//   - AllowPartialFills: trim oversize entries instead of rejecting them.
func NewRiskManager(cfg config.Risk, costs broker.CostModel) *RiskManager {
	return &RiskManager{
		maxPerStrategy: cfg.MaxPositionsPerStrategy,
		maxPerSymbol:   cfg.MaxPositionsPerSymbol,
		maxLeverage:    cfg.MaxPortfolioLeverage,
		allowPartial:   cfg.AllowPartialFills,
		costs:          costs,
	}
}

// Check evaluates sig against the portfolio. Entries are checked in order:
// per-strategy count, per-symbol count, cash, leverage. Exits only need a
// holding and are trimmed to it.
func (rm *RiskManager) Check(sig domain.Signal, pf *Portfolio) Decision {
	reject := func(format string, args ...any) Decision {
		return Decision{Signal: sig, Reason: fmt.Sprintf(format, args...)}
	}
	if sig.Shares <= 0 {
		return reject("non-positive share count %d", sig.Shares)
	}
	if sig.Price <= 0 {
		return reject("non-positive reference price %v", sig.Price)
	}

	if sig.Side == domain.SideSell {
		held := pf.Holding(sig.Strategy, sig.Symbol)
		if held == 0 {
			return reject("%s holds no %s", sig.Strategy, sig.Symbol)
		}
		if sig.Shares > held {
			sig.Shares = held
		}
		return Decision{Accepted: true, Signal: sig}
	}

	if pf.Holding(sig.Strategy, sig.Symbol) == 0 {
		if n := pf.PositionCount(sig.Strategy); n >= rm.maxPerStrategy {
			return reject("%s already holds %d positions (max %d)", sig.Strategy, n, rm.maxPerStrategy)
		}
		if n := len(pf.Holders(sig.Symbol)); n >= rm.maxPerSymbol {
			return reject("%s already held by %d strategies (max %d)", sig.Symbol, n, rm.maxPerSymbol)
		}
	}

	cash := pf.Cash()
	if cost := -rm.costs.CashDelta(sig.Price, sig.Side, sig.Shares); cost > cash {
		if !rm.allowPartial {
			return reject("estimated cost %.2f exceeds available cash %.2f", cost, cash)
		}
		shares := rm.costs.SizeForValue(sig.Price, sig.Side, cash)
		if shares <= 0 {
			return reject("available cash %.2f cannot buy one share at %.2f", cash, sig.Price)
		}
		sig.Shares = shares
	}

	equity := pf.Equity()
	if equity <= 0 {
		return reject("non-positive equity %.2f", equity)
	}
	gross := pf.GrossExposure()
	if lev := (gross + float64(sig.Shares)*sig.Price) / equity; lev > rm.maxLeverage {
		if !rm.allowPartial {
			return reject("leverage %.2f would exceed %.2f", lev, rm.maxLeverage)
		}
		shares := int64(math.Floor((rm.maxLeverage*equity - gross) / sig.Price))
		if shares <= 0 {
			return reject("leverage at ceiling %.2f", rm.maxLeverage)
		}
		sig.Shares = min(sig.Shares, shares)
	}

	return Decision{Accepted: true, Signal: sig}
}
