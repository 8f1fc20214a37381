package engine

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"quantfolio/internal/domain"
	"quantfolio/internal/indicator"
)

// tradingDaysPerYear annualises the Sharpe ratio.
const tradingDaysPerYear = 252

// EquityPoint is the portfolio marked at the close of one period.
type EquityPoint struct {
	Date      time.Time `json:"date"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
	Positions int       `json:"positions"`
}

// Rejection records a signal that did not execute and the stage that
// stopped it.
type Rejection struct {
	Date     time.Time   `json:"date"`
	Stage    string      `json:"stage"` // regime, correlation or risk
	Strategy string      `json:"strategy"`
	Symbol   string      `json:"symbol"`
	Side     domain.Side `json:"side"`
	Shares   int64       `json:"shares"`
	Reason   string      `json:"reason"`
}

// Rejection stages.
const (
	StageRegime      = "regime"
	StageCorrelation = "correlation"
	StageRisk        = "risk"
)

// Result is the immutable outcome of a run.
type Result struct {
	RunID            string            `json:"run_id"`
	Start            time.Time         `json:"start"`
	End              time.Time         `json:"end"`
	InitialCapital   float64           `json:"initial_capital"`
	FinalValue       float64           `json:"final_value"`
	TotalReturn      float64           `json:"total_return"` // percent
	SharpeRatio      float64           `json:"sharpe_ratio"`
	MaxDrawdown      float64           `json:"max_drawdown"` // percent
	WinRate          float64           `json:"win_rate"`
	ProfitFactor     float64           `json:"profit_factor"`
	TotalCosts       float64           `json:"total_costs"`
	TradesByStrategy map[string]int    `json:"trades_by_strategy"`
	Fills            []domain.Fill     `json:"fills"`
	Rejections       []Rejection       `json:"rejections"`
	EquityCurve      []EquityPoint     `json:"equity_curve"`
	Positions        []domain.Position `json:"open_positions"`
	GuardrailChecks  []GuardrailCheck  `json:"guardrail_checks"`
	Trusted          bool              `json:"trusted"`
}

// Summary is the compact record consumed by report generators.
type Summary struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalValue     float64 `json:"final_value"`
	TotalReturn    float64 `json:"total_return"`
	TotalTrades    int     `json:"total_trades"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdown    float64 `json:"max_drawdown"`
}

// TotalTrades returns the number of fills, stop exits included.
func (r *Result) TotalTrades() int {
	return len(r.Fills)
}

// Summary returns the compact view of the result.
func (r *Result) Summary() Summary {
	return Summary{
		InitialCapital: r.InitialCapital,
		FinalValue:     r.FinalValue,
		TotalReturn:    r.TotalReturn,
		TotalTrades:    r.TotalTrades(),
		SharpeRatio:    r.SharpeRatio,
		MaxDrawdown:    r.MaxDrawdown,
	}
}

// SummaryJSON encodes the summary.
func (r *Result) SummaryJSON() ([]byte, error) {
	return json.MarshalIndent(r.Summary(), "", "  ")
}

// Recorder is an opaque sink for fills and results. Recorder errors are
// logged by the backtester and never abort a run.
type Recorder interface {
	RecordFill(ctx context.Context, runID string, fill domain.Fill) error
	RecordResult(ctx context.Context, result *Result) error
}

type nopRecorder struct{}

func (nopRecorder) RecordFill(context.Context, string, domain.Fill) error { return nil }
func (nopRecorder) RecordResult(context.Context, *Result) error           { return nil }

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// equitySeries prepends the initial capital to the curve.
func equitySeries(initial float64, curve []EquityPoint) []float64 {
	out := make([]float64, 0, len(curve)+1)
	out = append(out, initial)
	for _, p := range curve {
		out = append(out, p.Equity)
	}
	return out
}

// SharpeRatio returns the annualised Sharpe ratio of period returns with a
// zero risk-free rate. Flat or too-short series yield 0.
func SharpeRatio(equity []float64) float64 {
	rets := indicator.Returns(equity)
	if len(rets) < 2 {
		return 0
	}
	mean, std := indicator.MeanStd(rets)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// MaxDrawdown returns the largest peak-to-trough decline in percent.
func MaxDrawdown(equity []float64) float64 {
	peak, worst := 0.0, 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// tradeStats returns the share of winning exits and gross wins over gross
// losses. Profit factor is 0 when there are no losing exits.
func tradeStats(fills []domain.Fill) (winRate, profitFactor float64) {
	var exits, wins int
	var won, lost float64
	for _, f := range fills {
		if f.Side != domain.SideSell {
			continue
		}
		exits++
		if f.RealizedPnL > 0 {
			wins++
			won += f.RealizedPnL
		} else {
			lost -= f.RealizedPnL
		}
	}
	if exits > 0 {
		winRate = float64(wins) / float64(exits)
	}
	if lost > 0 {
		profitFactor = won / lost
	}
	return winRate, profitFactor
}
