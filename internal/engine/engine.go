// Package engine runs the multi-strategy simulation: it walks the price
// series period by period, filters and sizes strategy signals, executes
// them through the simulator broker, and tracks the authoritative portfolio
// state and its invariants.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quantfolio/internal/broker"
	"quantfolio/internal/config"
	"quantfolio/internal/correlation"
	"quantfolio/internal/domain"
	"quantfolio/internal/metrics"
	"quantfolio/internal/regime"
	"quantfolio/internal/strategy"
)

var (
	// ErrEmptySeries is returned when there are no bars in the run's range.
	ErrEmptySeries = errors.New("price series has no bars in range")
	// ErrNonMonotonic is returned when a symbol's bars are not strictly
	// increasing in time.
	ErrNonMonotonic = errors.New("price series is not strictly increasing")
	// ErrUnknownStrategy is returned when a signal names an unregistered
	// strategy.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrAlreadyRun is returned when Run is called twice on one Backtester.
	ErrAlreadyRun = errors.New("backtester has already run")
)

// Backtester orchestrates a run. Strategies keep state across periods, so a
// Backtester runs once.
type Backtester struct {
	cfg      *config.Config
	registry *strategy.Registry
	broker   *broker.SimulatorBroker
	risk     *RiskManager
	stops    *StopManager
	detector *regime.Detector
	gate     *regime.Gate
	filter   *correlation.Filter
	injector *Injector
	recorder Recorder
	log      *slog.Logger
	ran      bool
}

// NewBacktester validates cfg and wires every component. Configuration
// errors are fatal here so a run never starts with undefined safety limits.
func NewBacktester(cfg *config.Config, registry *strategy.Registry, logger *slog.Logger) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if registry == nil || registry.Len() == 0 {
		return nil, errors.New("no strategies registered")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "backtester")
	costs := broker.NewCostModel(cfg.Costs.SlippageBps, cfg.Costs.CommissionPerShare)

	return &Backtester{
		cfg:      cfg,
		registry: registry,
		broker:   broker.NewSimulatorBroker(costs),
		risk:     NewRiskManager(cfg.Risk, costs),
		stops:    NewStopManager(cfg.Stops.ATRMultiplier, log),
		detector: regime.NewDetector(cfg.Regime),
		gate:     regime.NewGate(cfg.Regime.Rules),
		filter:   correlation.NewFilter(cfg.Correlation),
		injector: NewInjector(cfg.Injection, log),
		recorder: nopRecorder{},
		log:      log,
	}, nil
}

// SetRecorder installs a sink that receives every fill and the final result.
func (b *Backtester) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	b.recorder = r
}

// signalSource produces the candidate signals for one period.
type signalSource func(ctx context.Context, period int, slice domain.Slice) ([]domain.Signal, error)

// run carries the mutable state of one Run call.
type run struct {
	id         string
	portfolio  *Portfolio
	fills      []domain.Fill
	rejections []Rejection
	stopExits  int
}

// Run simulates every period of series within the configured date range and
// returns the result. It fails only on malformed input or a bookkeeping
// fault; filtering outcomes are reported as rejections.
func (b *Backtester) Run(ctx context.Context, series domain.Series) (*Result, error) {
	if b.ran {
		return nil, ErrAlreadyRun
	}
	b.ran = true

	start, end, err := b.cfg.DateRange()
	if err != nil {
		return nil, err
	}
	if err := ValidateSeries(series); err != nil {
		return nil, err
	}
	periods := Periods(series, start, end)
	if len(periods) == 0 {
		return nil, ErrEmptySeries
	}

	r := &run{id: uuid.NewString(), portfolio: NewPortfolio(b.cfg.Backtest.InitialCapital)}
	log := b.log.With("run", r.id)
	b.broker.SetBooker(b.book(r))

	// The signal source is chosen once; injection never toggles mid-run.
	source := b.strategySignals
	if b.injector.Enabled() {
		log.Warn("SIGNAL INJECTION ENABLED: strategy signals are replaced with synthetic ones; results are for pipeline validation only")
		source = b.injectedSignals
	}

	log.Info("starting backtest",
		"periods", len(periods),
		"symbols", len(series),
		"strategies", b.registry.List(),
		"first", periods[0].Format(config.DateLayout),
		"last", periods[len(periods)-1].Format(config.DateLayout),
	)

	var (
		curve  []EquityPoint
		checks []GuardrailCheck
	)
	cursor := make(map[string]int, len(series))
	win := window{start: periods[0], startEquity: r.portfolio.Equity()}
	windowLen := b.cfg.Guardrail.WindowPeriods

	for i, date := range periods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slice := sliceAt(series, cursor, date)
		for sym := range slice.History {
			bar, _ := slice.Latest(sym)
			r.portfolio.Mark(sym, bar.Close)
		}
		day := date
		b.broker.SetClock(func() time.Time { return day })

		if err := b.step(ctx, r, i, slice, source, log); err != nil {
			return nil, fmt.Errorf("period %s: %w", date.Format(config.DateLayout), err)
		}

		equity := r.portfolio.Equity()
		curve = append(curve, EquityPoint{
			Date:      date,
			Equity:    equity,
			Cash:      r.portfolio.Cash(),
			Positions: r.portfolio.OpenPositions(),
		})
		metrics.Equity.Set(equity)
		if err := r.portfolio.Reconcile(); err != nil {
			log.Error("equity reconciliation failed", "date", date.Format(config.DateLayout), "err", err)
		}

		if windowLen > 0 && ((i+1)%windowLen == 0 || i == len(periods)-1) {
			checks = append(checks, b.closeWindow(win, date, r, log))
			win = window{
				start:          date,
				startEquity:    equity,
				startPositions: r.portfolio.OpenPositions(),
				startTrades:    len(r.fills),
			}
		}
	}

	if n := len(b.broker.Ledger()); n != len(r.fills) {
		log.Error("broker ledger out of sync with booked fills", "ledger", n, "booked", len(r.fills))
	}

	whole := window{start: periods[0], startEquity: r.portfolio.InitialCapital()}
	checks = append(checks, b.closeWindow(whole, periods[len(periods)-1], r, log))

	res := b.buildResult(r, periods, curve, checks)
	if err := b.recorder.RecordResult(ctx, res); err != nil {
		log.Error("recording result failed", "err", err)
	}
	log.Info("backtest complete",
		"final_value", res.FinalValue,
		"total_return", res.TotalReturn,
		"trades", res.TotalTrades(),
		"rejections", len(res.Rejections),
		"stop_exits", r.stopExits,
		"trusted", res.Trusted,
	)
	return res, nil
}

// step runs one period: advance holds, classify the regime, generate and
// filter signals, execute survivors, then enforce stops.
func (b *Backtester) step(ctx context.Context, r *run, period int, slice domain.Slice, source signalSource, log *slog.Logger) error {
	for _, s := range b.registry.All() {
		s.AdvanceDay()
	}

	current := domain.RegimeUnknown
	if b.cfg.Regime.Enabled {
		current = b.detector.ClassifySlice(slice)
		log.Debug("regime", "date", slice.Date.Format(config.DateLayout), "regime", current)
	}

	candidates, err := source(ctx, period, slice)
	if err != nil {
		return err
	}

	if b.cfg.Regime.Enabled {
		kept := candidates[:0:0]
		for _, sig := range candidates {
			out, ok, reason := b.gate.Apply(current, sig)
			if !ok {
				r.reject(slice.Date, StageRegime, sig, reason)
				continue
			}
			if reason != "" {
				log.Debug("signal rescaled", "strategy", sig.Strategy, "symbol", sig.Symbol, "reason", reason)
			}
			kept = append(kept, out)
		}
		candidates = kept
	}

	if b.cfg.Correlation.Enabled {
		res := b.filter.Filter(candidates, r.portfolio.HeldSymbols(), slice)
		for _, rej := range res.Rejected {
			r.reject(slice.Date, StageCorrelation, rej.Signal, rej.Reason)
		}
		candidates = res.Accepted
	}

	for _, sig := range candidates {
		d := b.risk.Check(sig, r.portfolio)
		if !d.Accepted {
			r.reject(slice.Date, StageRisk, sig, d.Reason)
			continue
		}
		if _, err := b.execute(ctx, r, d.Signal, false, slice, log); err != nil {
			return err
		}
	}

	return b.enforceStops(ctx, r, slice, log)
}

// strategySignals collects every strategy's signals, in parallel when
// configured. Output order follows registry order either way.
func (b *Backtester) strategySignals(ctx context.Context, _ int, slice domain.Slice) ([]domain.Signal, error) {
	strategies := b.registry.All()
	results := make([][]domain.Signal, len(strategies))

	if b.cfg.Backtest.ParallelSignals {
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range strategies {
			g.Go(func() error {
				sigs, err := s.GenerateSignals(gctx, slice)
				if err != nil {
					return fmt.Errorf("%s: %w", s.Name(), err)
				}
				results[i] = sigs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, s := range strategies {
			sigs, err := s.GenerateSignals(ctx, slice)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", s.Name(), err)
			}
			results[i] = sigs
		}
	}

	var out []domain.Signal
	for _, sigs := range results {
		out = append(out, sigs...)
	}
	return out, nil
}

// injectedSignals replaces strategy output with synthetic signals.
func (b *Backtester) injectedSignals(_ context.Context, period int, slice domain.Slice) ([]domain.Signal, error) {
	sigs := b.injector.Inject(period, slice.Date, slice, nil)
	b.log.Warn("signal injection active", "date", slice.Date.Format(config.DateLayout), "signals", len(sigs))
	metrics.InjectedSignalsTotal.Add(float64(len(sigs)))
	return sigs, nil
}

// execute fills sig through the broker and books it everywhere it must be
// reflected: portfolio, strategy book, stops, recorder and metrics.
func (b *Backtester) execute(ctx context.Context, r *run, sig domain.Signal, stopLoss bool, slice domain.Slice, log *slog.Logger) (domain.Fill, error) {
	fill, err := b.broker.Execute(ctx, broker.Order{
		Strategy:    sig.Strategy,
		Symbol:      sig.Symbol,
		Side:        sig.Side,
		Shares:      sig.Shares,
		QuotedPrice: sig.Price,
		Reason:      sig.Reason,
		Synthetic:   sig.Synthetic,
		StopLoss:    stopLoss,
	})
	if err != nil {
		return domain.Fill{}, err
	}
	r.fills = append(r.fills, fill)

	switch fill.Side {
	case domain.SideBuy:
		atr := 0.0
		if bar, ok := slice.Latest(fill.Symbol); ok {
			atr, _ = bar.Indicator(domain.IndATR)
		}
		b.stops.Set(fill.Symbol, fill.QuotedPrice, atr)
	case domain.SideSell:
		if len(r.portfolio.Holders(fill.Symbol)) == 0 {
			b.stops.Remove(fill.Symbol)
		}
	}

	metrics.FillsTotal.WithLabelValues(fill.Strategy, string(fill.Side)).Inc()
	if err := b.recorder.RecordFill(ctx, r.id, fill); err != nil {
		log.Error("recording fill failed", "fill", fill.ID, "err", err)
	}
	log.Info("fill",
		"date", slice.Date.Format(config.DateLayout),
		"strategy", fill.Strategy,
		"symbol", fill.Symbol,
		"side", fill.Side,
		"shares", fill.Shares,
		"price", fill.ExecutionPrice,
		"notional", fill.Notional(),
		"cost", fill.TotalCost,
		"synthetic", fill.Synthetic,
		"stop_loss", fill.StopLoss,
	)
	return fill, nil
}

// enforceStops force-exits every holder of a breached symbol at the close
// and ratchets trailing stops on the rest. Symbols without a bar this
// period are left alone.
func (b *Backtester) enforceStops(ctx context.Context, r *run, slice domain.Slice, log *slog.Logger) error {
	for _, sym := range b.stops.Symbols() {
		bar, ok := slice.Latest(sym)
		if !ok {
			continue
		}
		if !b.stops.Check(sym, bar.Close) {
			if b.cfg.Stops.Trailing {
				if atr, ok := bar.Indicator(domain.IndATR); ok {
					b.stops.UpdateTrailing(sym, bar.Close, atr)
				}
			}
			continue
		}

		stop, _ := b.stops.Stop(sym)
		for _, name := range r.portfolio.Holders(sym) {
			sig := domain.Signal{
				Strategy:   name,
				Symbol:     sym,
				Side:       domain.SideSell,
				Shares:     r.portfolio.Holding(name, sym),
				Price:      bar.Close,
				Confidence: 1,
				Reason:     fmt.Sprintf("stop-loss: close %.2f at or below stop %.2f", bar.Close, stop),
			}
			if _, err := b.execute(ctx, r, sig, true, slice, log); err != nil {
				return err
			}
			r.stopExits++
			metrics.StopExitsTotal.Inc()
		}
		b.stops.Remove(sym)
	}
	return nil
}

// book applies a priced fill to the portfolio and the owning strategy's
// book. It runs inside the broker before the fill is recorded, so a fill the
// portfolio refuses never reaches the ledger.
func (b *Backtester) book(r *run) broker.BookFunc {
	return func(fill *domain.Fill) error {
		s, ok := b.registry.Get(fill.Strategy)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStrategy, fill.Strategy)
		}
		realized, err := r.portfolio.Apply(*fill)
		if err != nil {
			return err
		}
		fill.RealizedPnL = realized
		if err := s.OnFill(*fill); err != nil {
			return fmt.Errorf("strategy book out of sync: %w", err)
		}
		return nil
	}
}

func (b *Backtester) closeWindow(w window, end time.Time, r *run, log *slog.Logger) GuardrailCheck {
	c := w.close(end, r.portfolio.Equity(), r.portfolio.OpenPositions(), len(r.fills))
	if !c.Passed {
		metrics.GuardrailFailuresTotal.Inc()
		log.Error("guardrail failed",
			"start", c.Start.Format(config.DateLayout),
			"end", c.End.Format(config.DateLayout),
			"message", c.Message,
		)
	}
	return c
}

func (r *run) reject(date time.Time, stage string, sig domain.Signal, reason string) {
	r.rejections = append(r.rejections, Rejection{
		Date:     date,
		Stage:    stage,
		Strategy: sig.Strategy,
		Symbol:   sig.Symbol,
		Side:     sig.Side,
		Shares:   sig.Shares,
		Reason:   reason,
	})
	metrics.RejectionsTotal.WithLabelValues(stage).Inc()
}

func (b *Backtester) buildResult(r *run, periods []time.Time, curve []EquityPoint, checks []GuardrailCheck) *Result {
	pf := r.portfolio
	fills := r.fills
	final := pf.Equity()
	equity := equitySeries(pf.InitialCapital(), curve)
	winRate, profitFactor := tradeStats(fills)

	byStrategy := make(map[string]int)
	for _, f := range fills {
		byStrategy[f.Strategy]++
	}

	trusted := true
	for _, c := range checks {
		trusted = trusted && c.Passed
	}

	return &Result{
		RunID:            r.id,
		Start:            periods[0],
		End:              periods[len(periods)-1],
		InitialCapital:   pf.InitialCapital(),
		FinalValue:       final,
		TotalReturn:      totalReturn(pf.InitialCapital(), final),
		SharpeRatio:      SharpeRatio(equity),
		MaxDrawdown:      MaxDrawdown(equity),
		WinRate:          winRate,
		ProfitFactor:     profitFactor,
		TotalCosts:       pf.Costs(),
		TradesByStrategy: byStrategy,
		Fills:            fills,
		Rejections:       r.rejections,
		EquityCurve:      curve,
		Positions:        pf.Positions(),
		GuardrailChecks:  checks,
		Trusted:          trusted,
	}
}

// totalReturn is the percent change from initial to final. A non-positive
// initial value yields 0; the guardrail flags such runs.
func totalReturn(initial, final float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (final - initial) / initial * 100
}

// ValidateSeries rejects series whose bars are not strictly increasing in
// time for some symbol.
func ValidateSeries(series domain.Series) error {
	if len(series) == 0 {
		return ErrEmptySeries
	}
	for sym, bars := range series {
		for i := 1; i < len(bars); i++ {
			if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
				return fmt.Errorf("%w: %s at %s", ErrNonMonotonic, sym, bars[i].Timestamp.Format(config.DateLayout))
			}
		}
	}
	return nil
}

// Periods returns the sorted union of bar dates within [start, end]. A zero
// bound is open.
func Periods(series domain.Series, start, end time.Time) []time.Time {
	seen := make(map[int64]bool)
	var out []time.Time
	for _, bars := range series {
		for _, bar := range bars {
			ts := bar.Timestamp
			if (!start.IsZero() && ts.Before(start)) || (!end.IsZero() && ts.After(end)) {
				continue
			}
			if !seen[ts.UnixNano()] {
				seen[ts.UnixNano()] = true
				out = append(out, ts)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// sliceAt advances each symbol's cursor to date and returns the history
// ending there. Symbols without a bar on date are absent from the slice.
func sliceAt(series domain.Series, cursor map[string]int, date time.Time) domain.Slice {
	slice := domain.Slice{Date: date, History: make(map[string][]domain.Bar, len(series))}
	for sym, bars := range series {
		k := cursor[sym]
		for k < len(bars) && bars[k].Timestamp.Before(date) {
			k++
		}
		cursor[sym] = k
		if k < len(bars) && bars[k].Timestamp.Equal(date) {
			slice.History[sym] = bars[:k+1]
		}
	}
	return slice
}
