package engine

import (
	"log/slog"
	"time"

	"quantfolio/internal/config"
	"quantfolio/internal/domain"
)

// Injector replaces strategy output with deterministic synthetic signals so
// every downstream stage can be exercised regardless of market conditions.
// It is inert unless explicitly enabled.
type Injector struct {
	enabled   bool
	count     int
	templates []config.InjectionTemplate
	log       *slog.Logger
}

// NewInjector creates an Injector from the injection configuration.
func NewInjector(cfg config.Injection, logger *slog.Logger) *Injector {
	return &Injector{
		enabled:   cfg.Enabled,
		count:     cfg.InjectCount,
		templates: cfg.Templates,
		log:       logger,
	}
}

// Enabled reports whether injection replaces strategy signals.
func (inj *Injector) Enabled() bool {
	return inj.enabled
}

// Inject returns existing unchanged when disabled. When enabled it ignores
// existing and returns count signals cycled from the templates, starting at
// an offset derived from period so consecutive periods rotate through the
// template list. Templates without a price use the symbol's latest close
// and are skipped when the slice has none.
func (inj *Injector) Inject(period int, date time.Time, slice domain.Slice, existing []domain.Signal) []domain.Signal {
	if !inj.enabled {
		return existing
	}
	if len(inj.templates) == 0 || inj.count <= 0 {
		return nil
	}

	out := make([]domain.Signal, 0, inj.count)
	for i := 0; i < inj.count; i++ {
		tpl := inj.templates[(period*inj.count+i)%len(inj.templates)]
		price := tpl.Price
		if price <= 0 {
			bar, ok := slice.Latest(tpl.Symbol)
			if !ok || bar.Close <= 0 {
				inj.log.Info("skipping synthetic signal without price", "symbol", tpl.Symbol, "date", date.Format(config.DateLayout))
				continue
			}
			price = bar.Close
		}
		conf := tpl.Confidence
		if conf <= 0 {
			conf = 1
		}
		out = append(out, domain.Signal{
			Strategy:   tpl.Strategy,
			Symbol:     tpl.Symbol,
			Side:       domain.Side(tpl.Side),
			Shares:     tpl.Shares,
			Price:      price,
			Confidence: conf,
			Reason:     "synthetic injection",
			Synthetic:  true,
			InjectedAt: date,
		})
	}
	return out
}
