package builtins

import (
	"quantfolio/internal/broker"
	"quantfolio/internal/config"
	"quantfolio/internal/strategy"
)

// FromConfig builds a Registry holding every enabled strategy, each sized
// against its share of the initial capital.
func FromConfig(cfg *config.Config, costs broker.CostModel) *strategy.Registry {
	reg := strategy.NewRegistry()
	capital := cfg.Backtest.InitialCapital
	sizer := func(c config.StrategyCommon) strategy.Sizer {
		return strategy.NewSizer(capital, c.Allocation, c.PositionFraction, costs)
	}

	s := cfg.Strategies
	if s.MeanReversion.Enabled {
		reg.Register(NewMeanReversion(s.MeanReversion.RSIThreshold, s.MeanReversion.HoldDays,
			sizer(s.MeanReversion.StrategyCommon)))
	}
	if s.MACrossover.Enabled {
		reg.Register(NewMACross(s.MACrossover.ShortWindow, s.MACrossover.LongWindow,
			sizer(s.MACrossover.StrategyCommon)))
	}
	if s.VolatilityBreakout.Enabled {
		reg.Register(NewVolatilityBreakout(s.VolatilityBreakout.VolatilityMultiple, s.VolatilityBreakout.VolumeMultiple,
			s.VolatilityBreakout.MaxHoldDays, sizer(s.VolatilityBreakout.StrategyCommon)))
	}
	if s.Sentiment.Enabled {
		reg.Register(NewSentiment(s.Sentiment.BuyThreshold, s.Sentiment.SellThreshold, s.Sentiment.RSIOversold,
			s.Sentiment.MaxHoldDays, sizer(s.Sentiment.StrategyCommon)))
	}
	return reg
}
