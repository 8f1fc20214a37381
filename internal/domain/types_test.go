package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if _, ok := bar.Indicator(IndRSI); ok {
		t.Error("zero-value Bar should not report an RSI")
	}

	if SideBuy != "BUY" || SideSell != "SELL" {
		t.Errorf("Side constants = %q/%q, want BUY/SELL", SideBuy, SideSell)
	}
	if MarketUS != "us" {
		t.Errorf("MarketUS = %q, want us", MarketUS)
	}
}

func TestSliceLatest(t *testing.T) {
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	s := Slice{
		Date: d2,
		History: map[string][]Bar{
			"AAPL": {
				{Symbol: "AAPL", Timestamp: d1, Close: 185},
				{Symbol: "AAPL", Timestamp: d2, Close: 186, Indicators: Indicators{IndRSI: 42}},
			},
		},
	}

	b, ok := s.Latest("AAPL")
	if !ok {
		t.Fatal("Latest returned false for present symbol")
	}
	if b.Close != 186 {
		t.Errorf("Latest close = %v, want 186", b.Close)
	}
	if rsi, ok := b.Indicator(IndRSI); !ok || rsi != 42 {
		t.Errorf("Indicator(rsi) = %v,%v want 42,true", rsi, ok)
	}
	if _, ok := s.Latest("MSFT"); ok {
		t.Error("Latest returned true for absent symbol")
	}
}

func TestPositionValuation(t *testing.T) {
	p := Position{Symbol: "AAPL", Shares: 10, AvgCost: 100}
	if got := p.MarketValue(110); got != 1100 {
		t.Errorf("MarketValue = %v, want 1100", got)
	}
	if got := p.UnrealizedPnL(95); got != -50 {
		t.Errorf("UnrealizedPnL = %v, want -50", got)
	}
}
