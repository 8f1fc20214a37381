package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantfolio/internal/config"
	"quantfolio/internal/engine"
)

func TestParseSymbols(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, parseSymbols(" aapl, ,MSFT,"))
	assert.Empty(t, parseSymbols(""))
}

func TestGatherRangeWidensByWarmup(t *testing.T) {
	gatherStart, gatherEnd = "", ""
	cfg := config.Default()
	cfg.Backtest.StartDate = "2023-03-01"
	cfg.Backtest.EndDate = "2023-06-30"
	cfg.Backtest.WarmupDays = 30

	r, err := gatherRange(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 30, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC), r.End)
}

func TestGatherRangeFlags(t *testing.T) {
	t.Cleanup(func() { gatherStart, gatherEnd = "", "" })
	cfg := config.Default()

	gatherStart, gatherEnd = "2023-01-03", "2023-01-31"
	r, err := gatherRange(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), r.Start)

	gatherStart, gatherEnd = "2023-02-01", "2023-01-31"
	_, err = gatherRange(cfg)
	assert.ErrorContains(t, err, "before start")

	gatherStart, gatherEnd = "", ""
	_, err = gatherRange(cfg)
	assert.ErrorContains(t, err, "no start date")
}

func TestReportUntrustedResultFails(t *testing.T) {
	res := &engine.Result{
		InitialCapital: 10000,
		FinalValue:     10050,
		GuardrailChecks: []engine.GuardrailCheck{
			{Passed: false, Message: "FAIL: no positions and no trades but return is 0.5000%, expected 0%"},
		},
		Trusted: false,
	}
	var buf bytes.Buffer
	err := report(&buf, res, false)
	assert.ErrorIs(t, err, errUntrusted)
	assert.Contains(t, buf.String(), `"final_value": 10050`, "summary is printed before failing")

	buf.Reset()
	res.Trusted = true
	require.NoError(t, report(&buf, res, true))
	assert.Contains(t, buf.String(), "guardrail_checks")
}
