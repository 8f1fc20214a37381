package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quantfolio/internal/broker"
	"quantfolio/internal/engine"
	"quantfolio/internal/metrics"
	"quantfolio/internal/store"
	"quantfolio/internal/strategy/builtins"
)

var (
	backtestJSON        bool
	backtestMetricsAddr string
)

var errUntrusted = errors.New("guardrail failed: results are not trustworthy")

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Simulate the enabled strategies over stored daily bars",
	Long: `Load daily bars from the parquet store, run every enabled strategy
through the shared portfolio and print the performance summary.

Examples:
  quantfolio backtest --config config/quantfolio.yaml
  quantfolio backtest --symbols AAPL,MSFT,XOM --json
  quantfolio backtest --metrics-addr :9102`,
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "Print the full result (ledger, rejections, equity curve) instead of the summary")
	backtestCmd.Flags().StringVar(&backtestMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if backtestMetricsAddr != "" {
		cfg.Metrics.Addr = backtestMetricsAddr
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	start, end, err := cfg.DateRange()
	if err != nil {
		return err
	}
	loadFrom := start
	if !start.IsZero() && cfg.Backtest.WarmupDays > 0 {
		loadFrom = start.AddDate(0, 0, -cfg.Backtest.WarmupDays)
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	series, err := store.LoadSeries(ctx, bars, cfg.Backtest.Market, parseSymbols(symbolsArg), loadFrom, end)
	if err != nil {
		return fmt.Errorf("loading bars: %w", err)
	}
	logger.Info("loaded bars", "symbols", len(series), "from", loadFrom.Format("2006-01-02"), "dataDir", cfg.Storage.DataDir)

	costs := broker.NewCostModel(cfg.Costs.SlippageBps, cfg.Costs.CommissionPerShare)
	bt, err := engine.NewBacktester(cfg, builtins.FromConfig(cfg, costs), logger)
	if err != nil {
		return err
	}

	if cfg.Storage.SQLitePath != "" {
		ledger, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer ledger.Close()
		bt.SetRecorder(ledger)
	}

	res, err := bt.Run(ctx, series)
	if err != nil {
		return err
	}

	return report(cmd.OutOrStdout(), res, backtestJSON)
}

// report prints the summary, or the whole result when full is set, and
// fails when a guardrail check did not pass.
func report(w io.Writer, res *engine.Result, full bool) error {
	var (
		out []byte
		err error
	)
	if full {
		out, err = json.MarshalIndent(res, "", "  ")
	} else {
		out, err = res.SummaryJSON()
	}
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Fprintln(w, string(out))

	if !res.Trusted {
		return errUntrusted
	}
	return nil
}
