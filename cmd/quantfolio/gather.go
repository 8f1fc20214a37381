package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quantfolio/internal/config"
	"quantfolio/internal/gather"
	"quantfolio/internal/gather/us"
	"quantfolio/internal/indicator"
	"quantfolio/internal/store"
)

var (
	gatherStart     string
	gatherEnd       string
	gatherBatchSize int
	gatherWorkers   int
	gatherRate      int
)

var gatherCmd = &cobra.Command{
	Use:   "gather",
	Short: "Fetch daily bars from Alpaca into the parquet store",
	Long: `Fetch daily bars for the given symbols, attach the indicators the
strategies read (RSI, moving averages, ATR, volume and volatility ratios)
and write them to the parquet store. Interrupted runs resume where they
stopped.

Examples:
  quantfolio gather --symbols AAPL,MSFT --start 2022-01-03 --end 2023-12-29`,
	RunE: runGather,
}

func init() {
	gatherCmd.Flags().StringVar(&gatherStart, "start", "", "First date to fetch (YYYY-MM-DD, default: backtest start minus warmup)")
	gatherCmd.Flags().StringVar(&gatherEnd, "end", "", "Last date to fetch (YYYY-MM-DD, default: yesterday)")
	gatherCmd.Flags().IntVar(&gatherBatchSize, "batch-size", 100, "Symbols per API call")
	gatherCmd.Flags().IntVar(&gatherWorkers, "workers", 4, "Concurrent batches")
	gatherCmd.Flags().IntVar(&gatherRate, "rate", 180, "API calls per minute, 0 for unlimited")
}

func runGather(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	symbols := parseSymbols(symbolsArg)
	if len(symbols) == 0 {
		return errors.New("--symbols is required")
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return errors.New("alpaca credentials missing: set alpaca.api_key/api_secret or APCA_API_KEY_ID/APCA_API_SECRET_KEY")
	}

	dates, err := gatherRange(cfg)
	if err != nil {
		return err
	}

	opts := indicator.DefaultOptions()
	opts.ShortWindow = cfg.Strategies.MACrossover.ShortWindow
	opts.LongWindow = cfg.Strategies.MACrossover.LongWindow

	g := us.NewDailyBarGatherer(
		us.NewAlpacaFetcher(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed),
		store.NewParquetStore(cfg.Storage.DataDir),
		us.Config{
			Symbols:     symbols,
			Dates:       dates,
			BatchSize:   gatherBatchSize,
			MaxWorkers:  gatherWorkers,
			RatePerMin:  gatherRate,
			Indicators:  opts,
			ProgressDir: filepath.Join(cfg.Storage.DataDir, cfg.Backtest.Market),
		},
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting gatherer", "gatherer", g.Name(), "symbols", len(symbols),
		"start", dates.Start.Format(config.DateLayout), "end", dates.End.Format(config.DateLayout))
	if err := g.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", g.Name(), err)
	}
	return nil
}

// gatherRange resolves the fetch window from flags, falling back to the
// backtest range widened by the warmup.
func gatherRange(cfg *config.Config) (gather.DateRange, error) {
	start, end, err := cfg.DateRange()
	if err != nil {
		return gather.DateRange{}, err
	}
	if !start.IsZero() {
		start = start.AddDate(0, 0, -cfg.Backtest.WarmupDays)
	}
	if gatherStart != "" {
		if start, err = time.Parse(config.DateLayout, gatherStart); err != nil {
			return gather.DateRange{}, fmt.Errorf("parsing --start: %w", err)
		}
	}
	if gatherEnd != "" {
		if end, err = time.Parse(config.DateLayout, gatherEnd); err != nil {
			return gather.DateRange{}, fmt.Errorf("parsing --end: %w", err)
		}
	}
	if end.IsZero() {
		end = time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -1)
	}
	if start.IsZero() {
		return gather.DateRange{}, errors.New("no start date: pass --start or set backtest.start_date")
	}
	r := gather.DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return gather.DateRange{}, err
	}
	return r, nil
}
