// Command quantfolio runs multi-strategy portfolio simulations over stored
// daily bars and gathers those bars from Alpaca.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"quantfolio/internal/config"
	"quantfolio/internal/util"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	symbolsArg string
)

var rootCmd = &cobra.Command{
	Use:   "quantfolio",
	Short: "Multi-strategy portfolio simulator",
	Long: `quantfolio replays daily bars through several trading strategies that
share one portfolio, applying regime gating, correlation filtering, risk
limits, ATR stops and execution costs, and reports performance metrics.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the quantfolio version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "quantfolio", version)
	},
}

func init() {
	defaultConfig := "config/quantfolio.yaml"
	if p := os.Getenv("QUANTFOLIO_CONFIG"); p != "" {
		defaultConfig = p
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&symbolsArg, "symbols", "", "Comma-separated symbols (default: every stored symbol)")

	rootCmd.AddCommand(backtestCmd, gatherCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)
	return cfg, logger, nil
}

// parseSymbols splits the --symbols flag, dropping blanks and upper-casing.
func parseSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
