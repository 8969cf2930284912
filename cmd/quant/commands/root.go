package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Systematic futures and equity strategy runner",
	Long: `quant runs daily-bar trading strategies over futures chains, equities
and crypto pairs, against either historical data (backtest) or the live
account (live pipeline).

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest --stems ES,GC --start 2015-01-01 --end 2024-12-31
  go run ./cmd/quant download
  go run ./cmd/quant live --spread trend-futures
  go run ./cmd/quant serve`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
