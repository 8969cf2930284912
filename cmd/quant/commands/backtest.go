package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencta/quant/internal/backtest"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a strategy over historical data",
	Long: `Runs a strategy day by day over stored history, prints the annualized
statistics of the NAV series and optionally renders a log-scale NAV chart.

Example:
  go run ./cmd/quant backtest --stems ES,GC --start 2015-01-01 --end 2024-12-31
  go run ./cmd/quant backtest --stems BTC --type coin --strategy buyhold --plot`,
	RunE: runBacktest,
}

var (
	btStems         string
	btStrategy      string
	btStart         string
	btEnd           string
	btCash          float64
	btLeverage      float64
	btType          string
	btPlot          bool
	btSuffix        string
	btNoMarginCheck bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btStems, "stems", "", "comma-separated instruments to trade (required)")
	backtestCmd.Flags().StringVar(&btStrategy, "strategy", "momentum", "strategy to run (buyhold|momentum)")
	backtestCmd.Flags().StringVar(&btStart, "start", "", "first simulation day, YYYY-MM-DD (required)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "last simulation day, YYYY-MM-DD (default today)")
	backtestCmd.Flags().Float64Var(&btCash, "cash", 1_000_000, "starting cash in USD")
	backtestCmd.Flags().Float64Var(&btLeverage, "leverage", 1, "leverage multiplier for position sizing")
	backtestCmd.Flags().StringVar(&btType, "type", "future", "instrument type (future|stock|coin)")
	backtestCmd.Flags().BoolVar(&btPlot, "plot", false, "render a NAV chart after the run")
	backtestCmd.Flags().StringVar(&btSuffix, "suffix", "", "suffix appended to the chart filename")
	backtestCmd.Flags().BoolVar(&btNoMarginCheck, "no-margin-check", false, "skip the overnight margin check on orders")
	backtestCmd.MarkFlagRequired("stems")
	backtestCmd.MarkFlagRequired("start")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := backtestConfig(a.cfg.ChartDir)
	if err != nil {
		return err
	}

	base := a.newStrategyBase(cfg.Stems, cfg.Cash, cfg.Leverage, btNoMarginCheck)
	strat, err := newStrategy(btStrategy, base)
	if err != nil {
		return err
	}

	engine := backtest.NewEngine(cfg, base.Ledger, strat, a.chains, nil, nil, a.log)
	stats, err := engine.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}

	fmt.Printf("Final NAV: %.2f\n", engine.LastNav())
	fmt.Printf("Mean:      %.4f\n", stats.Mean)
	fmt.Printf("Std:       %.4f\n", stats.Std)
	fmt.Printf("Sharpe:    %.4f\n", stats.Sharpe)
	fmt.Printf("Kelly:     %.4f\n", stats.Kelly)
	return nil
}

func backtestConfig(chartDir string) (backtest.Config, error) {
	start, err := time.Parse("2006-01-02", btStart)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("parse --start: %w", err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if btEnd != "" {
		end, err = time.Parse("2006-01-02", btEnd)
		if err != nil {
			return backtest.Config{}, fmt.Errorf("parse --end: %w", err)
		}
	}
	insType, err := parseType(btType)
	if err != nil {
		return backtest.Config{}, err
	}
	return backtest.Config{
		Stems:     splitStems(btStems),
		StartDate: start,
		EndDate:   end,
		Cash:      btCash,
		Leverage:  btLeverage,
		Type:      insType,
		Plot:      btPlot,
		ChartDir:  chartDir,
		Suffix:    btSuffix,
	}, nil
}

func splitStems(s string) []string {
	var stems []string
	for _, stem := range strings.Split(s, ",") {
		if stem = strings.TrimSpace(stem); stem != "" {
			stems = append(stems, stem)
		}
	}
	return stems
}
