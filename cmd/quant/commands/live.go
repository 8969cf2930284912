package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencta/quant/internal/backtest"
	"github.com/opencta/quant/internal/report"
)

// liveCmd represents the live command
var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the live pipeline once",
	Long: `Replays the strategy from the warm-up start date to today against the
stored history, rescales the simulated account to the externally recorded
cash, then persists positions, returns and executions under the spread name
and sends a trade alert if today produced a fill.

Example:
  go run ./cmd/quant live --spread trend-futures --stems ES,GC --start 2015-01-01`,
	RunE: runLive,
}

var (
	lvSpread   string
	lvStems    string
	lvStrategy string
	lvStart    string
	lvCash     float64
	lvLeverage float64
	lvType     string
)

// addLiveFlags registers the live pipeline flags; shared with the scheduler
// daemon which runs the same pipeline on a cron schedule.
func addLiveFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&lvSpread, "spread", "", "spread name results are stored under (required)")
	cmd.Flags().StringVar(&lvStems, "stems", "", "comma-separated instruments to trade (required)")
	cmd.Flags().StringVar(&lvStrategy, "strategy", "momentum", "strategy to run (buyhold|momentum)")
	cmd.Flags().StringVar(&lvStart, "start", "", "warm-up start day, YYYY-MM-DD (required)")
	cmd.Flags().Float64Var(&lvCash, "cash", 1_000_000, "nominal warm-up starting cash in USD")
	cmd.Flags().Float64Var(&lvLeverage, "leverage", 1, "leverage multiplier for position sizing")
	cmd.Flags().StringVar(&lvType, "type", "future", "instrument type (future|stock|coin)")
	cmd.MarkFlagRequired("spread")
	cmd.MarkFlagRequired("stems")
	cmd.MarkFlagRequired("start")
}

func init() {
	rootCmd.AddCommand(liveCmd)
	addLiveFlags(liveCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	return runLivePipeline(cmd.Context(), a)
}

// runLivePipeline executes one full live cycle with fresh state.
func runLivePipeline(ctx context.Context, a *app) error {
	start, err := time.Parse("2006-01-02", lvStart)
	if err != nil {
		return fmt.Errorf("parse --start: %w", err)
	}
	insType, err := parseType(lvType)
	if err != nil {
		return err
	}

	cfg := backtest.Config{
		Stems:     splitStems(lvStems),
		StartDate: start,
		EndDate:   time.Now().UTC().Truncate(24 * time.Hour),
		Cash:      lvCash,
		Leverage:  lvLeverage,
		Type:      insType,
		Live:      true,
	}

	// Live runs skip the margin check: the warm-up cash is nominal until the
	// account is rescaled to the recorded balance.
	base := a.newStrategyBase(cfg.Stems, cfg.Cash, lvLeverage, true)
	strat, err := newStrategy(lvStrategy, base)
	if err != nil {
		return err
	}

	sink := report.NewPgSink(a.db.Pool)
	engine := backtest.NewEngine(cfg, base.Ledger, strat, a.chains, sink, a.newNotifier(), a.log)

	if _, err := engine.Run(ctx); err != nil {
		return fmt.Errorf("warm-up run: %w", err)
	}
	if err := engine.AdjustPositions(ctx, lvSpread); err != nil {
		if errors.Is(err, report.ErrNoCash) {
			a.log.WithField("spread", lvSpread).Warn("No recorded cash, skipping position adjustment")
		} else {
			return err
		}
	}
	if err := engine.Save(ctx, lvSpread); err != nil {
		return fmt.Errorf("save results: %w", err)
	}

	a.log.WithFields(map[string]interface{}{
		"spread": lvSpread,
		"nav":    engine.LastNav(),
		"day":    engine.Day().Format("2006-01-02"),
	}).Info("Live pipeline finished")
	return nil
}
