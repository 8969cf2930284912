package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencta/quant/internal/data"
	"github.com/opencta/quant/internal/scheduler"
	"github.com/opencta/quant/internal/scheduler/jobs"
)

// Schedules use six-field cron expressions (seconds first), UTC.
const (
	downloadSchedule = "0 30 22 * * 1-5" // after the futures close
	pipelineSchedule = "0 0 23 * * 1-5"  // after the download window
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the live pipeline on a schedule",
	Long: `Starts the scheduler daemon. Every weekday evening it refreshes chains
and bars, then runs the live pipeline for the configured spread.

Jobs:
  data-download   22:30 UTC weekdays
  live-pipeline   23:00 UTC weekdays

Example:
  go run ./cmd/quant scheduler --spread trend-futures --stems ES,GC --start 2015-01-01`,
	RunE: runSchedulerDaemon,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
	addLiveFlags(schedulerCmd)
}

func runSchedulerDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	client := data.NewClient(a.cfg.Vendor, a.log)
	downloader := data.NewDownloader(client, a.store, a.universe, a.log)
	dlCfg := data.DownloadConfig{
		Workers:       a.cfg.Vendor.Workers,
		MaxWindowDays: a.cfg.Vendor.MaxWindowDays,
	}

	sched := scheduler.New(a.log)
	if err := sched.AddJob(jobs.NewDownloadJob(downloader, a.store, a.universe, dlCfg, downloadSchedule, a.log)); err != nil {
		return err
	}
	pipeline := jobs.NewPipelineJob(func(ctx context.Context) error {
		return runLivePipeline(ctx, a)
	}, pipelineSchedule, a.log)
	if err := sched.AddJob(pipeline); err != nil {
		return err
	}

	sched.Start()

	fmt.Println("Scheduler started. Registered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	return nil
}
