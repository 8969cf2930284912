package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencta/quant/internal/data"
	"github.com/opencta/quant/internal/scheduler/jobs"
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Refresh expiry chains and daily bars",
	Long: `Fetches the expiry chain of every futures stem in the universe, then
downloads daily bars for all chain contracts, equities, crypto pairs and FX
rate tickers, resuming from the last stored day per ticker.

Example:
  go run ./cmd/quant download
  go run ./cmd/quant download --workers 8`,
	RunE: runDownload,
}

var downloadWorkers int

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().IntVar(&downloadWorkers, "workers", 0, "parallel download workers (default from VENDOR_WORKERS)")
}

func runDownload(cmd *cobra.Command, args []string) error {
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
	if downloadWorkers > 0 {
		dlCfg.Workers = downloadWorkers
	}

	job := jobs.NewDownloadJob(downloader, a.store, a.universe, dlCfg, "", a.log)
	if err := job.Run(cmd.Context()); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	fmt.Println("Download complete")
	return nil
}
