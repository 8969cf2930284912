package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderNavChart writes the NAV series as a log-scale line chart to an HTML
// file under dir and returns the file path.
func RenderNavChart(samples []NavSample, stems []string, leverage float64, suffix, dir string) (string, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("NAV %s x%g", strings.Join(stems, ","), leverage),
		}),
		charts.WithYAxisOpts(opts.YAxis{Type: "log"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	days := make([]string, len(samples))
	navs := make([]opts.LineData, len(samples))
	for i, s := range samples {
		days[i] = s.Day.Format("2006-01-02")
		navs[i] = opts.LineData{Value: s.Nav}
	}
	line.SetXAxis(days).AddSeries("Nav", navs)

	path := filepath.Join(dir, chartFilename(samples, stems, leverage, suffix))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create chart file: %w", err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	return path, nil
}

func chartFilename(samples []NavSample, stems []string, leverage float64, suffix string) string {
	name := strings.Join(stems, ",")
	if len(name) > 30 {
		name = name[:30]
	}
	end := ""
	if len(samples) > 0 {
		end = samples[len(samples)-1].Day.Format("2006-01-02")
	}
	if suffix != "" {
		return fmt.Sprintf("%s.%g.%s.%s.html", name, leverage, end, suffix)
	}
	return fmt.Sprintf("%s.%g.%s.html", name, leverage, end)
}
