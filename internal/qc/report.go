package qc

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ReportFile is the interactive firing-rate report written next to the
// summary JSON.
const ReportFile = "firing_rates.html"

// writeFiringRateReport renders a bar chart of per-unit firing rates as a
// standalone HTML page.
func writeFiringRateReport(rates FiringRates, path string) error {
	x := make([]string, len(rates))
	y := make([]opts.BarData, len(rates))
	for i, r := range rates {
		x[i] = fmt.Sprintf("unit %d", r.Unit)
		y[i] = opts.BarData{Value: r.RateHz}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Unit firing rates", Subtitle: "first units in ascending id order"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("rate (Hz)", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(bar)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render report %s: %w", path, err)
	}
	return f.Close()
}
