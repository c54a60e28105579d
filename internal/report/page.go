package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/framebg/internal/frame"
	"github.com/banshee-data/framebg/internal/fsutil"
	"github.com/banshee-data/framebg/internal/monitoring"
	"github.com/banshee-data/framebg/internal/partition"
	"github.com/banshee-data/framebg/internal/pipeline"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// File names written by Write.
const (
	SummaryFile   = "summary.json"
	HistogramFile = "diff_histogram.png"
	PageFile      = "report.html"
)

var logs = monitoring.NewStreams("[report] ")

// ForegroundByRank counts the foreground pixels that fell in each
// worker's range of p.
func ForegroundByRank(mask *frame.Mask, p partition.Partition) []int {
	counts := make([]int, p.Workers())
	if mask == nil {
		return counts
	}
	for idx, v := range mask.Values {
		if v == 0 {
			continue
		}
		if w := p.Owner(idx); w >= 0 {
			counts[w]++
		}
	}
	return counts
}

// WritePage renders an HTML page for res: pixels and foreground per
// worker, time per stage and the foreground share.
func WritePage(w io.Writer, res *pipeline.Result, sum Summary) error {
	subtitle := fmt.Sprintf("run=%s strategy=%s %dx%d frames=%d threshold=%d",
		res.RunID, res.Strategy, res.Width, res.Height, res.FrameCount, res.Threshold)

	fg := ForegroundByRank(res.Mask, res.Partition)
	workers := make([]string, len(res.Partition.Counts))
	counts := make([]opts.BarData, len(res.Partition.Counts))
	fgCounts := make([]opts.BarData, len(res.Partition.Counts))
	for i, c := range res.Partition.Counts {
		workers[i] = fmt.Sprintf("rank %d", i)
		counts[i] = opts.BarData{Value: c}
		fgCounts[i] = opts.BarData{Value: fg[i]}
	}
	part := charts.NewBar()
	part.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "framebg run " + res.RunID, Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pixels per worker", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	part.SetXAxis(workers).
		AddSeries("pixels", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("foreground", fgCounts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	stages := make([]string, len(res.StageTimings))
	millis := make([]opts.BarData, len(res.StageTimings))
	for i, st := range res.StageTimings {
		stages[i] = st.Stage.String()
		millis[i] = opts.BarData{Value: float64(st.Duration.Microseconds()) / 1000}
	}
	timing := charts.NewBar()
	timing.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Stage timings (ms)", Subtitle: fmt.Sprintf("compute %s", res.Elapsed)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	timing.SetXAxis(stages).AddSeries("ms", millis)

	share := charts.NewPie()
	share.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Mask", Subtitle: fmt.Sprintf("mean diff %.2f, p95 %.0f", sum.DiffMean, sum.DiffP95)}),
	)
	share.AddSeries("mask", []opts.PieData{
		{Name: "foreground", Value: sum.Foreground},
		{Name: "background", Value: sum.Pixels - sum.Foreground},
	})

	page := components.NewPage()
	page.AddCharts(part, timing, share)
	return page.Render(w)
}

// Write computes the summary for res and writes all report files into dir.
// res must carry its images (Runner.KeepImages).
func Write(fsys fsutil.FileSystem, dir string, res *pipeline.Result) (Summary, error) {
	if res == nil || res.Background == nil || res.Mask == nil || res.Reference == nil {
		return Summary{}, fmt.Errorf("report: result has no images")
	}
	sum, diffs, err := Summarize(res.Background, res.Reference, res.Mask, res.Threshold)
	if err != nil {
		return Summary{}, err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("report: %w", err)
	}

	data, err := json.MarshalIndent(struct {
		RunID    string `json:"run_id"`
		Strategy string `json:"strategy"`
		Workers  int    `json:"workers"`
		Elapsed  string `json:"elapsed"`
		Summary
	}{res.RunID, res.Strategy, res.Workers, res.Elapsed.String(), sum}, "", "  ")
	if err != nil {
		return Summary{}, err
	}
	if err := fsys.WriteFile(filepath.Join(dir, SummaryFile), data, 0o644); err != nil {
		return Summary{}, fmt.Errorf("report: %w", err)
	}

	if err := WriteHistogram(fsys, filepath.Join(dir, HistogramFile), diffs, res.Threshold); err != nil {
		return Summary{}, err
	}

	f, err := fsys.Create(filepath.Join(dir, PageFile))
	if err != nil {
		return Summary{}, fmt.Errorf("report: %w", err)
	}
	if err := WritePage(f, res, sum); err != nil {
		f.Close()
		return Summary{}, fmt.Errorf("report: render page: %w", err)
	}
	if err := f.Close(); err != nil {
		return Summary{}, err
	}
	logs.Diagf("wrote report for run %s to %s", res.RunID, dir)
	return sum, nil
}
