// Package report writes optional diagnostics for a finished run: a JSON
// summary of the grayscale differences, a histogram of those differences
// and an HTML page with the partition layout and stage timings.
package report

import (
	"fmt"
	"sort"

	"github.com/banshee-data/framebg/internal/foreground"
	"github.com/banshee-data/framebg/internal/frame"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes how the reference frame differs from the background.
type Summary struct {
	Pixels          int     `json:"pixels"`
	Foreground      int     `json:"foreground"`
	ForegroundRatio float64 `json:"foreground_ratio"`
	Threshold       int     `json:"threshold"`

	DiffMean   float64 `json:"diff_mean"`
	DiffStdDev float64 `json:"diff_stddev"`
	DiffMedian float64 `json:"diff_median"`
	DiffP95    float64 `json:"diff_p95"`
	DiffMax    float64 `json:"diff_max"`

	BackgroundGray float64 `json:"background_gray_mean"`
	ReferenceGray  float64 `json:"reference_gray_mean"`
}

func grayMeans(g *frame.Grid) float64 {
	vals := make([]float64, g.Len())
	for i := range vals {
		vals[i] = float64(foreground.Gray(g.Red[i], g.Green[i], g.Blue[i]))
	}
	return floats.Sum(vals) / float64(len(vals))
}

// Summarize computes difference statistics for a run. It also returns the
// per-pixel differences for WriteHistogram.
func Summarize(bg, ref *frame.Grid, mask *frame.Mask, threshold int) (Summary, []int, error) {
	diffs, err := foreground.Differences(bg, ref)
	if err != nil {
		return Summary{}, nil, err
	}
	if mask == nil || mask.Len() != len(diffs) || len(mask.Values) != len(diffs) {
		return Summary{}, nil, fmt.Errorf("report: mask does not match %dx%d background", bg.Width, bg.Height)
	}
	if len(diffs) == 0 {
		return Summary{}, nil, fmt.Errorf("report: empty image")
	}

	x := make([]float64, len(diffs))
	for i, d := range diffs {
		x[i] = float64(d)
	}
	mean, std := stat.MeanStdDev(x, nil)
	sort.Float64s(x)

	s := Summary{
		Pixels:         len(diffs),
		Foreground:     mask.Count(),
		Threshold:      threshold,
		DiffMean:       mean,
		DiffStdDev:     std,
		DiffMedian:     stat.Quantile(0.5, stat.Empirical, x, nil),
		DiffP95:        stat.Quantile(0.95, stat.Empirical, x, nil),
		DiffMax:        floats.Max(x),
		BackgroundGray: grayMeans(bg),
		ReferenceGray:  grayMeans(ref),
	}
	s.ForegroundRatio = float64(s.Foreground) / float64(s.Pixels)
	return s, diffs, nil
}
