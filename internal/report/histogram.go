package report

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/banshee-data/framebg/internal/fsutil"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const histogramBins = 32

// WriteHistogram renders the distribution of grayscale differences as a
// PNG with a vertical marker at the threshold.
func WriteHistogram(fsys fsutil.FileSystem, path string, diffs []int, threshold int) error {
	if len(diffs) == 0 {
		return errors.New("report: no differences to plot")
	}

	p := plot.New()
	p.Title.Text = "Background vs reference"
	p.X.Label.Text = "Grayscale difference"
	p.Y.Label.Text = "Pixels"

	vals := make(plotter.Values, len(diffs))
	for i, d := range diffs {
		vals[i] = float64(d)
	}
	h, err := plotter.NewHist(vals, histogramBins)
	if err != nil {
		return fmt.Errorf("report: histogram: %w", err)
	}
	h.FillColor = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	p.Add(h)

	top := 0.0
	for _, b := range h.Bins {
		top = max(top, b.Weight)
	}
	marker, err := plotter.NewLine(plotter.XYs{
		{X: float64(threshold), Y: 0},
		{X: float64(threshold), Y: top},
	})
	if err != nil {
		return fmt.Errorf("report: threshold marker: %w", err)
	}
	marker.Color = color.RGBA{R: 220, G: 50, B: 47, A: 255}
	marker.Width = vg.Points(1.5)
	p.Add(marker)
	p.Legend.Add(fmt.Sprintf("threshold %d", threshold), marker)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("report: render histogram: %w", err)
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return f.Close()
}
