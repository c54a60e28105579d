// Package testutil provides shared test fixtures.
//
// The generators are deterministic for a given seed so strategy runs can be
// compared sample for sample.
package testutil

import (
	"math/rand/v2"

	"github.com/banshee-data/framebg/internal/frame"
)

// ScenarioSequence returns the three 2x2 frames used throughout the package
// tests: red channels [10,20,30,40], [20,20,30,40], [30,20,30,40] with green
// and blue at zero. The mean red channel is [20,20,30,40].
func ScenarioSequence() frame.Sequence {
	reds := [][]int{
		{10, 20, 30, 40},
		{20, 20, 30, 40},
		{30, 20, 30, 40},
	}
	seq := make(frame.Sequence, len(reds))
	for i, r := range reds {
		g, err := frame.FromChannels(2, 2, [frame.NumChannels][]int{r, make([]int, 4), make([]int, 4)})
		if err != nil {
			panic(err)
		}
		seq[i] = g
	}
	return seq
}

// SyntheticSequence returns n frames of a static noisy scene with a bright
// square that moves one pixel per frame. The last frame therefore differs
// from the mean along the square's trail.
func SyntheticSequence(width, height, n int, seed uint64) frame.Sequence {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	base := [frame.NumChannels][]int{
		make([]int, width*height),
		make([]int, width*height),
		make([]int, width*height),
	}
	for c := range base {
		for i := range base[c] {
			base[c][i] = 40 + rng.IntN(120)
		}
	}

	side := max(1, min(width, height)/4)
	seq := make(frame.Sequence, n)
	for f := 0; f < n; f++ {
		g, err := frame.NewGrid(width, height)
		if err != nil {
			panic(err)
		}
		for c, plane := range g.Channels() {
			for i := range plane {
				plane[i] = frame.Clamp(base[c][i] + rng.IntN(7) - 3)
			}
		}
		x0 := f % max(1, width-side+1)
		y0 := (f / 2) % max(1, height-side+1)
		for y := y0; y < y0+side; y++ {
			for x := x0; x < x0+side; x++ {
				i := g.Index(y, x)
				g.Red[i], g.Green[i], g.Blue[i] = 250, 250, 250
			}
		}
		seq[f] = g
	}
	return seq
}
