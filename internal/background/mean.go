package background

import (
	"errors"
	"fmt"

	"github.com/banshee-data/framebg/internal/frame"
	"github.com/banshee-data/framebg/internal/partition"
)

// ErrNoFrames is returned when there is nothing to average.
var ErrNoFrames = errors.New("background: no frames")

// Means is one worker's slice of the background image.
type Means struct {
	Range partition.Range
	Red   []int
	Green []int
	Blue  []int
}

// Channels returns the three planes in Red, Green, Blue order.
func (m Means) Channels() [frame.NumChannels][]int {
	return [frame.NumChannels][]int{m.Red, m.Green, m.Blue}
}

// Accumulate sums every channel across seq over the pixels in r and floor
// divides by the frame count.
func Accumulate(seq frame.Sequence, r partition.Range) (Means, error) {
	if err := seq.Validate(); err != nil {
		return Means{}, err
	}
	if r.Start < 0 || r.Count < 0 || r.End() > seq[0].Len() {
		return Means{}, fmt.Errorf("background: range %v outside %d pixels", r, seq[0].Len())
	}

	m := Means{
		Range: r,
		Red:   make([]int, r.Count),
		Green: make([]int, r.Count),
		Blue:  make([]int, r.Count),
	}
	views := make([][frame.NumChannels][]int, len(seq))
	for f, g := range seq {
		views[f] = g.View(r)
	}
	MeanInto(m.Channels(), views)
	return m, nil
}

// Compute returns the full background image for seq.
func Compute(seq frame.Sequence) (*frame.Grid, error) {
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	w, h := seq.Dimensions()
	m, err := Accumulate(seq, partition.Range{Start: 0, Count: w * h})
	if err != nil {
		return nil, err
	}
	return frame.FromChannels(w, h, m.Channels())
}

// MeanInto writes the per-channel floor mean of frames into dst.
// Every plane in frames and dst must have the same length. dst is
// overwritten, not added to.
func MeanInto(dst [frame.NumChannels][]int, frames [][frame.NumChannels][]int) {
	if len(frames) == 0 {
		return
	}
	n := len(frames)
	for c := 0; c < frame.NumChannels; c++ {
		out := dst[c]
		for i := range out {
			out[i] = 0
		}
		// Frame-major traversal keeps each inner loop on one contiguous plane.
		for _, f := range frames {
			src := f[c]
			for i := range out {
				out[i] += src[i]
			}
		}
		for i := range out {
			out[i] /= n
		}
	}
}

// Kernel returns a range kernel for package strategy. in holds
// frameCount*3 planes in frame-major channel order (see
// frame.Sequence.Planes); out holds the three background planes.
func Kernel(frameCount int) func(in, out [][]int) (int, error) {
	return func(in, out [][]int) (int, error) {
		if frameCount < 1 {
			return 0, ErrNoFrames
		}
		if len(in) != frameCount*frame.NumChannels {
			return 0, fmt.Errorf("background: got %d input planes, want %d", len(in), frameCount*frame.NumChannels)
		}
		if len(out) != frame.NumChannels {
			return 0, fmt.Errorf("background: got %d output planes, want %d", len(out), frame.NumChannels)
		}
		frames := make([][frame.NumChannels][]int, frameCount)
		for f := range frames {
			base := f * frame.NumChannels
			frames[f] = [frame.NumChannels][]int{in[base+frame.Red], in[base+frame.Green], in[base+frame.Blue]}
		}
		MeanInto([frame.NumChannels][]int{out[frame.Red], out[frame.Green], out[frame.Blue]}, frames)
		return 0, nil
	}
}
