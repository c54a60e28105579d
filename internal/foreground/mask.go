package foreground

import (
	"errors"
	"fmt"

	"github.com/banshee-data/framebg/internal/frame"
	"github.com/banshee-data/framebg/internal/partition"
)

// ErrNegativeThreshold is returned for a threshold below zero.
var ErrNegativeThreshold = errors.New("foreground: threshold must be non-negative")

// Gray returns floor((r+g+b)/3). The channel sum is divided once, not
// each channel separately.
func Gray(r, g, b int) int {
	return (r + g + b) / 3
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// MaskInto writes 255 into dst[i] where |gray(bg) - gray(ref)| > threshold
// and 0 elsewhere. It returns the number of foreground pixels written.
func MaskInto(dst []int, bg, ref [frame.NumChannels][]int, threshold int) int {
	fg := 0
	for i := range dst {
		b := Gray(bg[frame.Red][i], bg[frame.Green][i], bg[frame.Blue][i])
		r := Gray(ref[frame.Red][i], ref[frame.Green][i], ref[frame.Blue][i])
		if absInt(b-r) > threshold {
			dst[i] = frame.Foreground
			fg++
		} else {
			dst[i] = 0
		}
	}
	return fg
}

func checkInputs(bg, ref *frame.Grid, threshold int) error {
	if bg == nil || ref == nil {
		return fmt.Errorf("foreground: background and reference are required")
	}
	if !bg.SameShape(ref) {
		return fmt.Errorf("%w: background %dx%d, reference %dx%d",
			frame.ErrDimensionMismatch, bg.Width, bg.Height, ref.Width, ref.Height)
	}
	if threshold < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeThreshold, threshold)
	}
	return nil
}

// MaskRange computes the mask for the pixels in r only.
func MaskRange(bg, ref *frame.Grid, r partition.Range, threshold int) ([]int, error) {
	if err := checkInputs(bg, ref, threshold); err != nil {
		return nil, err
	}
	if r.Start < 0 || r.Count < 0 || r.End() > bg.Len() {
		return nil, fmt.Errorf("foreground: range %v outside %d pixels", r, bg.Len())
	}
	out := make([]int, r.Count)
	MaskInto(out, bg.View(r), ref.View(r), threshold)
	return out, nil
}

// Mask computes the full mask.
func Mask(bg, ref *frame.Grid, threshold int) (*frame.Mask, error) {
	if err := checkInputs(bg, ref, threshold); err != nil {
		return nil, err
	}
	m, err := frame.NewMask(bg.Width, bg.Height)
	if err != nil {
		return nil, err
	}
	MaskInto(m.Values, bg.Channels(), ref.Channels(), threshold)
	return m, nil
}

// Differences returns |gray(bg) - gray(ref)| for every pixel.
func Differences(bg, ref *frame.Grid) ([]int, error) {
	if err := checkInputs(bg, ref, 0); err != nil {
		return nil, err
	}
	out := make([]int, bg.Len())
	for i := range out {
		b := Gray(bg.Red[i], bg.Green[i], bg.Blue[i])
		r := Gray(ref.Red[i], ref.Green[i], ref.Blue[i])
		out[i] = absInt(b - r)
	}
	return out, nil
}

// Kernel returns a range kernel for package strategy. in holds six planes,
// background R, G, B followed by reference R, G, B; out holds the mask
// plane. The tally is the foreground pixel count.
func Kernel(threshold int) func(in, out [][]int) (int, error) {
	return func(in, out [][]int) (int, error) {
		if threshold < 0 {
			return 0, fmt.Errorf("%w: got %d", ErrNegativeThreshold, threshold)
		}
		if len(in) != 2*frame.NumChannels || len(out) != 1 {
			return 0, fmt.Errorf("foreground: got %d input and %d output planes, want 6 and 1", len(in), len(out))
		}
		bg := [frame.NumChannels][]int{in[0], in[1], in[2]}
		ref := [frame.NumChannels][]int{in[3], in[4], in[5]}
		return MaskInto(out[0], bg, ref, threshold), nil
	}
}
