package frame

import "fmt"

// Sequence is an ordered set of equally sized frames. The last frame is the
// reference used for masking.
type Sequence []*Grid

// Validate checks the sequence is non-empty and every frame shares the
// first frame's dimensions.
func (s Sequence) Validate() error {
	if len(s) == 0 {
		return ErrEmptySequence
	}
	first := s[0]
	if first == nil {
		return fmt.Errorf("frame: frame 0 is missing")
	}
	if first.Width <= 0 || first.Height <= 0 {
		return fmt.Errorf("%w: frame 0 is %dx%d", ErrInvalidDimensions, first.Width, first.Height)
	}
	for i, g := range s {
		if g == nil {
			return fmt.Errorf("frame: frame %d is missing", i)
		}
		if !g.SameShape(first) {
			return fmt.Errorf("%w: frame %d is %dx%d, frame 0 is %dx%d",
				ErrDimensionMismatch, i, g.Width, g.Height, first.Width, first.Height)
		}
		if len(g.Red) != g.Len() || len(g.Green) != g.Len() || len(g.Blue) != g.Len() {
			return fmt.Errorf("frame: frame %d channel length does not match %dx%d", i, g.Width, g.Height)
		}
	}
	return nil
}

// Dimensions returns the shared width and height. Call Validate first.
func (s Sequence) Dimensions() (width, height int) {
	if len(s) == 0 || s[0] == nil {
		return 0, 0
	}
	return s[0].Width, s[0].Height
}

// Reference returns the last frame, or nil for an empty sequence.
func (s Sequence) Reference() *Grid {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// Planes flattens the sequence into frame-major channel planes:
// frame f channel c is at index f*NumChannels+c.
func (s Sequence) Planes() [][]int {
	out := make([][]int, 0, len(s)*NumChannels)
	for _, g := range s {
		out = append(out, g.Red, g.Green, g.Blue)
	}
	return out
}

// Release drops every frame's buffers.
func (s Sequence) Release() {
	for _, g := range s {
		g.Release()
	}
}
