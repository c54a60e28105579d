package frame

import (
	"errors"
	"fmt"

	"github.com/banshee-data/framebg/internal/partition"
)

// MaxSample is the upper bound of an output sample.
const MaxSample = 255

// Channel indices into Grid.Channels.
const (
	Red = iota
	Green
	Blue
	NumChannels
)

var (
	// ErrEmptySequence is returned for a sequence with no frames.
	ErrEmptySequence = errors.New("frame: empty sequence")
	// ErrDimensionMismatch is returned when frames differ in size.
	ErrDimensionMismatch = errors.New("frame: dimension mismatch")
	// ErrInvalidDimensions is returned for non-positive width or height.
	ErrInvalidDimensions = errors.New("frame: width and height must be positive")
)

// Grid is a three-channel integer pixel grid.
type Grid struct {
	Red    []int
	Green  []int
	Blue   []int
	Width  int
	Height int
}

// NewGrid allocates a zeroed grid.
func NewGrid(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	n := width * height
	return &Grid{
		Red:    make([]int, n),
		Green:  make([]int, n),
		Blue:   make([]int, n),
		Width:  width,
		Height: height,
	}, nil
}

// FromChannels wraps existing channel planes. The grid takes ownership of
// the slices.
func FromChannels(width, height int, ch [NumChannels][]int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	n := width * height
	for c, plane := range ch {
		if len(plane) != n {
			return nil, fmt.Errorf("frame: channel %d has %d samples, want %d", c, len(plane), n)
		}
	}
	return &Grid{Red: ch[Red], Green: ch[Green], Blue: ch[Blue], Width: width, Height: height}, nil
}

// Len returns the pixel count.
func (g *Grid) Len() int { return g.Width * g.Height }

// Index maps a row/column pair to a flat index.
func (g *Grid) Index(row, col int) int { return row*g.Width + col }

// Channels returns the three planes in Red, Green, Blue order.
func (g *Grid) Channels() [NumChannels][]int {
	return [NumChannels][]int{g.Red, g.Green, g.Blue}
}

// View returns the three planes restricted to r. The slices alias the grid.
func (g *Grid) View(r partition.Range) [NumChannels][]int {
	return [NumChannels][]int{
		g.Red[r.Start:r.End()],
		g.Green[r.Start:r.End()],
		g.Blue[r.Start:r.End()],
	}
}

// SameShape reports whether o has the same dimensions as g.
func (g *Grid) SameShape(o *Grid) bool {
	return g != nil && o != nil && g.Width == o.Width && g.Height == o.Height
}

// Clamp forces every sample into [0,255].
func (g *Grid) Clamp() {
	for _, plane := range g.Channels() {
		ClampSlice(plane)
	}
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	c := &Grid{Width: g.Width, Height: g.Height}
	c.Red = append([]int(nil), g.Red...)
	c.Green = append([]int(nil), g.Green...)
	c.Blue = append([]int(nil), g.Blue...)
	return c
}

// Release drops the channel planes. The grid must not be used afterwards.
func (g *Grid) Release() {
	if g == nil {
		return
	}
	g.Red, g.Green, g.Blue = nil, nil, nil
}

// Released reports whether Release has been called.
func (g *Grid) Released() bool { return g.Red == nil && g.Green == nil && g.Blue == nil }

// Clamp bounds v to [0,255].
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxSample {
		return MaxSample
	}
	return v
}

// ClampSlice clamps every element of s in place.
func ClampSlice(s []int) {
	for i, v := range s {
		s[i] = Clamp(v)
	}
}
