package frame

import "fmt"

// Foreground is the mask value for a pixel that differs from the background.
const Foreground = 255

// Mask is a single-channel {0,255} grid.
type Mask struct {
	Values []int
	Width  int
	Height int
}

// NewMask allocates an all-background mask.
func NewMask(width, height int) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &Mask{Values: make([]int, width*height), Width: width, Height: height}, nil
}

// Len returns the pixel count.
func (m *Mask) Len() int { return m.Width * m.Height }

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Values {
		if v == Foreground {
			n++
		}
	}
	return n
}

// Clamp forces every value into [0,255].
func (m *Mask) Clamp() { ClampSlice(m.Values) }

// Release drops the value slice.
func (m *Mask) Release() {
	if m != nil {
		m.Values = nil
	}
}
