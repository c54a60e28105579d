package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/banshee-data/framebg/internal/frame"
	"github.com/banshee-data/framebg/internal/fsutil"
	"github.com/banshee-data/framebg/internal/monitoring"
	"github.com/banshee-data/framebg/internal/security"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // register decoder
)

// DefaultPattern names frames frame1.png, frame2.png, ...
const DefaultPattern = "frame%d.png"

var logs = monitoring.NewStreams("[imageio] ")

// ErrUnsupportedFormat is returned when an output name has an extension
// with no encoder.
var ErrUnsupportedFormat = errors.New("imageio: unsupported output format")

// DecodeError reports a frame that could not be read or decoded.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("imageio: decode frame %q: %v", e.ID, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports an output image that could not be written.
type EncodeError struct {
	Name string
	Err  error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("imageio: encode %q: %v", e.Name, e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// Codec reads frames from an input directory and writes results to an
// output directory.
type Codec struct {
	fs        fsutil.FileSystem
	inputDir  string
	outputDir string
	pattern   string
}

// frameVerb matches the frame-number verb, optionally zero-padded or
// width-limited (%d, %03d, %-4d).
var frameVerb = regexp.MustCompile(`%[0-9-]*d`)

// NewCodec returns a codec over fsys. An empty pattern selects
// DefaultPattern; the pattern must contain exactly one integer verb and
// no other % directives.
func NewCodec(fsys fsutil.FileSystem, inputDir, outputDir, pattern string) (*Codec, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	if len(frameVerb.FindAllString(pattern, -1)) != 1 || strings.Count(pattern, "%") != 1 {
		return nil, fmt.Errorf("imageio: frame pattern %q must contain exactly one %%d", pattern)
	}
	return &Codec{fs: fsys, inputDir: inputDir, outputDir: outputDir, pattern: pattern}, nil
}

// FrameIdentifiers returns the 1-based frame names in load order.
func (c *Codec) FrameIdentifiers(count int) []string {
	ids := make([]string, 0, max(count, 0))
	for i := 1; i <= count; i++ {
		ids = append(ids, fmt.Sprintf(c.pattern, i))
	}
	return ids
}

// LoadFrame decodes one frame.
func (c *Codec) LoadFrame(id string) (*frame.Grid, error) {
	path, err := security.JoinWithin(c.inputDir, id)
	if err != nil {
		return nil, &DecodeError{ID: id, Err: err}
	}
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, &DecodeError{ID: id, Err: err}
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{ID: id, Err: err}
	}
	g, err := gridFromImage(img)
	if err != nil {
		return nil, &DecodeError{ID: id, Err: err}
	}
	logs.Tracef("loaded %s (%s %dx%d)", id, format, g.Width, g.Height)
	return g, nil
}

// LoadSequence decodes frames in order and checks they share dimensions.
// Nothing is returned on error.
func (c *Codec) LoadSequence(ids []string) (frame.Sequence, error) {
	if len(ids) == 0 {
		return nil, frame.ErrEmptySequence
	}
	seq := make(frame.Sequence, 0, len(ids))
	for _, id := range ids {
		g, err := c.LoadFrame(id)
		if err != nil {
			seq.Release()
			return nil, err
		}
		if len(seq) > 0 && !seq[0].SameShape(g) {
			seq.Release()
			return nil, &DecodeError{ID: id, Err: fmt.Errorf("%w: %dx%d, first frame is %dx%d",
				frame.ErrDimensionMismatch, g.Width, g.Height, seq[0].Width, seq[0].Height)}
		}
		seq = append(seq, g)
	}
	logs.Diagf("loaded %d frames from %s", len(seq), c.inputDir)
	return seq, nil
}

func gridFromImage(img image.Image) (*frame.Grid, error) {
	b := img.Bounds()
	g, err := frame.NewGrid(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			g.Red[i], g.Green[i], g.Blue[i] = int(px.R), int(px.G), int(px.B)
			i++
		}
	}
	return g, nil
}

// SaveImage writes g as an opaque colour image. Samples are clamped to
// [0,255]; g itself is not modified.
func (c *Codec) SaveImage(g *frame.Grid, name string) error {
	if g == nil || g.Released() {
		return &EncodeError{Name: name, Err: errors.New("no image data")}
	}
	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	for i := 0; i < g.Len(); i++ {
		o := i * 4
		img.Pix[o] = uint8(frame.Clamp(g.Red[i]))
		img.Pix[o+1] = uint8(frame.Clamp(g.Green[i]))
		img.Pix[o+2] = uint8(frame.Clamp(g.Blue[i]))
		img.Pix[o+3] = 0xff
	}
	return c.write(name, img)
}

// SaveGrayscale writes samples as an 8-bit grayscale image, clamping each
// sample to [0,255].
func (c *Codec) SaveGrayscale(samples []int, width, height int, name string) error {
	if width < 1 || height < 1 || len(samples) != width*height {
		return &EncodeError{Name: name, Err: fmt.Errorf("%d samples for %dx%d image", len(samples), width, height)}
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i, v := range samples {
		img.Pix[i] = uint8(frame.Clamp(v))
	}
	return c.write(name, img)
}

func (c *Codec) write(name string, img image.Image) error {
	enc, err := encoderFor(name)
	if err != nil {
		return &EncodeError{Name: name, Err: err}
	}
	if c.outputDir != "" {
		if err := c.fs.MkdirAll(c.outputDir, 0o755); err != nil {
			return &EncodeError{Name: name, Err: err}
		}
	}
	path, err := security.JoinWithin(c.outputDir, name)
	if err != nil {
		return &EncodeError{Name: name, Err: err}
	}
	w, err := c.fs.Create(path)
	if err != nil {
		return &EncodeError{Name: name, Err: err}
	}
	if err := enc(w, img); err != nil {
		w.Close()
		return &EncodeError{Name: name, Err: err}
	}
	if err := w.Close(); err != nil {
		return &EncodeError{Name: name, Err: err}
	}
	logs.Diagf("wrote %s", path)
	return nil
}

type encodeFunc func(io.Writer, image.Image) error

func encoderFor(name string) (encodeFunc, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".png":
		return png.Encode, nil
	case ".jpg", ".jpeg":
		return func(w io.Writer, img image.Image) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
		}, nil
	case ".bmp":
		return bmp.Encode, nil
	case ".tif", ".tiff":
		return func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
