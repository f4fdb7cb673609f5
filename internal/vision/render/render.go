// Package render provides pipeline sinks that present tracked objects:
// a log sink for headless runs and an overlay sink writing annotated
// JPEG stills.
package render

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/videre-labs/videre/internal/monitoring"
	"github.com/videre-labs/videre/internal/vision/classnames"
	"github.com/videre-labs/videre/internal/vision/framequeue"
	"github.com/videre-labs/videre/internal/vision/tracking"
)

// LogSink prints one line per frame carrying renderable tracks.
type LogSink struct{}

// Render logs the renderable tracks through the monitoring logger.
func (LogSink) Render(frame framequeue.Frame, tracks []tracking.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	for _, trk := range tracks {
		b := trk.SmoothedBox
		monitoring.Logf("frame %d: track %d %s conf=%.2f box=(%.0f,%.0f %.0fx%.0f)",
			frame.Seq, trk.ID, classnames.Name(trk.ClassID), trk.Confidence,
			b.X, b.Y, b.Width, b.Height)
	}
	return nil
}

var boxPalette = []color.NRGBA{
	{R: 0xe6, G: 0x3c, B: 0x3c, A: 0xff},
	{R: 0x3c, G: 0xb4, B: 0x4b, A: 0xff},
	{R: 0x3c, G: 0x78, B: 0xe6, A: 0xff},
	{R: 0xe6, G: 0xb4, B: 0x3c, A: 0xff},
	{R: 0x9b, G: 0x59, B: 0xb6, A: 0xff},
	{R: 0x1a, G: 0xbc, B: 0x9c, A: 0xff},
}

// OverlaySink writes annotated JPEG stills to a directory. Every track
// box is drawn from its smoothed coordinates with a class label, so the
// output reflects what a live overlay would show.
type OverlaySink struct {
	dir string
	// every writes only every Nth frame; 1 writes all.
	every int
}

// NewOverlaySink creates the output directory and returns the sink.
func NewOverlaySink(dir string, every int) (*OverlaySink, error) {
	if every <= 0 {
		every = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create overlay dir %s: %w", dir, err)
	}
	return &OverlaySink{dir: dir, every: every}, nil
}

// Render draws the tracks on a copy of the frame and writes it as
// frame_<seq>.jpg.
func (s *OverlaySink) Render(frame framequeue.Frame, tracks []tracking.Track) error {
	if frame.Seq%int64(s.every) != 0 {
		return nil
	}

	img, err := frameToNRGBA(frame)
	if err != nil {
		return err
	}

	for _, trk := range tracks {
		c := boxPalette[int(trk.ID)%len(boxPalette)]
		b := trk.SmoothedBox
		drawRect(img, int(b.X), int(b.Y), int(b.Width), int(b.Height), c)

		label := fmt.Sprintf("%s #%d %.2f", classnames.Name(trk.ClassID), trk.ID, trk.Confidence)
		drawLabel(img, int(b.X), int(b.Y)-4, label, c)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.jpg", frame.Seq))
	if err := imaging.Save(img, path, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("save overlay %s: %w", path, err)
	}
	return nil
}

func frameToNRGBA(frame framequeue.Frame) (*image.NRGBA, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame (seq %d)", frame.Seq)
	}
	out := image.NewNRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	switch frame.Format {
	case framequeue.PixelRGBA:
		copy(out.Pix, frame.Data)
	case framequeue.PixelRGB24:
		for i := 0; i < frame.Width*frame.Height; i++ {
			out.Pix[i*4] = frame.Data[i*3]
			out.Pix[i*4+1] = frame.Data[i*3+1]
			out.Pix[i*4+2] = frame.Data[i*3+2]
			out.Pix[i*4+3] = 0xff
		}
	default:
		return nil, fmt.Errorf("unsupported pixel format %q", frame.Format)
	}
	return out, nil
}

// drawRect draws a 2px rectangle outline clipped to the image bounds.
func drawRect(img *image.NRGBA, x, y, w, h int, c color.NRGBA) {
	const thickness = 2
	for t := 0; t < thickness; t++ {
		drawHLine(img, x, x+w, y+t, c)
		drawHLine(img, x, x+w, y+h-1-t, c)
		drawVLine(img, x+t, y, y+h, c)
		drawVLine(img, x+w-1-t, y, y+h, c)
	}
}

func drawHLine(img *image.NRGBA, x0, x1, y int, c color.NRGBA) {
	bounds := img.Bounds()
	if y < bounds.Min.Y || y >= bounds.Max.Y {
		return
	}
	for x := max(x0, bounds.Min.X); x < min(x1, bounds.Max.X); x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X {
		return
	}
	for y := max(y0, bounds.Min.Y); y < min(y1, bounds.Max.Y); y++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawLabel(img *image.NRGBA, x, y int, label string, c color.NRGBA) {
	if y < basicfont.Face7x13.Ascent {
		y = basicfont.Face7x13.Ascent
	}
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}
