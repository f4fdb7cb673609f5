// Package preprocess converts captured frames into the planar float
// tensor the detector consumes: resize to the model's square input,
// normalize to [0,1], and lay the channels out CHW.
//
// The resize stretches both axes independently rather than padding to
// preserve aspect ratio. The decode stage undoes exactly this stretch
// when mapping boxes back to the original image, so the two must agree.
package preprocess

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/videre-labs/videre/internal/vision/framequeue"
)

// Blob is a detector input tensor: 3 planes of Side x Side float32
// values in RGB channel order, each normalized to [0, 1].
type Blob struct {
	Side int
	Data []float32
}

// Empty reports whether the blob holds no tensor data.
func (b Blob) Empty() bool {
	return b.Side <= 0 || len(b.Data) < 3*b.Side*b.Side
}

// Preprocessor resizes frames to a fixed square model input.
type Preprocessor struct {
	side int
}

// New returns a Preprocessor targeting a side x side model input.
func New(side int) (*Preprocessor, error) {
	if side <= 0 {
		return nil, fmt.Errorf("model input side must be positive, got %d", side)
	}
	return &Preprocessor{side: side}, nil
}

// Side returns the configured model input side in pixels.
func (p *Preprocessor) Side() int { return p.side }

// Process resizes the frame to the model input and returns the planar
// RGB blob. The frame's pixel data must match its declared dimensions
// and format.
func (p *Preprocessor) Process(f framequeue.Frame) (Blob, error) {
	img, err := frameImage(f)
	if err != nil {
		return Blob{}, err
	}

	resized := imaging.Resize(img, p.side, p.side, imaging.Lanczos)

	n := p.side * p.side
	blob := Blob{Side: p.side, Data: make([]float32, 3*n)}

	// imaging always returns NRGBA with a contiguous Pix slice.
	pix := resized.Pix
	for i := 0; i < n; i++ {
		base := i * 4
		blob.Data[i] = float32(pix[base]) / 255     // R plane
		blob.Data[n+i] = float32(pix[base+1]) / 255 // G plane
		blob.Data[2*n+i] = float32(pix[base+2]) / 255
	}
	return blob, nil
}

// frameImage wraps the frame's pixel buffer in an image.Image without
// copying where the layout allows it.
func frameImage(f framequeue.Frame) (image.Image, error) {
	if f.Empty() {
		return nil, fmt.Errorf("empty frame (seq %d)", f.Seq)
	}
	want := f.Width * f.Height * f.Format.BytesPerPixel()
	if len(f.Data) < want {
		return nil, fmt.Errorf("frame %d: %d pixel bytes, want %d", f.Seq, len(f.Data), want)
	}

	switch f.Format {
	case framequeue.PixelRGBA:
		return &image.NRGBA{
			Pix:    f.Data,
			Stride: f.Width * 4,
			Rect:   image.Rect(0, 0, f.Width, f.Height),
		}, nil
	case framequeue.PixelRGB24:
		// No packed 24-bit image type in the standard library; expand to
		// NRGBA once here.
		out := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
		for i := 0; i < f.Width*f.Height; i++ {
			out.Pix[i*4] = f.Data[i*3]
			out.Pix[i*4+1] = f.Data[i*3+1]
			out.Pix[i*4+2] = f.Data[i*3+2]
			out.Pix[i*4+3] = 0xff
		}
		return out, nil
	default:
		return nil, fmt.Errorf("frame %d: unsupported pixel format %q", f.Seq, f.Format)
	}
}
