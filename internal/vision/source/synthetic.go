package source

import (
	"context"
	"io"
	"time"

	"github.com/videre-labs/videre/internal/vision/framequeue"
)

// Synthetic emits a fixed number of generated frames with a bright
// square drifting across a dark background. Used for smoke-testing the
// pipeline without a video file or ffmpeg.
type Synthetic struct {
	width, height int
	count         int
	seq           int64
}

// NewSynthetic returns a source producing count frames of width x height.
func NewSynthetic(width, height, count int) *Synthetic {
	return &Synthetic{width: width, height: height, count: count}
}

// Next generates the next frame, or io.EOF once count frames were emitted.
func (s *Synthetic) Next(ctx context.Context) (framequeue.Frame, error) {
	if err := ctx.Err(); err != nil {
		return framequeue.Frame{}, err
	}
	if s.seq >= int64(s.count) {
		return framequeue.Frame{}, io.EOF
	}
	s.seq++

	data := make([]byte, s.width*s.height*4)
	for i := 3; i < len(data); i += 4 {
		data[i] = 0xff
	}

	// A square a quarter of the frame wide, stepping 2px right per frame.
	side := s.width / 4
	x0 := int(s.seq) * 2 % (s.width - side)
	y0 := (s.height - side) / 2
	for y := y0; y < y0+side; y++ {
		for x := x0; x < x0+side; x++ {
			i := (y*s.width + x) * 4
			data[i] = 0xff
			data[i+1] = 0xff
		}
	}

	return framequeue.Frame{
		Seq:         s.seq,
		Width:       s.width,
		Height:      s.height,
		Format:      framequeue.PixelRGBA,
		TSUnixNanos: time.Now().UnixNano(),
		Data:        data,
	}, nil
}

// Close is a no-op; synthetic frames hold no resources.
func (s *Synthetic) Close() error { return nil }
