// Package source provides frame acquisition backends for the pipeline.
package source

import (
	"context"
	"fmt"
	"io"
	"time"

	vidio "github.com/AlexEidt/Vidio"

	"github.com/videre-labs/videre/internal/vision/framequeue"
)

// VideoFile reads frames from a video file via ffmpeg. Not safe for
// concurrent use; the pipeline's single producer goroutine is the
// intended caller.
type VideoFile struct {
	video *vidio.Video
	path  string
	seq   int64
}

// OpenVideoFile opens the file at path for sequential frame reads.
func OpenVideoFile(path string) (*VideoFile, error) {
	video, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	return &VideoFile{video: video, path: path}, nil
}

// Width returns the video's frame width in pixels.
func (v *VideoFile) Width() int { return v.video.Width() }

// Height returns the video's frame height in pixels.
func (v *VideoFile) Height() int { return v.video.Height() }

// FPS returns the container's declared frame rate.
func (v *VideoFile) FPS() float64 { return v.video.FPS() }

// Next decodes the next frame. Returns io.EOF at end of stream. The
// returned frame owns its pixel buffer; Vidio's internal buffer is
// copied so the next Read cannot alias it.
func (v *VideoFile) Next(ctx context.Context) (framequeue.Frame, error) {
	if err := ctx.Err(); err != nil {
		return framequeue.Frame{}, err
	}
	if !v.video.Read() {
		return framequeue.Frame{}, io.EOF
	}

	buf := v.video.FrameBuffer()
	data := make([]byte, len(buf))
	copy(data, buf)

	v.seq++
	return framequeue.Frame{
		Seq:         v.seq,
		Width:       v.video.Width(),
		Height:      v.video.Height(),
		Format:      framequeue.PixelRGBA,
		TSUnixNanos: time.Now().UnixNano(),
		Data:        data,
	}, nil
}

// Close releases the decoder.
func (v *VideoFile) Close() error {
	v.video.Close()
	return nil
}
