package framequeue

// PixelFormat identifies the layout of a frame's pixel buffer.
type PixelFormat string

const (
	// PixelRGB24 is packed 8-bit RGB, 3 bytes per pixel.
	PixelRGB24 PixelFormat = "rgb24"
	// PixelRGBA is packed 8-bit RGBA, 4 bytes per pixel (Vidio's native buffer).
	PixelRGBA PixelFormat = "rgba"
)

// BytesPerPixel returns the per-pixel byte width of the format, or 0 for
// an unknown format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelRGB24:
		return 3
	case PixelRGBA:
		return 4
	}
	return 0
}

// Frame is a single acquired image. The pixel buffer is owned exclusively
// by whichever stage currently holds the frame: the producer until it is
// enqueued, the queue while buffered, and the consumer after dequeue.
// The queue copies the buffer on Push so producer and consumer never alias.
type Frame struct {
	// Seq is the acquisition sequence number, starting at 1.
	Seq int64

	Width  int
	Height int
	Format PixelFormat

	// TSUnixNanos is the acquisition timestamp.
	TSUnixNanos int64

	// Data is the packed pixel buffer, Width*Height*BytesPerPixel bytes.
	Data []byte
}

// Empty reports whether the frame carries no usable image data.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Data) == 0
}

// Clone returns a deep copy of the frame with its own pixel buffer.
func (f Frame) Clone() Frame {
	out := f
	if f.Data != nil {
		out.Data = make([]byte, len(f.Data))
		copy(out.Data, f.Data)
	}
	return out
}
