package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videre-labs/videre/internal/vision/framequeue"
)

// solidFrame builds a width x height frame filled with one RGBA color.
func solidFrame(width, height int, format framequeue.PixelFormat, r, g, b byte) framequeue.Frame {
	bpp := format.BytesPerPixel()
	data := make([]byte, width*height*bpp)
	for i := 0; i < width*height; i++ {
		data[i*bpp] = r
		data[i*bpp+1] = g
		data[i*bpp+2] = b
		if format == framequeue.PixelRGBA {
			data[i*bpp+3] = 0xff
		}
	}
	return framequeue.Frame{Seq: 1, Width: width, Height: height, Format: format, Data: data}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(0)
	assert.Error(t, err)
	_, err = New(-640)
	assert.Error(t, err)

	p, err := New(320)
	require.NoError(t, err)
	assert.Equal(t, 320, p.Side())
}

func TestProcessSolidColor(t *testing.T) {
	t.Parallel()

	p, err := New(8)
	require.NoError(t, err)

	for _, format := range []framequeue.PixelFormat{framequeue.PixelRGBA, framequeue.PixelRGB24} {
		format := format
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()

			blob, err := p.Process(solidFrame(16, 16, format, 255, 128, 0))
			require.NoError(t, err)
			require.False(t, blob.Empty())
			require.Len(t, blob.Data, 3*8*8)

			n := 8 * 8
			// A solid input stays solid through any resample filter.
			for i := 0; i < n; i++ {
				assert.InDelta(t, 1.0, float64(blob.Data[i]), 0.01)
				assert.InDelta(t, 128.0/255.0, float64(blob.Data[n+i]), 0.01)
				assert.InDelta(t, 0.0, float64(blob.Data[2*n+i]), 0.01)
			}
		})
	}
}

func TestProcessStretchesNonSquareInput(t *testing.T) {
	t.Parallel()

	p, err := New(4)
	require.NoError(t, err)

	// Wide frame; left half red, right half blue. After a stretch resize
	// the left columns of the blob stay red and the right stay blue.
	width, height := 32, 8
	f := solidFrame(width, height, framequeue.PixelRGBA, 255, 0, 0)
	for y := 0; y < height; y++ {
		for x := width / 2; x < width; x++ {
			i := (y*width + x) * 4
			f.Data[i] = 0
			f.Data[i+2] = 255
		}
	}

	blob, err := p.Process(f)
	require.NoError(t, err)

	n := 4 * 4
	// Column 0 red plane high, column 3 blue plane high.
	assert.Greater(t, float64(blob.Data[0]), 0.9)     // R at (0,0)
	assert.Greater(t, float64(blob.Data[2*n+3]), 0.9) // B at (3,0)
	assert.Less(t, float64(blob.Data[3]), 0.1)        // R at (3,0)
}

func TestProcessRejectsBadFrames(t *testing.T) {
	t.Parallel()

	p, err := New(8)
	require.NoError(t, err)

	t.Run("empty frame", func(t *testing.T) {
		t.Parallel()
		_, err := p.Process(framequeue.Frame{})
		assert.Error(t, err)
	})

	t.Run("short pixel buffer", func(t *testing.T) {
		t.Parallel()
		f := framequeue.Frame{Seq: 7, Width: 16, Height: 16, Format: framequeue.PixelRGBA, Data: make([]byte, 10)}
		_, err := p.Process(f)
		assert.Error(t, err)
	})

	t.Run("unknown pixel format", func(t *testing.T) {
		t.Parallel()
		f := solidFrame(4, 4, framequeue.PixelRGBA, 1, 2, 3)
		f.Format = framequeue.PixelFormat("yuv420p")
		_, err := p.Process(f)
		assert.Error(t, err)
	})
}
