package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videre-labs/videre/internal/timeutil"
	"github.com/videre-labs/videre/internal/vision/framequeue"
	"github.com/videre-labs/videre/internal/vision/postprocess"
	"github.com/videre-labs/videre/internal/vision/preprocess"
	"github.com/videre-labs/videre/internal/vision/tracking"
)

const testSide = 64

// testFrame builds a valid RGBA frame matching the model input size so
// no rescaling ambiguity creeps into box assertions.
func testFrame(seq int64) framequeue.Frame {
	return framequeue.Frame{
		Seq:         seq,
		Width:       testSide,
		Height:      testSide,
		Format:      framequeue.PixelRGBA,
		TSUnixNanos: seq * 1000,
		Data:        make([]byte, testSide*testSide*4),
	}
}

// predWithBox builds a single-class prediction carrying one confident
// box in model coordinates.
func predWithBox(box postprocess.Rect, conf float32) postprocess.Tensor {
	pred := postprocess.NewTensor(5, 1)
	pred.Set(0, 0, box.X+box.Width/2)
	pred.Set(1, 0, box.Y+box.Height/2)
	pred.Set(2, 0, box.Width)
	pred.Set(3, 0, box.Height)
	pred.Set(4, 0, conf)
	return pred
}

// scriptedSource hands out a fixed frame list, then io.EOF.
type scriptedSource struct {
	frames []framequeue.Frame
	idx    int
	closed bool
}

func (s *scriptedSource) Next(ctx context.Context) (framequeue.Frame, error) {
	if err := ctx.Err(); err != nil {
		return framequeue.Frame{}, err
	}
	if s.idx >= len(s.frames) {
		return framequeue.Frame{}, io.EOF
	}
	f := s.frames[s.idx]
	s.idx++
	return f, nil
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

// scriptedEngine returns one tensor per call, in order. Calls past the
// script return an empty tensor. failOn triggers an error for that
// 1-based call number.
type scriptedEngine struct {
	preds  []postprocess.Tensor
	calls  int
	failOn int
}

func (e *scriptedEngine) Infer(ctx context.Context, blob preprocess.Blob) (postprocess.Tensor, error) {
	e.calls++
	if e.failOn > 0 && e.calls == e.failOn {
		return postprocess.Tensor{}, errors.New("session run failed")
	}
	if e.calls <= len(e.preds) {
		return e.preds[e.calls-1], nil
	}
	return postprocess.Tensor{}, nil
}

// captureSink records the renderable track ids seen per frame.
type captureSink struct {
	perFrame map[int64][]int64
}

func (s *captureSink) Render(frame framequeue.Frame, tracks []tracking.Track) error {
	if s.perFrame == nil {
		s.perFrame = make(map[int64][]int64)
	}
	var ids []int64
	for _, trk := range tracks {
		ids = append(ids, trk.ID)
	}
	s.perFrame[frame.Seq] = ids
	return nil
}

// captureRecorder records persistence calls in memory.
type captureRecorder struct {
	begun      bool
	ended      bool
	final      tracking.Metrics
	recorded   []int64
	recordedTS []int64
}

func (r *captureRecorder) BeginRun(source string, startedUnixNanos int64) (string, error) {
	r.begun = true
	return "run-test", nil
}

func (r *captureRecorder) RecordTrack(trk tracking.Track, tsUnixNanos int64) error {
	r.recorded = append(r.recorded, trk.ID)
	r.recordedTS = append(r.recordedTS, tsUnixNanos)
	return nil
}

func (r *captureRecorder) EndRun(endedUnixNanos int64, m tracking.Metrics) error {
	r.ended = true
	r.final = m
	return nil
}

func testTracker(t *testing.T, minAge, graceLost int) *tracking.Tracker {
	t.Helper()
	tr, err := tracking.New(tracking.Config{
		EnterConfidence: 0.5,
		KeepConfidence:  0.25,
		MatchIoU:        0.3,
		SmoothingAlpha:  0.5,
		MinAgeToRender:  minAge,
		GraceLost:       graceLost,
	}, nil)
	require.NoError(t, err)
	return tr
}

func testConfig(t *testing.T, src Source, eng Engine, tr *tracking.Tracker) Config {
	t.Helper()
	pre, err := preprocess.New(testSide)
	require.NoError(t, err)
	post, err := postprocess.New(testSide, 0.25, 0.45)
	require.NoError(t, err)
	return Config{
		Source:        src,
		Engine:        eng,
		Preprocessor:  pre,
		Postprocessor: post,
		Tracker:       tr,
		SourceLabel:   "scripted",
		QueueCapacity: 4,
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{}
	eng := &scriptedEngine{}
	tr := testTracker(t, 1, 1)

	t.Run("missing source", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t, src, eng, tr)
		cfg.Source = nil
		_, err := Run(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("nil source pointer behind interface", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t, src, eng, tr)
		cfg.Source = (*scriptedSource)(nil)
		_, err := Run(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("zero queue capacity", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t, src, eng, tr)
		cfg.QueueCapacity = 0
		_, err := Run(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("mismatched model input sides", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t, src, eng, tr)
		pre, err := preprocess.New(testSide * 2)
		require.NoError(t, err)
		cfg.Preprocessor = pre
		_, err = Run(context.Background(), cfg)
		assert.Error(t, err)
	})
}

func TestRunConfirmsAndRendersStableTrack(t *testing.T) {
	t.Parallel()

	box := postprocess.Rect{X: 10, Y: 10, Width: 20, Height: 20}
	pred := predWithBox(box, 0.9)

	src := &scriptedSource{frames: []framequeue.Frame{
		testFrame(1), testFrame(2), testFrame(3), testFrame(4),
	}}
	eng := &scriptedEngine{preds: []postprocess.Tensor{pred, pred, pred, pred}}
	sink := &captureSink{}
	rec := &captureRecorder{}

	cfg := testConfig(t, src, eng, testTracker(t, 2, 1))
	cfg.Sink = sink
	cfg.Recorder = rec

	sum, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.FramesProduced)
	assert.Equal(t, 4, sum.FramesProcessed)
	assert.Zero(t, sum.FramesSkipped)
	assert.Equal(t, 4, sum.DetectionsTotal)
	assert.Equal(t, "run-test", sum.RunID)

	// The track reaches the render age on the third frame.
	assert.Empty(t, sink.perFrame[1])
	assert.Empty(t, sink.perFrame[2])
	assert.Equal(t, []int64{1}, sink.perFrame[3])
	assert.Equal(t, []int64{1}, sink.perFrame[4])

	assert.True(t, rec.begun)
	assert.True(t, rec.ended)
	assert.Equal(t, []int64{1, 1}, rec.recorded)
	assert.Equal(t, 1, rec.final.TracksConfirmed)
	assert.Equal(t, 1, sum.Tracking.TracksCreated)
}

func TestRunSkipsFailedInference(t *testing.T) {
	t.Parallel()

	pred := predWithBox(postprocess.Rect{X: 10, Y: 10, Width: 20, Height: 20}, 0.9)
	src := &scriptedSource{frames: []framequeue.Frame{
		testFrame(1), testFrame(2), testFrame(3),
	}}
	eng := &scriptedEngine{preds: []postprocess.Tensor{pred, pred, pred}, failOn: 2}

	sum, err := Run(context.Background(), testConfig(t, src, eng, testTracker(t, 1, 2)))
	require.NoError(t, err)

	assert.Equal(t, 3, sum.FramesProduced)
	assert.Equal(t, 2, sum.FramesProcessed)
	assert.Equal(t, 1, sum.FramesSkipped)
	// The skipped frame never reached the tracker.
	assert.Equal(t, 2, sum.Tracking.FramesProcessed)
}

func TestRunEvictsVanishedTrack(t *testing.T) {
	t.Parallel()

	pred := predWithBox(postprocess.Rect{X: 10, Y: 10, Width: 20, Height: 20}, 0.9)
	// A valid tensor whose score sits below the confidence threshold
	// decodes to zero detections: the frame was scored, nothing found.
	none := predWithBox(postprocess.Rect{X: 10, Y: 10, Width: 20, Height: 20}, 0.1)

	// Two matches, then three detection-free frames: grace of 1 means
	// eviction.
	src := &scriptedSource{frames: []framequeue.Frame{
		testFrame(1), testFrame(2), testFrame(3), testFrame(4), testFrame(5),
	}}
	eng := &scriptedEngine{preds: []postprocess.Tensor{pred, pred, none, none, none}}

	sum, err := Run(context.Background(), testConfig(t, src, eng, testTracker(t, 1, 1)))
	require.NoError(t, err)

	assert.Equal(t, 5, sum.FramesProcessed)
	assert.Equal(t, 1, sum.Tracking.TracksCreated)
	assert.Equal(t, 1, sum.Tracking.TracksEvicted)
	assert.Zero(t, sum.Tracking.ActiveTracks)
}

func TestRunSkipsEmptyInferenceTensor(t *testing.T) {
	t.Parallel()

	pred := predWithBox(postprocess.Rect{X: 10, Y: 10, Width: 20, Height: 20}, 0.9)
	empty := postprocess.Tensor{}

	// One scored frame, then three empty tensors. Skipped frames never
	// reach the tracker, so the track must not age toward eviction.
	src := &scriptedSource{frames: []framequeue.Frame{
		testFrame(1), testFrame(2), testFrame(3), testFrame(4),
	}}
	eng := &scriptedEngine{preds: []postprocess.Tensor{pred, empty, empty, empty}}

	sum, err := Run(context.Background(), testConfig(t, src, eng, testTracker(t, 1, 1)))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.FramesProcessed)
	assert.Equal(t, 3, sum.FramesSkipped)
	assert.Equal(t, 1, sum.Tracking.FramesProcessed)
	assert.Zero(t, sum.Tracking.TracksEvicted)
	assert.Equal(t, 1, sum.Tracking.ActiveTracks)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedSource{frames: []framequeue.Frame{testFrame(1), testFrame(2)}}
	eng := &scriptedEngine{}

	sum, err := Run(ctx, testConfig(t, src, eng, testTracker(t, 1, 1)))
	require.NoError(t, err)
	assert.Zero(t, sum.FramesProcessed)
}

func TestRunStampsFramesFromClock(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	frame := testFrame(1)
	frame.TSUnixNanos = 0 // force the clock fallback
	src := &scriptedSource{frames: []framequeue.Frame{frame}}
	eng := &scriptedEngine{preds: []postprocess.Tensor{
		predWithBox(postprocess.Rect{X: 10, Y: 10, Width: 20, Height: 20}, 0.9),
	}}
	rec := &captureRecorder{}

	cfg := testConfig(t, src, eng, testTracker(t, 0, 1))
	cfg.Recorder = rec
	cfg.Clock = clock

	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, time.Unix(1000, 0).UnixNano(), rec.recordedTS[0])
}

func TestIsNilInterface(t *testing.T) {
	t.Parallel()

	assert.True(t, isNilInterface(nil))
	assert.True(t, isNilInterface((*scriptedSource)(nil)))
	assert.False(t, isNilInterface(&scriptedSource{}))
	assert.False(t, isNilInterface(42))
}
