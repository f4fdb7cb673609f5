package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/videre-labs/videre/internal/timeutil"
	"github.com/videre-labs/videre/internal/vision/framequeue"
	"github.com/videre-labs/videre/internal/vision/postprocess"
	"github.com/videre-labs/videre/internal/vision/preprocess"
	"github.com/videre-labs/videre/internal/vision/tracking"
)

// Source acquires frames. Next returns io.EOF when the stream ends.
type Source interface {
	// Next returns the next frame. Implementations should honour ctx
	// cancellation when acquisition can block.
	Next(ctx context.Context) (framequeue.Frame, error)
	Close() error
}

// Engine runs the detector over one preprocessed blob and returns the
// raw prediction tensor.
type Engine interface {
	Infer(ctx context.Context, blob preprocess.Blob) (postprocess.Tensor, error)
}

// Sink receives each processed frame with its render-eligible tracks.
type Sink interface {
	Render(frame framequeue.Frame, tracks []tracking.Track) error
}

// TrackRecorder persists run and track state.
type TrackRecorder interface {
	BeginRun(source string, startedUnixNanos int64) (string, error)
	RecordTrack(trk tracking.Track, tsUnixNanos int64) error
	EndRun(endedUnixNanos int64, m tracking.Metrics) error
}

// isNilInterface checks if an interface value is nil or contains a nil
// pointer, handling the Go interface nil pitfall where i != nil but the
// underlying value is nil.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Config holds the pipeline's stages and tunables. Source, Engine,
// Preprocessor, Postprocessor, and Tracker are required; Sink and
// Recorder are optional adapters.
type Config struct {
	Source        Source
	Engine        Engine
	Preprocessor  *preprocess.Preprocessor
	Postprocessor *postprocess.Postprocessor
	Tracker       *tracking.Tracker

	Sink     Sink          // Optional: rendering or logging output
	Recorder TrackRecorder // Optional: persistence

	// SourceLabel names the input in logs and run records (file path,
	// camera id).
	SourceLabel string

	// QueueCapacity bounds the frame queue between producer and
	// consumer. Must be positive: a zero-capacity queue refuses every
	// frame.
	QueueCapacity int

	// ProducerDelay inserts a fixed pause after each acquired frame,
	// simulating a fixed-rate camera when reading from a file. Zero
	// reads as fast as the source allows.
	ProducerDelay time.Duration

	// LogEvery emits a consumer progress line every N frames on the
	// diag stream. Zero disables progress logging.
	LogEvery int

	// Clock supplies timestamps and pacing. Nil uses the real clock.
	Clock timeutil.Clock
}

func (cfg *Config) validate() error {
	if isNilInterface(cfg.Source) {
		return errors.New("pipeline: source is required")
	}
	if isNilInterface(cfg.Engine) {
		return errors.New("pipeline: engine is required")
	}
	if cfg.Preprocessor == nil {
		return errors.New("pipeline: preprocessor is required")
	}
	if cfg.Postprocessor == nil {
		return errors.New("pipeline: postprocessor is required")
	}
	if cfg.Tracker == nil {
		return errors.New("pipeline: tracker is required")
	}
	if cfg.QueueCapacity <= 0 {
		return fmt.Errorf("pipeline: queue capacity must be positive, got %d", cfg.QueueCapacity)
	}
	if cfg.Preprocessor.Side() != cfg.Postprocessor.Side() {
		return fmt.Errorf("pipeline: preprocessor side %d does not match postprocessor side %d",
			cfg.Preprocessor.Side(), cfg.Postprocessor.Side())
	}
	return nil
}

// Summary is the end-of-run report.
type Summary struct {
	RunID string `json:"run_id,omitempty"`

	FramesProduced  int `json:"frames_produced"`
	FramesProcessed int `json:"frames_processed"`
	FramesSkipped   int `json:"frames_skipped"`
	DetectionsTotal int `json:"detections_total"`

	Tracking tracking.Metrics `json:"tracking"`
}

// Run executes the pipeline until the source ends or ctx is cancelled.
// The producer closes the queue on exit; the consumer drains whatever
// is buffered before returning, unless ctx is already cancelled.
//
// Per-frame failures (preprocess, inference) skip the frame and keep
// the run alive. Only setup and persistence failures abort.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	var sum Summary

	if err := cfg.validate(); err != nil {
		return sum, err
	}
	if isNilInterface(cfg.Clock) {
		cfg.Clock = timeutil.RealClock{}
	}

	if !isNilInterface(cfg.Recorder) {
		runID, err := cfg.Recorder.BeginRun(cfg.SourceLabel, cfg.Clock.Now().UnixNano())
		if err != nil {
			return sum, fmt.Errorf("begin run: %w", err)
		}
		sum.RunID = runID
		diagf("run %s started (source %s)", runID, cfg.SourceLabel)
	}

	queue := framequeue.New(cfg.QueueCapacity)

	var wg sync.WaitGroup
	wg.Add(1)
	var produced int
	go func() {
		defer wg.Done()
		defer queue.Close()
		produced = produce(ctx, cfg, queue)
	}()

	consumeErr := consume(ctx, cfg, queue, &sum)

	wg.Wait()
	sum.FramesProduced = produced
	sum.Tracking = cfg.Tracker.Metrics()

	if !isNilInterface(cfg.Recorder) {
		if err := cfg.Recorder.EndRun(cfg.Clock.Now().UnixNano(), sum.Tracking); err != nil {
			opsf("finalize run %s: %v", sum.RunID, err)
			if consumeErr == nil {
				consumeErr = err
			}
		}
	}

	diagf("run finished: %d produced, %d processed, %d skipped, %d active tracks",
		sum.FramesProduced, sum.FramesProcessed, sum.FramesSkipped, sum.Tracking.ActiveTracks)
	return sum, consumeErr
}

// produce reads frames from the source into the queue until EOF,
// cancellation, or queue closure. Returns the number of frames pushed.
func produce(ctx context.Context, cfg Config, queue *framequeue.Queue) int {
	pushed := 0
	for {
		if ctx.Err() != nil {
			diagf("producer stopping: %v", ctx.Err())
			return pushed
		}

		frame, err := cfg.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				diagf("producer reached end of stream after %d frames", pushed)
			} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				diagf("producer stopping: %v", err)
			} else {
				opsf("frame acquisition failed: %v", err)
			}
			return pushed
		}

		if !queue.Push(frame) {
			// Queue closed under us; nothing downstream wants frames.
			diagf("producer stopping: queue closed")
			return pushed
		}
		pushed++
		tracef("produced frame %d (%dx%d)", frame.Seq, frame.Width, frame.Height)
		if cfg.LogEvery > 0 && pushed%cfg.LogEvery == 0 {
			diagf("produced %d frames, queue depth %d", pushed, queue.Len())
		}

		if cfg.ProducerDelay > 0 {
			select {
			case <-ctx.Done():
			case <-cfg.Clock.After(cfg.ProducerDelay):
			}
		}
	}
}

// consume pops frames until the queue is drained and closed, running
// each through preprocess, inference, decode, tracking, and the sinks.
func consume(ctx context.Context, cfg Config, queue *framequeue.Queue, sum *Summary) error {
	for {
		frame, ok := queue.Pop()
		if !ok {
			return nil
		}
		if ctx.Err() != nil {
			// Cancelled mid-run: discard the remainder instead of
			// spending inference time on it.
			tracef("discarding frame %d after cancellation", frame.Seq)
			continue
		}

		if err := processFrame(ctx, cfg, frame, sum); err != nil {
			sum.FramesSkipped++
			opsf("frame %d skipped: %v", frame.Seq, err)
			continue
		}

		sum.FramesProcessed++
		if cfg.LogEvery > 0 && sum.FramesProcessed%cfg.LogEvery == 0 {
			diagf("processed %d frames, %d detections, %d active tracks",
				sum.FramesProcessed, sum.DetectionsTotal, cfg.Tracker.Len())
		}
	}
}

func processFrame(ctx context.Context, cfg Config, frame framequeue.Frame, sum *Summary) error {
	blob, err := cfg.Preprocessor.Process(frame)
	if err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}

	pred, err := cfg.Engine.Infer(ctx, blob)
	if err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	if pred.Empty() {
		// Engines signal failure with an empty tensor as well as an
		// error. The frame is skipped either way; it must not reach the
		// tracker, or lost counts would age tracks toward eviction on
		// frames the detector never scored.
		return errors.New("inference: empty prediction tensor")
	}

	detections := cfg.Postprocessor.Decode(pred, frame.Width, frame.Height)
	sum.DetectionsTotal += len(detections)
	tracef("frame %d: %d detections", frame.Seq, len(detections))

	ts := frame.TSUnixNanos
	if ts == 0 {
		ts = cfg.Clock.Now().UnixNano()
	}
	cfg.Tracker.Update(detections, ts)

	renderable := cfg.Tracker.Renderable()

	if !isNilInterface(cfg.Recorder) {
		for _, trk := range renderable {
			if err := cfg.Recorder.RecordTrack(trk, ts); err != nil {
				opsf("persist track %d: %v", trk.ID, err)
			}
		}
	}

	if !isNilInterface(cfg.Sink) {
		if err := cfg.Sink.Render(frame, renderable); err != nil {
			opsf("render frame %d: %v", frame.Seq, err)
		}
	}
	return nil
}
