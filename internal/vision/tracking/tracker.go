// Package tracking assigns stable identities to detections across frames.
//
// Responsibilities: greedy IoU association with enter/keep confidence
// gates, exponential smoothing of display boxes, track lifecycle
// (tentative, confirmed, lost, evicted), and per-run summary metrics.
//
// The matcher is deliberately greedy and first-come, iterating tracks in
// insertion order rather than solving a globally optimal assignment. When
// several tracks compete for one detection the earliest track wins, which
// can misassign in crowded scenes. Callers that need optimal assignment
// should gate on that tradeoff before reaching for this package.
package tracking

import (
	"fmt"

	"github.com/videre-labs/videre/internal/vision/postprocess"
)

// State is the lifecycle state of a track, derived from its counters.
type State string

const (
	StateTentative State = "tentative" // matched, but below the render age
	StateConfirmed State = "confirmed" // age has reached MinAgeToRender
	StateLost      State = "lost"      // unmatched for 1..GraceLost frames
)

// Config holds the tracker's tunable parameters.
type Config struct {
	// EnterConfidence is the gate a detection must clear to spawn a new
	// track, or to match a track that has never aged past zero.
	EnterConfidence float32
	// KeepConfidence is the lower gate for matching a track that has
	// already been matched at least once (age > 0).
	KeepConfidence float32
	// MatchIoU is the minimum IoU between a track's raw box and a
	// candidate detection for the match to be accepted.
	MatchIoU float32
	// SmoothingAlpha is the EMA weight of the new box when updating the
	// smoothed display box: smoothed = alpha*new + (1-alpha)*smoothed.
	SmoothingAlpha float32
	// MinAgeToRender is the consecutive-match count at which a track
	// becomes eligible for rendering.
	MinAgeToRender int
	// GraceLost is how many consecutive unmatched frames a track
	// survives; it is evicted once Lost exceeds this.
	GraceLost int
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.EnterConfidence < 0 || c.EnterConfidence > 1 {
		return fmt.Errorf("enter confidence must be in [0,1], got %f", c.EnterConfidence)
	}
	if c.KeepConfidence < 0 || c.KeepConfidence > 1 {
		return fmt.Errorf("keep confidence must be in [0,1], got %f", c.KeepConfidence)
	}
	if c.KeepConfidence > c.EnterConfidence {
		return fmt.Errorf("keep confidence %f exceeds enter confidence %f", c.KeepConfidence, c.EnterConfidence)
	}
	if c.MatchIoU < 0 || c.MatchIoU > 1 {
		return fmt.Errorf("match iou must be in [0,1], got %f", c.MatchIoU)
	}
	if c.SmoothingAlpha < 0 || c.SmoothingAlpha > 1 {
		return fmt.Errorf("smoothing alpha must be in [0,1], got %f", c.SmoothingAlpha)
	}
	if c.MinAgeToRender < 0 {
		return fmt.Errorf("min age to render must be non-negative, got %d", c.MinAgeToRender)
	}
	if c.GraceLost < 0 {
		return fmt.Errorf("grace lost must be non-negative, got %d", c.GraceLost)
	}
	return nil
}

// Track is one persistent object identity. Tracks are stored by value in
// an ordered slice and addressed by index, so eviction is a compaction
// with no dangling references.
type Track struct {
	// ID is strictly increasing across the tracker's lifetime and never
	// reused.
	ID int64

	// RawBox is the most recent matched detection box.
	RawBox postprocess.Rect
	// SmoothedBox is the exponentially smoothed display box.
	SmoothedBox postprocess.Rect

	ClassID    int
	Confidence float32

	// Age counts consecutive matched frames, starting at 0 on spawn.
	Age int
	// Lost counts consecutive unmatched frames, reset to 0 on match.
	Lost int

	// FirstUnixNanos and LastUnixNanos bound the track's lifetime.
	FirstUnixNanos int64
	LastUnixNanos  int64
}

// State derives the lifecycle state from the track's counters.
func (t Track) State(minAgeToRender int) State {
	if t.Lost > 0 {
		return StateLost
	}
	if t.Age >= minAgeToRender {
		return StateConfirmed
	}
	return StateTentative
}

// Tracker matches each frame's detections against the previous frame's
// tracks. It is confined to the consumer goroutine and needs no internal
// locking.
type Tracker struct {
	cfg     Config
	allowed map[int]bool // nil allows every class

	tracks []Track
	nextID int64

	// Lifecycle counters for summary metrics.
	created   int
	confirmed int
	evicted   int
	frames    int

	// Per-match center displacement in pixels, for drift percentiles.
	displacements []float64
}

// New creates a tracker. allowList restricts matching and spawning to the
// given class ids; an empty list allows every class.
func New(cfg Config, allowList []int) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	t := &Tracker{cfg: cfg, nextID: 1}
	if len(allowList) > 0 {
		t.allowed = make(map[int]bool, len(allowList))
		for _, id := range allowList {
			t.allowed[id] = true
		}
	}
	return t, nil
}

// Config returns the tracker's configuration.
func (t *Tracker) Config() Config { return t.cfg }

// Allows reports whether the class id passes the allow-list.
func (t *Tracker) Allows(classID int) bool {
	return t.allowed == nil || t.allowed[classID]
}

// Update consumes one frame's detections and advances every track's
// lifecycle. tsUnixNanos stamps matched tracks and new spawns.
func (t *Tracker) Update(detections []postprocess.Detection, tsUnixNanos int64) {
	t.frames++

	// Step 1: allow-list filter.
	filtered := detections[:0:0]
	for _, det := range detections {
		if t.Allows(det.ClassID) {
			filtered = append(filtered, det)
		}
	}
	used := make([]bool, len(filtered))

	// Step 2: greedy first-come matching in track order. Each track
	// scans the still-unmatched detections of its class, gated by
	// confidence (keep for aged tracks, enter for never-matched ones),
	// and takes the highest-IoU candidate at or above MatchIoU.
	for i := range t.tracks {
		trk := &t.tracks[i]

		gate := t.cfg.KeepConfidence
		if trk.Age == 0 {
			gate = t.cfg.EnterConfidence
		}

		bestIdx := -1
		bestIoU := float32(-1)
		for j, det := range filtered {
			if used[j] || det.ClassID != trk.ClassID {
				continue
			}
			if det.Confidence < gate {
				continue
			}
			iou := postprocess.IoU(trk.RawBox, det.Box)
			if iou < t.cfg.MatchIoU {
				continue
			}
			if iou > bestIoU {
				bestIoU = iou
				bestIdx = j
			}
		}

		if bestIdx < 0 {
			// Step 5: unmatched tracks age toward eviction; boxes stay
			// where they were.
			trk.Lost++
			continue
		}

		// Step 4: apply the match.
		used[bestIdx] = true
		t.applyMatch(trk, filtered[bestIdx], tsUnixNanos)
	}

	// Step 3: unmatched detections above the enter gate spawn tracks.
	for j, det := range filtered {
		if used[j] || det.Confidence < t.cfg.EnterConfidence {
			continue
		}
		t.spawn(det, tsUnixNanos)
	}

	// Step 6: evict tracks past the grace window, compacting in place.
	kept := t.tracks[:0]
	for _, trk := range t.tracks {
		if trk.Lost > t.cfg.GraceLost {
			t.evicted++
			continue
		}
		kept = append(kept, trk)
	}
	// Zero the tail so evicted entries do not linger in the backing array.
	for i := len(kept); i < len(t.tracks); i++ {
		t.tracks[i] = Track{}
	}
	t.tracks = kept
}

func (t *Tracker) applyMatch(trk *Track, det postprocess.Detection, tsUnixNanos int64) {
	// Center drift between consecutive matches feeds the drift metric.
	dx := float64((det.Box.X + det.Box.Width/2) - (trk.RawBox.X + trk.RawBox.Width/2))
	dy := float64((det.Box.Y + det.Box.Height/2) - (trk.RawBox.Y + trk.RawBox.Height/2))
	t.displacements = append(t.displacements, hypot(dx, dy))

	trk.RawBox = det.Box

	a := t.cfg.SmoothingAlpha
	trk.SmoothedBox.X = a*det.Box.X + (1-a)*trk.SmoothedBox.X
	trk.SmoothedBox.Y = a*det.Box.Y + (1-a)*trk.SmoothedBox.Y
	trk.SmoothedBox.Width = a*det.Box.Width + (1-a)*trk.SmoothedBox.Width
	trk.SmoothedBox.Height = a*det.Box.Height + (1-a)*trk.SmoothedBox.Height

	trk.Age++
	trk.Lost = 0
	trk.Confidence = det.Confidence
	trk.ClassID = det.ClassID
	trk.LastUnixNanos = tsUnixNanos

	if trk.Age == t.cfg.MinAgeToRender {
		t.confirmed++
	}
}

func (t *Tracker) spawn(det postprocess.Detection, tsUnixNanos int64) {
	trk := Track{
		ID:             t.nextID,
		RawBox:         det.Box,
		SmoothedBox:    det.Box,
		ClassID:        det.ClassID,
		Confidence:     det.Confidence,
		Age:            0,
		Lost:           0,
		FirstUnixNanos: tsUnixNanos,
		LastUnixNanos:  tsUnixNanos,
	}
	t.nextID++
	t.tracks = append(t.tracks, trk)
	t.created++
	if t.cfg.MinAgeToRender == 0 {
		t.confirmed++
	}
}

// Tracks returns a copy of every active track in insertion order.
func (t *Tracker) Tracks() []Track {
	out := make([]Track, len(t.tracks))
	copy(out, t.tracks)
	return out
}

// Renderable returns the tracks eligible for display: age at or above
// MinAgeToRender, in insertion order.
func (t *Tracker) Renderable() []Track {
	var out []Track
	for _, trk := range t.tracks {
		if trk.Age >= t.cfg.MinAgeToRender {
			out = append(out, trk)
		}
	}
	return out
}

// Len returns the number of active tracks.
func (t *Tracker) Len() int { return len(t.tracks) }
