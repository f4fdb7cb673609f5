package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videre-labs/videre/internal/vision/postprocess"
	"github.com/videre-labs/videre/internal/vision/tracking"
)

func openTestDB(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "videre.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func sampleTrack(id int64, lost int) tracking.Track {
	return tracking.Track{
		ID:             id,
		RawBox:         postprocess.Rect{X: 10, Y: 20, Width: 30, Height: 40},
		SmoothedBox:    postprocess.Rect{X: 11, Y: 21, Width: 30, Height: 40},
		ClassID:        2,
		Confidence:     0.8,
		Age:            4,
		Lost:           lost,
		FirstUnixNanos: 1000,
		LastUnixNanos:  5000,
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	s := openTestDB(t)

	runID, err := s.BeginRun("testdata/clip.mp4", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	assert.Equal(t, runID, s.RunID())

	require.NoError(t, s.RecordTrack(sampleTrack(1, 0), 2000))

	m := tracking.Metrics{
		FramesProcessed: 10,
		TracksCreated:   3,
		TracksConfirmed: 2,
		TracksEvicted:   1,
		DriftP50Px:      1.5,
	}
	require.NoError(t, s.EndRun(9000, m))

	var frames, created int
	var ended int64
	err = s.db.QueryRow(
		`SELECT ended_unix_nanos, frames_processed, tracks_created FROM runs WHERE run_id = ?`,
		runID,
	).Scan(&ended, &frames, &created)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), ended)
	assert.Equal(t, 10, frames)
	assert.Equal(t, 3, created)
}

func TestRecordTrackRequiresActiveRun(t *testing.T) {
	t.Parallel()

	s := openTestDB(t)
	assert.Error(t, s.RecordTrack(sampleTrack(1, 0), 2000))
	assert.Error(t, s.EndRun(9000, tracking.Metrics{}))
}

func TestRecordTrackUpsertsSummary(t *testing.T) {
	t.Parallel()

	s := openTestDB(t)
	runID, err := s.BeginRun("cam0", 1000)
	require.NoError(t, err)

	trk := sampleTrack(7, 0)
	require.NoError(t, s.RecordTrack(trk, 2000))

	// Second frame: higher age, lower confidence. The summary row must
	// update in place and keep the peak confidence.
	trk.Age = 5
	trk.Confidence = 0.6
	trk.LastUnixNanos = 6000
	require.NoError(t, s.RecordTrack(trk, 3000))

	tracks, err := Tracks(s.db, runID)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, int64(7), tracks[0].TrackID)
	assert.Equal(t, "car", tracks[0].ClassName)
	assert.Equal(t, 5, tracks[0].Age)
	assert.Equal(t, int64(6000), tracks[0].LastUnixNanos)
	assert.InDelta(t, 0.8, float64(tracks[0].PeakConfidence), 1e-6)

	n, err := ObservationCount(s.db, runID, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCoastingFramesGetNoObservation(t *testing.T) {
	t.Parallel()

	s := openTestDB(t)
	runID, err := s.BeginRun("cam0", 1000)
	require.NoError(t, err)

	require.NoError(t, s.RecordTrack(sampleTrack(3, 0), 2000))
	require.NoError(t, s.RecordTrack(sampleTrack(3, 1), 3000)) // coasting

	n, err := ObservationCount(s.db, runID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The summary row still updated.
	tracks, err := Tracks(s.db, runID)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
}
