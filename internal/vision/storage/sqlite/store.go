// Package sqlite persists pipeline runs, tracks, and per-frame track
// observations. It is an adapter, not a domain layer: the tracker knows
// nothing about storage, and the pipeline hands finished state here.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/videre-labs/videre/internal/vision/classnames"
	"github.com/videre-labs/videre/internal/vision/tracking"
)

// Open opens (or creates) the database at path and ensures the schema
// exists.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			source TEXT,
			started_unix_nanos BIGINT,
			ended_unix_nanos BIGINT,
			frames_processed INTEGER DEFAULT 0,
			tracks_created INTEGER DEFAULT 0,
			tracks_confirmed INTEGER DEFAULT 0,
			tracks_evicted INTEGER DEFAULT 0,
			fragmentation_ratio DOUBLE DEFAULT 0,
			drift_p50_px DOUBLE DEFAULT 0,
			drift_p95_px DOUBLE DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS tracks (
			run_id TEXT,
			track_id BIGINT,
			class_id INTEGER,
			class_name TEXT,
			first_unix_nanos BIGINT,
			last_unix_nanos BIGINT,
			age INTEGER,
			peak_confidence REAL,
			PRIMARY KEY (run_id, track_id),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS track_obs (
			run_id TEXT,
			track_id BIGINT,
			ts_unix_nanos BIGINT,
			x REAL, y REAL, width REAL, height REAL,
			confidence REAL,
			FOREIGN KEY (run_id, track_id) REFERENCES tracks(run_id, track_id)
		);
		CREATE INDEX IF NOT EXISTS idx_track_obs_track
			ON track_obs(run_id, track_id, ts_unix_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

// Store records one pipeline run. Methods are called from the consumer
// goroutine only.
type Store struct {
	db    *sql.DB
	runID string
}

// NewStore wraps an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RunID returns the active run's identifier, empty before BeginRun.
func (s *Store) RunID() string { return s.runID }

// BeginRun inserts a run row and returns its generated id.
func (s *Store) BeginRun(source string, startedUnixNanos int64) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, source, started_unix_nanos) VALUES (?, ?, ?)`,
		runID, source, startedUnixNanos,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	s.runID = runID
	return runID, nil
}

// EndRun stamps the run's end time and summary metrics.
func (s *Store) EndRun(endedUnixNanos int64, m tracking.Metrics) error {
	if s.runID == "" {
		return fmt.Errorf("no active run")
	}
	_, err := s.db.Exec(`
		UPDATE runs SET
			ended_unix_nanos = ?,
			frames_processed = ?,
			tracks_created = ?,
			tracks_confirmed = ?,
			tracks_evicted = ?,
			fragmentation_ratio = ?,
			drift_p50_px = ?,
			drift_p95_px = ?
		WHERE run_id = ?`,
		endedUnixNanos,
		m.FramesProcessed,
		m.TracksCreated,
		m.TracksConfirmed,
		m.TracksEvicted,
		m.FragmentationRatio,
		m.DriftP50Px,
		m.DriftP95Px,
		s.runID,
	)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", s.runID, err)
	}
	return nil
}

// RecordTrack upserts the track's summary row and, when the track was
// matched this frame, appends an observation. Coasting frames (Lost > 0)
// carry a stale box rather than a measurement, so they get no
// observation row.
func (s *Store) RecordTrack(trk tracking.Track, tsUnixNanos int64) error {
	if s.runID == "" {
		return fmt.Errorf("no active run")
	}

	// ON CONFLICT DO UPDATE rather than INSERT OR REPLACE so existing
	// observation rows are never cascade-deleted.
	_, err := s.db.Exec(`
		INSERT INTO tracks (
			run_id, track_id, class_id, class_name,
			first_unix_nanos, last_unix_nanos, age, peak_confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, track_id) DO UPDATE SET
			class_id = excluded.class_id,
			class_name = excluded.class_name,
			last_unix_nanos = excluded.last_unix_nanos,
			age = excluded.age,
			peak_confidence = MAX(peak_confidence, excluded.peak_confidence)`,
		s.runID, trk.ID, trk.ClassID, classnames.Name(trk.ClassID),
		trk.FirstUnixNanos, trk.LastUnixNanos, trk.Age, trk.Confidence,
	)
	if err != nil {
		return fmt.Errorf("upsert track %d: %w", trk.ID, err)
	}

	if trk.Lost > 0 {
		return nil
	}

	_, err = s.db.Exec(`
		INSERT INTO track_obs (run_id, track_id, ts_unix_nanos, x, y, width, height, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, trk.ID, tsUnixNanos,
		trk.RawBox.X, trk.RawBox.Y, trk.RawBox.Width, trk.RawBox.Height,
		trk.Confidence,
	)
	if err != nil {
		return fmt.Errorf("insert observation for track %d: %w", trk.ID, err)
	}
	return nil
}

// TrackRow is one persisted track summary.
type TrackRow struct {
	RunID          string
	TrackID        int64
	ClassID        int
	ClassName      string
	FirstUnixNanos int64
	LastUnixNanos  int64
	Age            int
	PeakConfidence float32
}

// Tracks returns the persisted tracks for a run, ordered by track id.
func Tracks(db *sql.DB, runID string) ([]TrackRow, error) {
	rows, err := db.Query(`
		SELECT run_id, track_id, class_id, class_name,
			first_unix_nanos, last_unix_nanos, age, peak_confidence
		FROM tracks WHERE run_id = ? ORDER BY track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tracks for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []TrackRow
	for rows.Next() {
		var r TrackRow
		if err := rows.Scan(
			&r.RunID, &r.TrackID, &r.ClassID, &r.ClassName,
			&r.FirstUnixNanos, &r.LastUnixNanos, &r.Age, &r.PeakConfidence,
		); err != nil {
			return nil, fmt.Errorf("scan track row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ObservationCount returns the number of observations stored for a track.
func ObservationCount(db *sql.DB, runID string, trackID int64) (int, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM track_obs WHERE run_id = ? AND track_id = ?`,
		runID, trackID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count observations for track %d: %w", trackID, err)
	}
	return n, nil
}
