package tracking

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

func hypot(dx, dy float64) float64 {
	return math.Hypot(dx, dy)
}

// Metrics is an aggregate snapshot of the tracker's run so far. Used by
// the pipeline's end-of-run summary and by parameter sweeps.
type Metrics struct {
	FramesProcessed int `json:"frames_processed"`
	ActiveTracks    int `json:"active_tracks"`
	TracksCreated   int `json:"tracks_created"`
	TracksConfirmed int `json:"tracks_confirmed"`
	TracksEvicted   int `json:"tracks_evicted"`

	// FragmentationRatio is the fraction of created tracks that never
	// reached the render age. High values indicate flickering identities.
	FragmentationRatio float64 `json:"fragmentation_ratio"`

	// Center drift between consecutive matches, pixels per frame.
	DriftSamples int     `json:"drift_samples"`
	DriftP50Px   float64 `json:"drift_p50_px"`
	DriftP85Px   float64 `json:"drift_p85_px"`
	DriftP95Px   float64 `json:"drift_p95_px"`
}

// Metrics computes the aggregate snapshot. Percentiles use empirical
// quantiles over the per-match center displacements.
func (t *Tracker) Metrics() Metrics {
	m := Metrics{
		FramesProcessed: t.frames,
		ActiveTracks:    len(t.tracks),
		TracksCreated:   t.created,
		TracksConfirmed: t.confirmed,
		TracksEvicted:   t.evicted,
	}
	if t.created > 0 {
		m.FragmentationRatio = 1 - float64(t.confirmed)/float64(t.created)
		if m.FragmentationRatio < 0 {
			m.FragmentationRatio = 0
		}
	}

	m.DriftSamples = len(t.displacements)
	if m.DriftSamples > 0 {
		sorted := make([]float64, len(t.displacements))
		copy(sorted, t.displacements)
		sort.Float64s(sorted)
		m.DriftP50Px = stat.Quantile(0.50, stat.Empirical, sorted, nil)
		m.DriftP85Px = stat.Quantile(0.85, stat.Empirical, sorted, nil)
		m.DriftP95Px = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	return m
}
