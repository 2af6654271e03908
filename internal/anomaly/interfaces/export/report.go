package export

import (
	"errors"
	"time"

	"coldstorage/internal/anomaly/application"
	anomaly "coldstorage/internal/anomaly/domain"
)

// ErrNoSamples indicates a report for a sensor without samples in range.
var ErrNoSamples = errors.New("export: no samples")

// Report is the input shared by every renderer.
type Report struct {
	SensorID    string
	Config      anomaly.Config
	MaxTemp     float64
	Snapshot    anomaly.Snapshot
	Alerts      []application.AlertEvent
	GeneratedAt time.Time
}

// SampleRow pairs one raw sample with the bound produced when it was ingested.
type SampleRow struct {
	At             time.Time
	Value          float64
	Bound          anomaly.Bound
	Classification anomaly.Classification
}

// Rows returns one row per raw sample.
func (r Report) Rows() []SampleRow {
	classes := r.Snapshot.Classifications()
	rows := make([]SampleRow, len(classes))
	for i, class := range classes {
		p := r.Snapshot.Temperature[i]
		rows[i] = SampleRow{
			At:             time.Unix(p.TS, 0).UTC(),
			Value:          p.Value,
			Bound:          r.Snapshot.Bounds[i],
			Classification: class,
		}
	}
	return rows
}

// Counts tallies rows per classification.
func (r Report) Counts() map[anomaly.Classification]int {
	counts := make(map[anomaly.Classification]int, 4)
	for _, class := range r.Snapshot.Classifications() {
		counts[class]++
	}
	return counts
}

func (r Report) validate() error {
	if len(r.Snapshot.Temperature) == 0 {
		return ErrNoSamples
	}
	return nil
}

func (r Report) generatedAt() time.Time {
	if r.GeneratedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.GeneratedAt.UTC()
}

func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}
