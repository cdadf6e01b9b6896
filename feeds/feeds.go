// Package feeds provides CSV file-backed telemetry, forecast and roster
// sources. Files are re-read when their modification time changes.
package feeds

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"staffing-engine/models"
	"staffing-engine/parser"
)

// cachedFile parses path on first use and again whenever it changes on disk.
type cachedFile[T any] struct {
	path  string
	parse func(io.Reader) ([]T, error)

	mu      sync.Mutex
	modTime time.Time
	size    int64
	data    []T
}

func (c *cachedFile[T]) load(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data != nil && info.ModTime().Equal(c.modTime) && info.Size() == c.size {
		return c.data, nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := c.parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.path, err)
	}
	if data == nil {
		data = []T{}
	}
	c.data, c.modTime, c.size = data, info.ModTime(), info.Size()
	return data, nil
}

// TelemetryFile serves the newest record per queue from a telemetry CSV.
type TelemetryFile struct {
	file cachedFile[models.Telemetry]
}

// NewTelemetryFile creates a feed over path.
func NewTelemetryFile(path string) *TelemetryFile {
	return &TelemetryFile{file: cachedFile[models.Telemetry]{path: path, parse: parser.ParseTelemetry}}
}

// Fetch returns the record with the latest timestamp for queueID.
func (t *TelemetryFile) Fetch(ctx context.Context, queueID string) (models.Telemetry, error) {
	records, err := t.file.load(ctx)
	if err != nil {
		return models.Telemetry{}, err
	}
	var latest models.Telemetry
	found := false
	for _, r := range records {
		if r.QueueID != queueID {
			continue
		}
		if !found || r.Timestamp.After(latest.Timestamp) {
			latest, found = r, true
		}
	}
	if !found {
		return models.Telemetry{}, fmt.Errorf("no telemetry for queue %s", queueID)
	}
	return latest, nil
}

// ForecastFile serves forecast buckets from a forecast CSV.
type ForecastFile struct {
	file cachedFile[models.ForecastBucket]
}

// NewForecastFile creates a source over path.
func NewForecastFile(path string) *ForecastFile {
	return &ForecastFile{file: cachedFile[models.ForecastBucket]{path: path, parse: parser.ParseForecast}}
}

// Forecast returns buckets for queueID overlapping [from, to), ordered by start.
func (f *ForecastFile) Forecast(ctx context.Context, queueID string, from, to time.Time) ([]models.ForecastBucket, error) {
	buckets, err := f.file.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.ForecastBucket
	for _, b := range buckets {
		if b.QueueID != queueID {
			continue
		}
		end := b.End
		if end.Before(b.Start) {
			end = end.Add(24 * time.Hour)
		}
		if b.Start.Before(to) && end.After(from) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// RosterFile serves employee candidates from a roster CSV.
type RosterFile struct {
	file cachedFile[models.EmployeeCandidate]
}

// NewRosterFile creates a source over path.
func NewRosterFile(path string) *RosterFile {
	return &RosterFile{file: cachedFile[models.EmployeeCandidate]{path: path, parse: parser.ParseRoster}}
}

// Roster returns a copy of the current roster.
func (r *RosterFile) Roster(ctx context.Context) ([]models.EmployeeCandidate, error) {
	roster, err := r.file.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]models.EmployeeCandidate(nil), roster...), nil
}
