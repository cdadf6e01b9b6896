package feeds_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/feeds"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func utc(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestTelemetryFile_Fetch(t *testing.T) {
	path := writeFile(t, "telemetry.csv", `# Queue, Timestamp, Waiting, Available, Busy, NotReady, AHT, AvgWait, Offered, Abandoned, AnsweredInSL, Interval
support, 2026-03-02T09:15:00Z, 3, 2, 5, 1, 180, 12, 40, 2, 30, 3600
support, 2026-03-02T09:16:00Z, 4, 1, 6, 1, 180, 14, 41, 2, 30, 3600
sales, 2026-03-02T09:16:00Z, 0, 3, 1, 0, 120, 2, 10, 0, 10, 3600
`)
	feed := feeds.NewTelemetryFile(path)

	tel, err := feed.Fetch(context.Background(), "support")
	require.NoError(t, err)
	assert.Equal(t, utc(9, 16), tel.Timestamp)
	assert.Equal(t, 4, tel.CallsWaiting)

	_, err = feed.Fetch(context.Background(), "billing")
	assert.Error(t, err)
}

func TestTelemetryFile_Reloads(t *testing.T) {
	path := writeFile(t, "telemetry.csv", "support, 2026-03-02T09:15:00Z, 3, 2, 5, 1, 180, 12, 40, 2, 30, 3600\n")
	feed := feeds.NewTelemetryFile(path)

	tel, err := feed.Fetch(context.Background(), "support")
	require.NoError(t, err)
	assert.Equal(t, 3, tel.CallsWaiting)

	require.NoError(t, os.WriteFile(path, []byte("support, 2026-03-02T09:20:00Z, 11, 0, 7, 1, 180, 40, 60, 5, 30, 3600\n"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	tel, err = feed.Fetch(context.Background(), "support")
	require.NoError(t, err)
	assert.Equal(t, 11, tel.CallsWaiting)
}

func TestTelemetryFile_Errors(t *testing.T) {
	tests := map[string]struct {
		path string
		ctx  func() context.Context
		want error
	}{
		"Missing": {
			path: filepath.Join(t.TempDir(), "nope.csv"),
			ctx:  context.Background,
			want: os.ErrNotExist,
		},
		"Malformed": {
			path: writeFile(t, "bad.csv", "support, 2026-03-02T09:15:00Z, 3\n"),
			ctx:  context.Background,
			want: customerrors.ErrInvalidFieldCount,
		},
		"Cancelled": {
			path: writeFile(t, "ok.csv", ""),
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			want: context.Canceled,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := feeds.NewTelemetryFile(tc.path).Fetch(tc.ctx(), "support")
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestForecastFile_Forecast(t *testing.T) {
	path := writeFile(t, "forecast.csv", `# Queue, Start, End, Calls, AHT, Priority
support, 2026-03-02T10:00:00Z, 2026-03-02T11:00:00Z, 150, 180
support, 2026-03-02T09:00:00Z, 2026-03-02T10:00:00Z, 120, 180
support, 2026-03-02T12:00:00Z, 2026-03-02T13:00:00Z, 90, 180
sales, 2026-03-02T09:00:00Z, 2026-03-02T10:00:00Z, 30, 120, 2
`)
	src := feeds.NewForecastFile(path)

	got, err := src.Forecast(context.Background(), "support", utc(9, 30), utc(11, 0))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, utc(9, 0), got[0].Start)
	assert.Equal(t, utc(10, 0), got[1].Start)

	got, err = src.Forecast(context.Background(), "sales", utc(9, 0), utc(9, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Priority)

	got, err = src.Forecast(context.Background(), "support", utc(14, 0), utc(15, 0))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRosterFile_Roster(t *testing.T) {
	path := writeFile(t, "roster.csv", `# ID, Skills, AvailableFrom, AvailableTo, Scheduled, MaxWeekly
e1, support;sales, , , 10, 40
e2, sales, 2026-03-02T12:00:00Z, , 0, 20
`)
	src := feeds.NewRosterFile(path)

	roster, err := src.Roster(context.Background())
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.True(t, roster[0].HasSkill("sales"))
	assert.Equal(t, utc(12, 0), roster[1].AvailableFrom)

	// callers get their own copy
	roster[0].ID = "changed"
	again, err := src.Roster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "e1", again[0].ID)
}
