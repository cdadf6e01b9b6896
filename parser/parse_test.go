package parser_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/models"
	"staffing-engine/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestParseForecast(t *testing.T) {
	tests := map[string]struct {
		input         string
		expectedData  []models.ForecastBucket
		expectedError error
	}{
		"ValidInput_SingleLine": {
			input: `
support, 2026-03-02T09:00:00Z, 2026-03-02T10:00:00Z, 144, 180, 1
`,
			expectedData: []models.ForecastBucket{
				{QueueID: "support", Start: utc(9, 0), End: utc(10, 0), Calls: 144, AHT: 180 * time.Second, Priority: 1},
			},
		},
		"ValidInput_MultipleLines_WithComments": {
			input: `
# This is a comment
# Queue, Start, End, Calls, AHT, Priority
support, 2026-03-02 09:00, 2026-03-02 09:30, 80.5, 240.5
sales, 2026-03-02 09:30, 2026-03-02 10:00, 12, 90, 2
`,
			expectedData: []models.ForecastBucket{
				{QueueID: "support", Start: utc(9, 0), End: utc(9, 30), Calls: 80.5, AHT: 240500 * time.Millisecond},
				{QueueID: "sales", Start: utc(9, 30), End: utc(10, 0), Calls: 12, AHT: 90 * time.Second, Priority: 2},
			},
		},
		"Overnight_KeptAsWritten": {
			input: `
support, 2026-03-02 22:00, 2026-03-02 02:00, 40, 200
`,
			expectedData: []models.ForecastBucket{
				{QueueID: "support", Start: utc(22, 0), End: utc(2, 0), Calls: 40, AHT: 200 * time.Second},
			},
		},
		"Error_InvalidFieldCount": {
			input:         `support, 2026-03-02 09:00, 2026-03-02 10:00, 144`,
			expectedError: customerrors.ErrInvalidFieldCount,
		},
		"Error_MissingQueue": {
			input:         `, 2026-03-02 09:00, 2026-03-02 10:00, 144, 180`,
			expectedError: customerrors.ErrInvalidQueue,
		},
		"Error_InvalidStart": {
			input:         `support, 9AM, 2026-03-02 10:00, 144, 180`,
			expectedError: customerrors.ErrInvalidTime,
		},
		"Error_InvalidEnd": {
			input:         `support, 2026-03-02 09:00, 2026-03-02 25:00, 144, 180`,
			expectedError: customerrors.ErrInvalidTime,
		},
		"Error_InvalidCalls": {
			input:         `support, 2026-03-02 09:00, 2026-03-02 10:00, xyz, 180`,
			expectedError: customerrors.ErrInvalidCount,
		},
		"Error_NegativeCalls": {
			input:         `support, 2026-03-02 09:00, 2026-03-02 10:00, -3, 180`,
			expectedError: customerrors.ErrInvalidCount,
		},
		"Error_InvalidAHT": {
			input:         `support, 2026-03-02 09:00, 2026-03-02 10:00, 144, -1`,
			expectedError: customerrors.ErrInvalidDuration,
		},
		"Error_InvalidPriority": {
			input:         `support, 2026-03-02 09:00, 2026-03-02 10:00, 144, 180, p1`,
			expectedError: customerrors.ErrInvalidPriority,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := parser.ParseForecast(strings.NewReader(strings.TrimSpace(tt.input)))

			if tt.expectedError != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expectedError), "got %v, want %v", err, tt.expectedError)
				var parseErr *customerrors.ParseError
				require.True(t, errors.As(err, &parseErr))
				assert.Equal(t, 1, parseErr.Line)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedData, got)
		})
	}
}

func TestParseForecast_Timezones(t *testing.T) {
	input := `
#Queue, StartET, End, Calls, AHT
support, 2026-03-02 09:00, 2026-03-02 10:00, 100, 180
#Queue, StartAsia/Tokyo, End, Calls, AHT
support, 2026-03-02 09:00, 2026-03-02 10:00, 100, 180
support, 2026-03-02T09:00:00Z, 2026-03-02T10:00:00Z, 100, 180
`
	got, err := parser.ParseForecast(strings.NewReader(strings.TrimSpace(input)))
	require.NoError(t, err)
	require.Len(t, got, 3)

	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	assert.True(t, got[0].Start.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, newYork)))
	assert.Equal(t, "America/New_York", got[0].Start.Location().String())
	assert.True(t, got[1].Start.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, tokyo)))
	// an explicit offset wins over the header zone
	assert.True(t, got[2].Start.Equal(utc(9, 0)))
}

func TestParseRoster(t *testing.T) {
	tests := map[string]struct {
		input         string
		expectedData  []models.EmployeeCandidate
		expectedError error
	}{
		"ValidInput_AllFields": {
			input: `
# ID, Skills, AvailableFrom, AvailableTo, Scheduled, MaxWeekly, Contracted, FairnessCredit
e1, support;sales, 2026-03-02T08:00:00Z, 2026-03-02T17:00:00Z, 32, 40, 38, -1.5
`,
			expectedData: []models.EmployeeCandidate{
				{
					ID:              "e1",
					Skills:          []string{"support", "sales"},
					AvailableFrom:   utc(8, 0),
					AvailableTo:     utc(17, 0),
					ScheduledHours:  32,
					MaxWeeklyHours:  40,
					ContractedHours: 38,
					FairnessCredit:  -1.5,
				},
			},
		},
		"ValidInput_OpenWindow": {
			input: `
e2, billing, , , 0, 20
`,
			expectedData: []models.EmployeeCandidate{
				{ID: "e2", Skills: []string{"billing"}, MaxWeeklyHours: 20},
			},
		},
		"Error_InvalidFieldCount": {
			input:         `e1, support, , , 10`,
			expectedError: customerrors.ErrInvalidFieldCount,
		},
		"Error_EmptyID": {
			input:         ` , support, , , 10, 40`,
			expectedError: customerrors.ErrEmptyRecord,
		},
		"Error_InvalidAvailability": {
			input:         `e1, support, tomorrow, , 10, 40`,
			expectedError: customerrors.ErrInvalidTime,
		},
		"Error_NegativeHours": {
			input:         `e1, support, , , -2, 40`,
			expectedError: customerrors.ErrInvalidHours,
		},
		"Error_InvalidHours": {
			input:         `e1, support, , , 10, forty`,
			expectedError: customerrors.ErrInvalidHours,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := parser.ParseRoster(strings.NewReader(strings.TrimSpace(tt.input)))

			if tt.expectedError != nil {
				assert.True(t, errors.Is(err, tt.expectedError), "got %v, want %v", err, tt.expectedError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedData, got)
		})
	}
}

func TestParseTelemetry(t *testing.T) {
	tests := map[string]struct {
		input         string
		expectedData  []models.Telemetry
		expectedError error
	}{
		"ValidInput": {
			input: `
# Queue, Timestamp, Waiting, Available, Busy, NotReady, AHT, AvgWait, Offered, Abandoned, AnsweredInSL, Interval
support, 2026-03-02T09:15:00Z, 3, 2, 5, 1, 180, 12.5, 40, 2, 30, 3600
`,
			expectedData: []models.Telemetry{
				{
					QueueID:         "support",
					Timestamp:       utc(9, 15),
					CallsWaiting:    3,
					AgentsAvailable: 2,
					AgentsBusy:      5,
					AgentsNotReady:  1,
					AHT:             180 * time.Second,
					AvgWait:         12500 * time.Millisecond,
					CallsOffered:    40,
					CallsAbandoned:  2,
					AnsweredInSL:    30,
					Interval:        time.Hour,
				},
			},
		},
		"Error_InvalidFieldCount": {
			input:         `support, 2026-03-02T09:15:00Z, 3, 2, 5, 1, 180`,
			expectedError: customerrors.ErrInvalidFieldCount,
		},
		"Error_NegativeCount": {
			input:         `support, 2026-03-02T09:15:00Z, -3, 2, 5, 1, 180, 12, 40, 2, 30, 3600`,
			expectedError: customerrors.ErrInvalidCount,
		},
		"Error_InvalidDuration": {
			input:         `support, 2026-03-02T09:15:00Z, 3, 2, 5, 1, 3m, 12, 40, 2, 30, 3600`,
			expectedError: customerrors.ErrInvalidDuration,
		},
		"Error_InvalidTimestamp": {
			input:         `support, now, 3, 2, 5, 1, 180, 12, 40, 2, 30, 3600`,
			expectedError: customerrors.ErrInvalidTime,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := parser.ParseTelemetry(strings.NewReader(strings.TrimSpace(tt.input)))

			if tt.expectedError != nil {
				assert.True(t, errors.Is(err, tt.expectedError), "got %v, want %v", err, tt.expectedError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedData, got)
		})
	}
}
