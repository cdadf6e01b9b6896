// Package parser reads forecast, roster and telemetry CSV files.
//
// Lines starting with '#' are headers/comments. A header column named
// Start<TZ>, Timestamp<TZ> or AvailableFrom<TZ> (e.g. StartET,
// TimestampEurope/London) sets the timezone for all subsequent rows until
// the next timezone header. Times without an explicit offset are read in
// that zone, defaulting to UTC.
package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"staffing-engine/errors"
	"staffing-engine/models"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}

var tzPrefixes = []string{"AvailableFrom", "Timestamp", "Start"}

// ParseForecast reads forecast buckets. Each row holds
// queue_id, start, end, calls, aht_seconds and an optional priority.
func ParseForecast(r io.Reader) ([]models.ForecastBucket, error) {
	var data []models.ForecastBucket
	err := readRecords(r, func(line int, record []string, loc *time.Location) error {
		if len(record) != 5 && len(record) != 6 {
			return &errors.ParseError{Line: line, Record: record, Err: errors.ErrInvalidFieldCount}
		}
		fail := func(sentinel error, cause error) error {
			return &errors.ParseError{Line: line, Record: record, Err: fmt.Errorf("%w: %v", sentinel, cause)}
		}

		fb := models.ForecastBucket{QueueID: field(record, 0)}
		if fb.QueueID == "" {
			return &errors.ParseError{Line: line, Record: record, Err: errors.ErrInvalidQueue}
		}
		var err error
		if fb.Start, err = parseTime(field(record, 1), loc); err != nil {
			return fail(errors.ErrInvalidTime, err)
		}
		if fb.End, err = parseTime(field(record, 2), loc); err != nil {
			return fail(errors.ErrInvalidTime, err)
		}
		if fb.Calls, err = strconv.ParseFloat(field(record, 3), 64); err != nil || fb.Calls < 0 {
			return fail(errors.ErrInvalidCount, orNegative(err, field(record, 3)))
		}
		if fb.AHT, err = parseSeconds(field(record, 4)); err != nil {
			return fail(errors.ErrInvalidDuration, err)
		}
		if len(record) == 6 && field(record, 5) != "" {
			if fb.Priority, err = strconv.Atoi(field(record, 5)); err != nil || fb.Priority < 0 {
				return fail(errors.ErrInvalidPriority, orNegative(err, field(record, 5)))
			}
		}
		data = append(data, fb)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ParseRoster reads employee candidates. Each row holds
// employee_id, skills (separated by ';'), available_from, available_to,
// scheduled_hours, max_weekly_hours and optionally contracted_hours and
// fairness_credit. Empty availability bounds are open-ended.
func ParseRoster(r io.Reader) ([]models.EmployeeCandidate, error) {
	var data []models.EmployeeCandidate
	err := readRecords(r, func(line int, record []string, loc *time.Location) error {
		if len(record) < 6 || len(record) > 8 {
			return &errors.ParseError{Line: line, Record: record, Err: errors.ErrInvalidFieldCount}
		}
		fail := func(sentinel error, cause error) error {
			return &errors.ParseError{Line: line, Record: record, Err: fmt.Errorf("%w: %v", sentinel, cause)}
		}

		e := models.EmployeeCandidate{ID: field(record, 0)}
		if e.ID == "" {
			return &errors.ParseError{Line: line, Record: record, Err: errors.ErrEmptyRecord}
		}
		for _, s := range strings.Split(field(record, 1), ";") {
			if s = strings.TrimSpace(s); s != "" {
				e.Skills = append(e.Skills, s)
			}
		}
		var err error
		if v := field(record, 2); v != "" {
			if e.AvailableFrom, err = parseTime(v, loc); err != nil {
				return fail(errors.ErrInvalidTime, err)
			}
		}
		if v := field(record, 3); v != "" {
			if e.AvailableTo, err = parseTime(v, loc); err != nil {
				return fail(errors.ErrInvalidTime, err)
			}
		}
		hours := []*float64{&e.ScheduledHours, &e.MaxWeeklyHours, &e.ContractedHours, &e.FairnessCredit}
		for i, dst := range hours {
			idx := 4 + i
			if idx >= len(record) || field(record, idx) == "" {
				continue
			}
			v, err := strconv.ParseFloat(field(record, idx), 64)
			// fairness credit may be negative, hours may not
			if err != nil || (dst != &e.FairnessCredit && v < 0) {
				return fail(errors.ErrInvalidHours, orNegative(err, field(record, idx)))
			}
			*dst = v
		}
		data = append(data, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ParseTelemetry reads live queue records. Each row holds queue_id,
// timestamp, calls_waiting, agents_available, agents_busy, agents_not_ready,
// aht_seconds, avg_wait_seconds, calls_offered, calls_abandoned,
// answered_in_sl and interval_seconds.
func ParseTelemetry(r io.Reader) ([]models.Telemetry, error) {
	var data []models.Telemetry
	err := readRecords(r, func(line int, record []string, loc *time.Location) error {
		if len(record) != 12 {
			return &errors.ParseError{Line: line, Record: record, Err: errors.ErrInvalidFieldCount}
		}
		fail := func(sentinel error, cause error) error {
			return &errors.ParseError{Line: line, Record: record, Err: fmt.Errorf("%w: %v", sentinel, cause)}
		}

		t := models.Telemetry{QueueID: field(record, 0)}
		if t.QueueID == "" {
			return &errors.ParseError{Line: line, Record: record, Err: errors.ErrInvalidQueue}
		}
		var err error
		if t.Timestamp, err = parseTime(field(record, 1), loc); err != nil {
			return fail(errors.ErrInvalidTime, err)
		}
		counts := map[int]*int{
			2: &t.CallsWaiting, 3: &t.AgentsAvailable, 4: &t.AgentsBusy, 5: &t.AgentsNotReady,
			8: &t.CallsOffered, 9: &t.CallsAbandoned, 10: &t.AnsweredInSL,
		}
		for _, idx := range []int{2, 3, 4, 5, 8, 9, 10} {
			v, err := strconv.Atoi(field(record, idx))
			if err != nil || v < 0 {
				return fail(errors.ErrInvalidCount, orNegative(err, field(record, idx)))
			}
			*counts[idx] = v
		}
		durations := map[int]*time.Duration{6: &t.AHT, 7: &t.AvgWait, 11: &t.Interval}
		for _, idx := range []int{6, 7, 11} {
			d, err := parseSeconds(field(record, idx))
			if err != nil {
				return fail(errors.ErrInvalidDuration, err)
			}
			*durations[idx] = d
		}
		data = append(data, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func readRecords(r io.Reader, handle func(line int, record []string, loc *time.Location) error) error {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	loc := time.UTC
	lineNum := 0

	for {
		record, err := reader.Read()
		lineNum++
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading CSV at line %d: %w", lineNum, err)
		}

		// Handle headers/comments
		if len(record) > 0 && strings.HasPrefix(record[0], "#") {
			if newLoc, ok := headerLocation(record); ok {
				loc = newLoc
			}
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if err := handle(lineNum, record, loc); err != nil {
			return err
		}
	}
}

func headerLocation(record []string) (*time.Location, bool) {
	for _, col := range record {
		col = strings.TrimSpace(strings.TrimPrefix(col, "#"))
		for _, prefix := range tzPrefixes {
			if !strings.HasPrefix(col, prefix) {
				continue
			}
			code := strings.TrimPrefix(col, prefix)
			if code == "" {
				return nil, false
			}
			loc, err := getTimezoneLocation(code)
			if err != nil {
				return nil, false
			}
			return loc, true
		}
	}
	return nil, false
}

func field(record []string, i int) string {
	return strings.TrimSpace(record[i])
}

func orNegative(err error, value string) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%q must not be negative", value)
}

func parseSeconds(value string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if secs < 0 {
		return 0, fmt.Errorf("%q must not be negative", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func parseTime(value string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func getTimezoneLocation(code string) (*time.Location, error) {
	code = strings.TrimSpace(code)

	// First, try common US timezone abbreviations
	switch code {
	case "PT":
		return time.LoadLocation("America/Los_Angeles")
	case "ET":
		return time.LoadLocation("America/New_York")
	case "CT":
		return time.LoadLocation("America/Chicago")
	case "MT":
		return time.LoadLocation("America/Denver")
	case "UTC":
		return time.UTC, nil
	default:
		// Otherwise a full IANA name such as "Asia/Tokyo"
		return time.LoadLocation(code)
	}
}
