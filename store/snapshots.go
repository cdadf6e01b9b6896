package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"staffing-engine/models"
	"staffing-engine/orchestrator"
)

const lastCycleKey = "last_cycle_id"

// RecommendationRow is one stored gap recommendation.
type RecommendationRow struct {
	CycleID      string
	QueueID      string
	StartedAt    time.Time
	Current      int
	Required     int
	Gap          int
	Urgency      models.Urgency
	Trend        models.Trend
	Confidence   models.Confidence
	ServiceLevel float64
}

func (db *DB) Name() string { return "sqlite" }

// Publish stores a snapshot with its recommendations and assignments in one transaction.
func (db *DB) Publish(ctx context.Context, s *orchestrator.Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	started := s.StartedAt.UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cycles (cycle_id, started_at, completed_at, max_urgency, scheduled, failures, snapshot)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.CycleID, started, s.CompletedAt.UTC().Format(time.RFC3339Nano),
		string(s.MaxUrgency), s.Schedule != nil, len(s.Failures), string(raw),
	); err != nil {
		return fmt.Errorf("inserting cycle: %w", err)
	}

	for _, rec := range s.Recommendations {
		var confidence models.Confidence
		var sl float64
		if req, ok := s.Requirement(rec.QueueID); ok {
			confidence, sl = req.Confidence, req.AchievedServiceLevel
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recommendations (cycle_id, queue_id, current_agents, required_agents, gap, urgency, trend, confidence, service_level, started_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.CycleID, rec.QueueID, rec.Current, rec.Required, rec.Gap,
			string(rec.Urgency), string(rec.Trend), string(confidence), sl, started,
		); err != nil {
			return fmt.Errorf("inserting recommendation: %w", err)
		}
	}

	if s.Schedule != nil {
		for _, a := range s.Schedule.Assignments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO assignments (cycle_id, employee_id, queue_id, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
				s.CycleID, a.EmployeeID, a.QueueID,
				a.Start.UTC().Format(time.RFC3339), a.End.UTC().Format(time.RFC3339),
			); err != nil {
				return fmt.Errorf("inserting assignment: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		lastCycleKey, s.CycleID,
	); err != nil {
		return fmt.Errorf("updating state: %w", err)
	}

	return tx.Commit()
}

// LatestSnapshot returns the most recently stored snapshot, or nil when none is stored.
func (db *DB) LatestSnapshot(ctx context.Context) (*orchestrator.Snapshot, error) {
	var raw string
	err := db.QueryRowContext(ctx,
		"SELECT snapshot FROM cycles ORDER BY started_at DESC, created_at DESC LIMIT 1",
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest cycle: %w", err)
	}

	var s orchestrator.Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &s, nil
}

// QueueHistory returns the latest limit recommendations for queueID, newest first.
func (db *DB) QueueHistory(ctx context.Context, queueID string, limit int) ([]RecommendationRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT cycle_id, queue_id, started_at, current_agents, required_agents, gap, urgency, trend, confidence, service_level
		 FROM recommendations
		 WHERE queue_id = ?
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		queueID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	var out []RecommendationRow
	for rows.Next() {
		var r RecommendationRow
		var startedStr, urgency, trend, confidence string
		if err := rows.Scan(
			&r.CycleID, &r.QueueID, &startedStr, &r.Current, &r.Required, &r.Gap,
			&urgency, &trend, &confidence, &r.ServiceLevel,
		); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		r.Urgency = models.Urgency(urgency)
		r.Trend = models.Trend(trend)
		r.Confidence = models.Confidence(confidence)
		if t, err := time.Parse(time.RFC3339Nano, startedStr); err == nil {
			r.StartedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep cycles and deletes the rest.
func (db *DB) Prune(ctx context.Context, keep int) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	const stale = `SELECT cycle_id FROM cycles ORDER BY started_at DESC, created_at DESC LIMIT -1 OFFSET ?`
	for _, table := range []string{"recommendations", "assignments"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE cycle_id IN ("+stale+")", keep); err != nil {
			return 0, fmt.Errorf("pruning %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM cycles WHERE cycle_id IN ("+stale+")", keep)
	if err != nil {
		return 0, fmt.Errorf("pruning cycles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
