package orchestrator

import (
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/models"
	"staffing-engine/optimizer"
)

// Snapshot is the published result of one cycle. It is never modified after
// publication; readers may share it freely.
type Snapshot struct {
	CycleID         string                          `json:"cycle_id"`
	StartedAt       time.Time                       `json:"started_at"`
	CompletedAt     time.Time                       `json:"completed_at"`
	Queues          []models.QueueSnapshot          `json:"queues"`
	Requirements    []models.StaffingRequirement    `json:"requirements"`
	Recommendations []models.GapRecommendation      `json:"recommendations"`
	Warnings        []customerrors.StaleDataWarning `json:"warnings,omitempty"`
	Failures        map[string]string               `json:"failures,omitempty"`
	MaxUrgency      models.Urgency                  `json:"max_urgency"`
	Schedule        *ScheduleResult                 `json:"schedule,omitempty"`
}

// ScheduleResult is the optimizer outcome attached to a snapshot.
type ScheduleResult struct {
	Curve       *models.RequirementCurve    `json:"curve"`
	Assignments []models.ScheduleAssignment `json:"assignments"`
	Score       optimizer.Score             `json:"score"`
	Violations  []customerrors.Violation    `json:"violations,omitempty"`
	Generations int                         `json:"generations"`
	Converged   bool                        `json:"converged"`
	TimedOut    bool                        `json:"timed_out"`
	// Degraded explains a best-effort schedule (budget exhausted or infeasible).
	Degraded string `json:"degraded,omitempty"`
}

// Requirement returns the staffing requirement for queueID.
func (s *Snapshot) Requirement(queueID string) (models.StaffingRequirement, bool) {
	for _, r := range s.Requirements {
		if r.QueueID == queueID {
			return r, true
		}
	}
	return models.StaffingRequirement{}, false
}

// Recommendation returns the gap recommendation for queueID.
func (s *Snapshot) Recommendation(queueID string) (models.GapRecommendation, bool) {
	for _, r := range s.Recommendations {
		if r.QueueID == queueID {
			return r, true
		}
	}
	return models.GapRecommendation{}, false
}

// Queue returns the queue snapshot for queueID.
func (s *Snapshot) Queue(queueID string) (models.QueueSnapshot, bool) {
	for _, q := range s.Queues {
		if q.QueueID == queueID {
			return q, true
		}
	}
	return models.QueueSnapshot{}, false
}
