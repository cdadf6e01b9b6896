package errors

import (
	"fmt"
	"strings"
	"time"
)

// ParseError wraps a specific error with context about where it occurred.
type ParseError struct {
	Line   int
	Record []string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %v (record: %v)", e.Line, e.Err, e.Record)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError reports malformed or out-of-range input for one queue or request.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FeedUnavailable reports that a telemetry, forecast or roster source could not be reached.
type FeedUnavailable struct {
	Feed    string
	QueueID string
	Err     error
}

func (e *FeedUnavailable) Error() string {
	if e.QueueID == "" {
		return fmt.Sprintf("%s feed unavailable: %v", e.Feed, e.Err)
	}
	return fmt.Sprintf("%s feed unavailable for queue %s: %v", e.Feed, e.QueueID, e.Err)
}

func (e *FeedUnavailable) Unwrap() error {
	return e.Err
}

func (e *FeedUnavailable) Is(target error) bool {
	return target == ErrFeedUnavailable
}

// StaleDataWarning is surfaced as data, never returned as a failure.
type StaleDataWarning struct {
	QueueID     string        `json:"queue_id"`
	Age         time.Duration `json:"age"`
	MissedPolls int           `json:"missed_polls"`
	Fallback    bool          `json:"fallback"`
}

func (w StaleDataWarning) Error() string {
	if w.Fallback {
		return fmt.Sprintf("queue %s telemetry stale (%d missed polls, age %s), using forecast", w.QueueID, w.MissedPolls, w.Age)
	}
	return fmt.Sprintf("queue %s telemetry stale (%d missed polls, age %s)", w.QueueID, w.MissedPolls, w.Age)
}

// Violation is one broken hard constraint in a schedule.
type Violation struct {
	EmployeeID string `json:"employee_id"`
	Kind       string `json:"kind"`
	Block      int    `json:"block"`
	Detail     string `json:"detail"`
}

// ConstraintInfeasible carries the violations of the best schedule found.
type ConstraintInfeasible struct {
	Violations []Violation
}

func (e *ConstraintInfeasible) Error() string {
	kinds := make(map[string]int)
	for _, v := range e.Violations {
		kinds[v.Kind]++
	}
	parts := make([]string, 0, len(kinds))
	for _, k := range []string{ViolationSkill, ViolationAvailability, ViolationConsecutive, ViolationRest, ViolationWeeklyHours} {
		if n := kinds[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	return fmt.Sprintf("no feasible schedule: %d violations (%s)", len(e.Violations), strings.Join(parts, ", "))
}

func (e *ConstraintInfeasible) Is(target error) bool {
	return target == ErrConstraintInfeasible
}

// OptimizerTimeout reports that the wall-clock budget ran out before convergence.
type OptimizerTimeout struct {
	Budget      time.Duration
	Generations int
}

func (e *OptimizerTimeout) Error() string {
	return fmt.Sprintf("optimizer budget %s exhausted after %d generations", e.Budget, e.Generations)
}

func (e *OptimizerTimeout) Is(target error) bool {
	return target == ErrOptimizerTimeout
}

// Violation kinds
const (
	ViolationSkill        = "skill"
	ViolationAvailability = "availability"
	ViolationConsecutive  = "max_consecutive"
	ViolationRest         = "min_rest"
	ViolationWeeklyHours  = "max_weekly_hours"
)

// Define specific error types for better error handling
var (
	ErrValidation           = fmt.Errorf("validation error")
	ErrFeedUnavailable      = fmt.Errorf("feed unavailable")
	ErrConstraintInfeasible = fmt.Errorf("constraint infeasible")
	ErrOptimizerTimeout     = fmt.Errorf("optimizer timeout")
	ErrCycleSuperseded      = fmt.Errorf("cycle superseded")

	ErrInvalidFieldCount = fmt.Errorf("invalid field count")
	ErrInvalidQueue      = fmt.Errorf("invalid queue")
	ErrInvalidTime       = fmt.Errorf("invalid time")
	ErrInvalidDuration   = fmt.Errorf("invalid duration")
	ErrInvalidCount      = fmt.Errorf("invalid count")
	ErrInvalidHours      = fmt.Errorf("invalid hours")
	ErrInvalidPriority   = fmt.Errorf("invalid priority")
	ErrEmptyRecord       = fmt.Errorf("empty record")
)
