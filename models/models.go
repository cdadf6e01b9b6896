package models

import "time"

// Confidence describes how much the inputs behind a result can be trusted.
type Confidence string

const (
	ConfidenceHigh     Confidence = "high"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceLow      Confidence = "low"
	ConfidenceForecast Confidence = "forecast"
)

// Urgency is the severity tier of a staffing gap.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Rank orders urgency tiers from none (0) to critical (4).
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyHigh:
		return 3
	case UrgencyCritical:
		return 4
	default:
		return 0
	}
}

// Trend is the direction of demand for a queue over the next forecast bucket.
type Trend string

const (
	TrendSteady  Trend = "steady"
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
)

// Telemetry is one raw record from a live queue feed.
type Telemetry struct {
	QueueID         string        `json:"queue_id"`
	Timestamp       time.Time     `json:"timestamp"`
	CallsWaiting    int           `json:"calls_waiting"`
	AgentsAvailable int           `json:"agents_available"`
	AgentsBusy      int           `json:"agents_busy"`
	AgentsNotReady  int           `json:"agents_not_ready"`
	AHT             time.Duration `json:"aht"`
	AvgWait         time.Duration `json:"avg_wait"`
	CallsOffered    int           `json:"calls_offered"`
	CallsAbandoned  int           `json:"calls_abandoned"`
	AnsweredInSL    int           `json:"answered_in_sl"`
	Interval        time.Duration `json:"interval"`
}

// QueueSnapshot is the normalized state of one queue at one poll.
// Snapshots are values; a newer snapshot supersedes an older one.
type QueueSnapshot struct {
	QueueID            string        `json:"queue_id"`
	Timestamp          time.Time     `json:"timestamp"`
	CallsWaiting       int           `json:"calls_waiting"`
	AgentsAvailable    int           `json:"agents_available"`
	AgentsBusy         int           `json:"agents_busy"`
	AgentsNotReady     int           `json:"agents_not_ready"`
	AHT                time.Duration `json:"aht"`
	AvgWait            time.Duration `json:"avg_wait"`
	ArrivalRate        float64       `json:"arrival_rate"` // calls per hour
	AbandonRate        float64       `json:"abandon_rate"`
	ServiceLevel       float64       `json:"service_level"`
	TargetServiceLevel float64       `json:"target_service_level"`
	TargetAnswerTime   time.Duration `json:"target_answer_time"`
	Stale              bool          `json:"stale"`
	MissedPolls        int           `json:"missed_polls"`
	Confidence         Confidence    `json:"confidence"`
}

// EffectiveAgents counts agents that can take a call now or after the current one.
func (s QueueSnapshot) EffectiveAgents() int {
	return s.AgentsAvailable + s.AgentsBusy
}

// StaffingRequirement is the output of one staffing model evaluation.
type StaffingRequirement struct {
	QueueID              string        `json:"queue_id"`
	Required             int           `json:"required"`
	AchievedServiceLevel float64       `json:"achieved_service_level"`
	Confidence           Confidence    `json:"confidence"`
	OfferedLoad          float64       `json:"offered_load"`
	WaitProbability      float64       `json:"wait_probability"`
	AverageSpeedOfAnswer time.Duration `json:"average_speed_of_answer"`
	Occupancy            float64       `json:"occupancy"`
	Capped               bool          `json:"capped"`
}

// ActionKind names a class of mitigation.
type ActionKind string

const (
	ActionBorrow   ActionKind = "borrow"
	ActionDefer    ActionKind = "defer_breaks"
	ActionEscalate ActionKind = "escalate"
)

// Action is one suggested mitigation for a staffing gap.
type Action struct {
	Kind        ActionKind `json:"kind"`
	SourceQueue string     `json:"source_queue,omitempty"`
	Agents      int        `json:"agents"`
	Description string     `json:"description"`
}

// GapRecommendation compares current staffing to the requirement for a queue.
type GapRecommendation struct {
	QueueID  string   `json:"queue_id"`
	Current  int      `json:"current"`
	Required int      `json:"required"`
	Gap      int      `json:"gap"`
	Ratio    float64  `json:"ratio"`
	Trend    Trend    `json:"trend"`
	Urgency  Urgency  `json:"urgency"`
	Actions  []Action `json:"actions"`
}

// EmployeeCandidate is a roster entry the optimizer may schedule.
type EmployeeCandidate struct {
	ID             string    `json:"id"`
	Skills         []string  `json:"skills"`
	AvailableFrom  time.Time `json:"available_from"`
	AvailableTo    time.Time `json:"available_to"`
	ScheduledHours float64   `json:"scheduled_hours"`
	MaxWeeklyHours float64   `json:"max_weekly_hours"`
	// ContractedHours is the weekly threshold after which hours count as overtime.
	ContractedHours float64 `json:"contracted_hours"`
	FairnessCredit  float64 `json:"fairness_credit"`
}

// HasSkill reports whether the employee holds skill.
func (e EmployeeCandidate) HasSkill(skill string) bool {
	for _, s := range e.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// Available reports whether [start, end) lies inside the availability window.
// A zero window means always available.
func (e EmployeeCandidate) Available(start, end time.Time) bool {
	if !e.AvailableFrom.IsZero() && start.Before(e.AvailableFrom) {
		return false
	}
	if !e.AvailableTo.IsZero() && end.After(e.AvailableTo) {
		return false
	}
	return true
}

// ScheduleAssignment is one contiguous shift of an employee on a queue.
type ScheduleAssignment struct {
	EmployeeID string    `json:"employee_id"`
	QueueID    string    `json:"queue_id"`
	Skill      string    `json:"skill"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// ForecastBucket is the expected demand for a queue over one interval.
type ForecastBucket struct {
	QueueID  string        `json:"queue_id"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Calls    float64       `json:"calls"`
	AHT      time.Duration `json:"aht"`
	Priority int           `json:"priority"`
}

// EffectiveEnd returns End, rolled forward one day for buckets that wrap
// midnight (21:00 to 05:00).
func (b ForecastBucket) EffectiveEnd() time.Time {
	if b.End.Before(b.Start) {
		return b.End.Add(24 * time.Hour)
	}
	return b.End
}

// Covers reports whether t falls in [Start, EffectiveEnd).
func (b ForecastBucket) Covers(t time.Time) bool {
	end := b.EffectiveEnd()
	return end.After(b.Start) && !t.Before(b.Start) && t.Before(end)
}

// Rate returns the bucket's volume in calls per hour.
func (b ForecastBucket) Rate() float64 {
	span := b.EffectiveEnd().Sub(b.Start)
	if span <= 0 {
		return 0
	}
	return b.Calls / span.Hours()
}

// BlockRequirement holds the agents one queue needs in one planning block.
type BlockRequirement struct {
	QueueID      string `json:"queue_id"`
	AgentsNeeded int    `json:"agents_needed"`
	Priority     int    `json:"priority"`
}

// RequirementCurve is the per-block agent requirement across a planning horizon.
type RequirementCurve struct {
	Start         time.Time            `json:"start"`
	BlockDuration time.Duration        `json:"block_duration"`
	Blocks        [][]BlockRequirement `json:"blocks"`
	// UnmetDemands tracks blocks where demand exceeds roster headcount
	UnmetDemands []UnmetDemand `json:"unmet_demands,omitempty"`
}

// UnmetDemand tracks a block where demand cannot be met by the roster
type UnmetDemand struct {
	Block           int             `json:"block"`
	TotalDemand     int             `json:"total_demand"`
	AllocatedAgents int             `json:"allocated_agents"`
	UnmetAgents     int             `json:"unmet_agents"`
	ImpactedQueues  []ImpactedQueue `json:"impacted_queues"`
}

// ImpactedQueue represents a queue whose demand was not fully met
type ImpactedQueue struct {
	QueueID         string `json:"queue_id"`
	RequestedAgents int    `json:"requested_agents"`
	AllocatedAgents int    `json:"allocated_agents"`
	UnmetAgents     int    `json:"unmet_agents"`
	Priority        int    `json:"priority"`
}

// Required returns the required agents per block for queueID.
func (c *RequirementCurve) Required(queueID string) []int {
	out := make([]int, len(c.Blocks))
	for b, reqs := range c.Blocks {
		for _, r := range reqs {
			if r.QueueID == queueID {
				out[b] += r.AgentsNeeded
			}
		}
	}
	return out
}

// QueueConfig is the static definition of a tracked queue.
type QueueConfig struct {
	ID                 string
	Skill              string
	TargetServiceLevel float64
	TargetAnswerTime   time.Duration
	Priority           int
	// Patience is the mean caller patience used for abandonment modelling; zero disables it.
	Patience time.Duration
	// DefaultAHT stands in when telemetry reports no handled calls yet.
	DefaultAHT time.Duration
}
