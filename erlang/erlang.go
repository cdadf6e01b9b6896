// Package erlang computes agent requirements from offered load using the
// Erlang C queueing model, with an optional abandonment (Erlang A) adjustment.
package erlang

import (
	"math"
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/models"
)

// Config bounds the agent search.
type Config struct {
	// MaxAgents is the highest agent count the search will consider.
	MaxAgents int `toml:"max_agents"`
	// MaxOccupancy is the traffic intensity at MaxAgents beyond which the
	// result is capped instead of searched.
	MaxOccupancy float64 `toml:"max_occupancy"`
	// MemoSize bounds the (agents, load) wait probability cache. Zero disables it.
	MemoSize int `toml:"memo_size"`
}

// DefaultConfig returns the search bounds used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxAgents:    2000,
		MaxOccupancy: 0.98,
		MemoSize:     4096,
	}
}

// Input describes one queue's demand and service target.
type Input struct {
	QueueID            string
	ArrivalRate        float64 // calls per hour
	AHT                time.Duration
	TargetServiceLevel float64
	TargetAnswerTime   time.Duration
	// AbandonRate is the observed fraction of callers that hang up while waiting.
	AbandonRate float64
	// Patience is the mean time a caller waits before abandoning. When set it
	// takes precedence over AbandonRate.
	Patience   time.Duration
	Confidence models.Confidence
}

// OfferedLoad returns λ·h in Erlangs.
func (in Input) OfferedLoad() float64 {
	return in.ArrivalRate / 3600 * in.AHT.Seconds()
}

// Model evaluates staffing requirements. A Model is safe for concurrent use;
// its memo is private to the instance.
type Model struct {
	cfg  Config
	memo *memo
}

// New creates a Model. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Model {
	def := DefaultConfig()
	if cfg.MaxAgents <= 0 {
		cfg.MaxAgents = def.MaxAgents
	}
	if cfg.MaxOccupancy <= 0 || cfg.MaxOccupancy > 1 {
		cfg.MaxOccupancy = def.MaxOccupancy
	}
	return &Model{cfg: cfg, memo: newMemo(cfg.MemoSize)}
}

// Config returns the effective search bounds.
func (m *Model) Config() Config {
	return m.cfg
}

// Validate checks an Input without evaluating it.
func Validate(in Input) error {
	switch {
	case math.IsNaN(in.ArrivalRate) || math.IsInf(in.ArrivalRate, 0) || in.ArrivalRate < 0:
		return &customerrors.ValidationError{Field: "arrival_rate", Value: in.ArrivalRate, Reason: "must be a finite non-negative number"}
	case in.AHT <= 0:
		return &customerrors.ValidationError{Field: "aht", Value: in.AHT, Reason: "handle time must be positive"}
	case math.IsNaN(in.TargetServiceLevel) || in.TargetServiceLevel <= 0 || in.TargetServiceLevel >= 1:
		return &customerrors.ValidationError{Field: "target_service_level", Value: in.TargetServiceLevel, Reason: "must be in (0, 1)"}
	case in.TargetAnswerTime < 0:
		return &customerrors.ValidationError{Field: "target_answer_time", Value: in.TargetAnswerTime, Reason: "must not be negative"}
	case math.IsNaN(in.AbandonRate) || in.AbandonRate < 0 || in.AbandonRate >= 1:
		return &customerrors.ValidationError{Field: "abandon_rate", Value: in.AbandonRate, Reason: "must be in [0, 1)"}
	case in.Patience < 0:
		return &customerrors.ValidationError{Field: "patience", Value: in.Patience, Reason: "must not be negative"}
	}
	return nil
}

// Required returns the smallest agent count meeting the service target.
func (m *Model) Required(in Input) (models.StaffingRequirement, error) {
	if err := Validate(in); err != nil {
		return models.StaffingRequirement{}, err
	}
	conf := in.Confidence
	if conf == "" {
		conf = models.ConfidenceHigh
	}

	load := in.OfferedLoad()
	res := models.StaffingRequirement{
		QueueID:     in.QueueID,
		OfferedLoad: load,
		Confidence:  conf,
	}
	if load == 0 {
		res.AchievedServiceLevel = 1
		return res, nil
	}

	h := in.AHT.Seconds()
	t := in.TargetAnswerTime.Seconds()
	maxN := m.cfg.MaxAgents

	if load/float64(maxN) > m.cfg.MaxOccupancy {
		return m.capped(res, in, load), nil
	}

	if in.Patience > 0 {
		for n := max(1, int(math.Ceil(load))); n <= maxN; n++ {
			eff := m.patienceLoad(n, load, h, in.Patience.Seconds())
			sl := m.ServiceLevel(n, eff, h, t)
			if sl >= in.TargetServiceLevel {
				return m.fill(res, n, eff, h, sl), nil
			}
		}
		return m.capped(res, in, load), nil
	}

	eff := load * (1 - in.AbandonRate)
	start := max(1, int(math.Ceil(eff)))

	// Erlang B up to start-1, then one recurrence step per candidate.
	b := 1.0
	for k := 1; k < start; k++ {
		b = eff * b / (float64(k) + eff*b)
	}
	for n := start; n <= maxN; n++ {
		b = eff * b / (float64(n) + eff*b)
		c := 1.0
		if float64(n) > eff {
			c = float64(n) * b / (float64(n) - eff*(1-b))
		}
		m.memo.put(n, eff, c)
		sl := serviceLevel(c, n, eff, h, t)
		if sl >= in.TargetServiceLevel {
			return m.fill(res, n, eff, h, sl), nil
		}
	}
	return m.capped(res, in, load), nil
}

// WaitProbability returns the Erlang C probability that a contact waits,
// given agents and offered load in Erlangs.
func (m *Model) WaitProbability(agents int, load float64) float64 {
	if load <= 0 {
		return 0
	}
	if agents <= 0 || float64(agents) <= load {
		return 1
	}
	if c, ok := m.memo.get(agents, load); ok {
		return c
	}
	b := 1.0
	for k := 1; k <= agents; k++ {
		b = load * b / (float64(k) + load*b)
	}
	n := float64(agents)
	c := n * b / (n - load*(1-b))
	m.memo.put(agents, load, c)
	return c
}

// ServiceLevel returns the fraction of contacts answered within answerSecs.
func (m *Model) ServiceLevel(agents int, load, ahtSecs, answerSecs float64) float64 {
	if load <= 0 {
		return 1
	}
	return serviceLevel(m.WaitProbability(agents, load), agents, load, ahtSecs, answerSecs)
}

func serviceLevel(c float64, agents int, load, ahtSecs, answerSecs float64) float64 {
	n := float64(agents)
	if n <= load {
		return 0
	}
	sl := 1 - c*math.Exp(-(n-load)*answerSecs/ahtSecs)
	return math.Max(0, math.Min(1, sl))
}

// patienceLoad reduces load by the fraction of callers expected to abandon
// before an agent frees up, given exponential patience with the given mean.
func (m *Model) patienceLoad(agents int, load, ahtSecs, patienceSecs float64) float64 {
	n := float64(agents)
	if n <= load {
		// overloaded: the queue drains only through abandonment
		return math.Min(load, n*0.999)
	}
	c := m.WaitProbability(agents, load)
	abandonRate := 1 / patienceSecs
	serviceRate := (n - load) / ahtSecs
	frac := c * abandonRate / (abandonRate + serviceRate)
	return load * (1 - frac)
}

func (m *Model) fill(res models.StaffingRequirement, n int, eff, h, sl float64) models.StaffingRequirement {
	c := m.WaitProbability(n, eff)
	res.Required = n
	res.AchievedServiceLevel = sl
	res.WaitProbability = c
	res.Occupancy = eff / float64(n)
	if float64(n) > eff {
		res.AverageSpeedOfAnswer = time.Duration(c * h / (float64(n) - eff) * float64(time.Second))
	}
	return res
}

func (m *Model) capped(res models.StaffingRequirement, in Input, load float64) models.StaffingRequirement {
	n := m.cfg.MaxAgents
	h := in.AHT.Seconds()
	eff := load * (1 - in.AbandonRate)
	if in.Patience > 0 {
		eff = m.patienceLoad(n, load, h, in.Patience.Seconds())
	}
	res = m.fill(res, n, eff, h, m.ServiceLevel(n, eff, h, in.TargetAnswerTime.Seconds()))
	res.Occupancy = math.Min(1, res.Occupancy)
	res.Capped = true
	res.Confidence = models.ConfidenceLow
	return res
}
