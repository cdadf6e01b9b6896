// Package gap compares staffing requirements against current agents and
// proposes ranked mitigations. It never moves agents itself.
package gap

import (
	"fmt"
	"sort"

	"staffing-engine/models"
)

// Thresholds are the lower bounds (inclusive) of the low, medium and high
// tiers on the gap ratio. Anything below High is critical.
type Thresholds struct {
	Low    float64 `toml:"low"`
	Medium float64 `toml:"medium"`
	High   float64 `toml:"high"`
}

// DefaultThresholds returns the standard tier boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: -0.10, Medium: -0.25, High: -0.50}
}

// Input pairs a queue snapshot with its staffing requirement.
type Input struct {
	Snapshot    models.QueueSnapshot
	Requirement models.StaffingRequirement
	Trend       models.Trend
}

// Analyzer classifies gaps and builds recommendations.
type Analyzer struct {
	thresholds Thresholds
}

// New creates an Analyzer. A zero Thresholds value selects the defaults.
func New(t Thresholds) *Analyzer {
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}
	return &Analyzer{thresholds: t}
}

// Ratio returns gap/required, or 0 when nothing is required.
func Ratio(current, required int) float64 {
	if required <= 0 {
		return 0
	}
	return float64(current-required) / float64(required)
}

// Classify maps a gap ratio and demand trend to an urgency tier.
func (a *Analyzer) Classify(ratio float64, trend models.Trend) models.Urgency {
	var u models.Urgency
	switch {
	case ratio >= 0:
		return models.UrgencyNone
	case ratio >= a.thresholds.Low:
		u = models.UrgencyLow
	case ratio >= a.thresholds.Medium:
		u = models.UrgencyMedium
	case ratio >= a.thresholds.High:
		u = models.UrgencyHigh
	default:
		u = models.UrgencyCritical
	}
	if trend == models.TrendRising {
		u = escalate(u)
	}
	return u
}

func escalate(u models.Urgency) models.Urgency {
	switch u {
	case models.UrgencyLow:
		return models.UrgencyMedium
	case models.UrgencyMedium:
		return models.UrgencyHigh
	default:
		return models.UrgencyCritical
	}
}

type donor struct {
	queueID string
	idle    int
}

// Analyze returns one recommendation per input, most urgent first.
func (a *Analyzer) Analyze(inputs []Input) []models.GapRecommendation {
	recs := make([]models.GapRecommendation, len(inputs))
	var donors []donor

	for i, in := range inputs {
		current := in.Snapshot.EffectiveAgents()
		required := max(in.Requirement.Required, 0)
		trend := in.Trend
		if trend == "" {
			trend = models.TrendSteady
		}
		ratio := Ratio(current, required)
		recs[i] = models.GapRecommendation{
			QueueID:  in.Snapshot.QueueID,
			Current:  current,
			Required: required,
			Gap:      current - required,
			Ratio:    ratio,
			Trend:    trend,
			Urgency:  a.Classify(ratio, trend),
			Actions:  []models.Action{},
		}
		if gap := current - required; gap > 0 {
			// only agents not on a call can move
			if idle := min(gap, in.Snapshot.AgentsAvailable); idle > 0 {
				donors = append(donors, donor{queueID: in.Snapshot.QueueID, idle: idle})
			}
		}
	}

	sortRecommendations(recs)
	sort.SliceStable(donors, func(i, j int) bool {
		if donors[i].idle != donors[j].idle {
			return donors[i].idle > donors[j].idle
		}
		return donors[i].queueID < donors[j].queueID
	})

	notReady := make(map[string]int, len(inputs))
	for _, in := range inputs {
		notReady[in.Snapshot.QueueID] = in.Snapshot.AgentsNotReady
	}

	for i := range recs {
		rec := &recs[i]
		if rec.Gap >= 0 {
			continue
		}
		remaining := -rec.Gap

		for d := range donors {
			if remaining == 0 {
				break
			}
			take := min(donors[d].idle, remaining)
			if take == 0 {
				continue
			}
			donors[d].idle -= take
			remaining -= take
			rec.Actions = append(rec.Actions, models.Action{
				Kind:        models.ActionBorrow,
				SourceQueue: donors[d].queueID,
				Agents:      take,
				Description: fmt.Sprintf("borrow %d %s from queue %s", take, agents(take), donors[d].queueID),
			})
		}

		if deferrable := min(notReady[rec.QueueID], remaining); deferrable > 0 {
			remaining -= deferrable
			rec.Actions = append(rec.Actions, models.Action{
				Kind:        models.ActionDefer,
				Agents:      deferrable,
				Description: fmt.Sprintf("defer breaks or training for %d not-ready %s", deferrable, agents(deferrable)),
			})
		}

		if remaining > 0 {
			rec.Actions = append(rec.Actions, models.Action{
				Kind:        models.ActionEscalate,
				Agents:      remaining,
				Description: fmt.Sprintf("escalate: %d %s short with no internal cover", remaining, agents(remaining)),
			})
		}
	}
	return recs
}

// MaxUrgency returns the most severe tier in recs.
func MaxUrgency(recs []models.GapRecommendation) models.Urgency {
	worst := models.UrgencyNone
	for _, r := range recs {
		if r.Urgency.Rank() > worst.Rank() {
			worst = r.Urgency
		}
	}
	return worst
}

func sortRecommendations(recs []models.GapRecommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if ri, rj := recs[i].Urgency.Rank(), recs[j].Urgency.Rank(); ri != rj {
			return ri > rj
		}
		if recs[i].Ratio != recs[j].Ratio {
			return recs[i].Ratio < recs[j].Ratio
		}
		return recs[i].QueueID < recs[j].QueueID
	})
}

func agents(n int) string {
	if n == 1 {
		return "agent"
	}
	return "agents"
}
