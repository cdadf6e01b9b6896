// Package scheduler turns forecast volume into a per-block agent requirement
// curve and checks it against roster headcount.
package scheduler

import (
	"fmt"
	"math"
	"sort"
	"time"

	"staffing-engine/erlang"
	customerrors "staffing-engine/errors"
	"staffing-engine/models"
)

// Horizon is the planning window the curve is built over.
type Horizon struct {
	Start         time.Time
	BlockDuration time.Duration
	Blocks        int
}

// Builder computes requirement curves for a fixed set of queues.
type Builder struct {
	model  *erlang.Model
	queues map[string]models.QueueConfig
	order  []string
}

// NewBuilder creates a Builder for queues using model for per-block staffing.
func NewBuilder(model *erlang.Model, queues []models.QueueConfig) *Builder {
	b := &Builder{model: model, queues: make(map[string]models.QueueConfig, len(queues))}
	for _, q := range queues {
		if _, dup := b.queues[q.ID]; dup {
			continue
		}
		b.queues[q.ID] = q
		b.order = append(b.order, q.ID)
	}
	return b
}

type blockLoad struct {
	calls    float64
	ahtCalls float64 // calls × AHT seconds
	priority int
}

// Build spreads each forecast bucket over the blocks it overlaps, in
// proportion to the overlap, then sizes every (queue, block) with Erlang C.
// When roster is non-nil, blocks whose total demand exceeds the available
// headcount are reported in UnmetDemands; Blocks always carries full demand.
func (b *Builder) Build(h Horizon, buckets []models.ForecastBucket, roster []models.EmployeeCandidate) (*models.RequirementCurve, error) {
	if h.Blocks <= 0 {
		return nil, &customerrors.ValidationError{Field: "horizon.blocks", Value: h.Blocks, Reason: "must be positive"}
	}
	if h.BlockDuration <= 0 {
		return nil, &customerrors.ValidationError{Field: "horizon.block_duration", Value: h.BlockDuration, Reason: "must be positive"}
	}

	loads := make(map[string][]blockLoad, len(b.order))
	for _, id := range b.order {
		loads[id] = make([]blockLoad, h.Blocks)
	}

	horizonEnd := h.Start.Add(time.Duration(h.Blocks) * h.BlockDuration)
	for _, fb := range buckets {
		per, ok := loads[fb.QueueID]
		if !ok {
			continue
		}
		if fb.Calls < 0 {
			return nil, &customerrors.ValidationError{Field: "forecast.calls", Value: fb.Calls, Reason: "must not be negative"}
		}
		start, end := fb.Start, fb.EffectiveEnd()
		// elapsed duration, not wall clock, so DST shifts are accounted for
		duration := end.Sub(start)
		if duration <= 0 || !end.After(h.Start) || !start.Before(horizonEnd) {
			continue
		}
		callsPerSecond := fb.Calls / duration.Seconds()

		first := 0
		if start.After(h.Start) {
			first = int(start.Sub(h.Start) / h.BlockDuration)
		}
		for blk := first; blk < h.Blocks; blk++ {
			blockStart := h.Start.Add(time.Duration(blk) * h.BlockDuration)
			blockEnd := blockStart.Add(h.BlockDuration)
			if !blockStart.Before(end) {
				break
			}
			// clamp to the bucket window
			actualStart := blockStart
			if start.After(blockStart) {
				actualStart = start
			}
			actualEnd := blockEnd
			if end.Before(blockEnd) {
				actualEnd = end
			}
			used := actualEnd.Sub(actualStart).Seconds()
			if used <= 0 {
				continue
			}
			calls := callsPerSecond * used
			per[blk].calls += calls
			per[blk].ahtCalls += calls * fb.AHT.Seconds()
			if fb.Priority > 0 && (per[blk].priority == 0 || fb.Priority < per[blk].priority) {
				per[blk].priority = fb.Priority
			}
		}
	}

	curve := &models.RequirementCurve{
		Start:         h.Start,
		BlockDuration: h.BlockDuration,
		Blocks:        make([][]models.BlockRequirement, h.Blocks),
		UnmetDemands:  make([]models.UnmetDemand, 0),
	}
	blockHours := h.BlockDuration.Hours()
	for blk := range h.Blocks {
		curve.Blocks[blk] = make([]models.BlockRequirement, 0, len(b.order))
		for _, id := range b.order {
			q := b.queues[id]
			l := loads[id][blk]
			if l.calls <= 0 {
				continue
			}
			aht := q.DefaultAHT
			if l.ahtCalls > 0 {
				aht = time.Duration(l.ahtCalls / l.calls * float64(time.Second))
			}
			if aht <= 0 {
				return nil, &customerrors.ValidationError{Field: "forecast.aht", Value: id, Reason: "no handle time in forecast or queue config"}
			}
			req, err := b.model.Required(erlang.Input{
				QueueID:            id,
				ArrivalRate:        l.calls / blockHours,
				AHT:                aht,
				TargetServiceLevel: q.TargetServiceLevel,
				TargetAnswerTime:   q.TargetAnswerTime,
				Patience:           q.Patience,
			})
			if err != nil {
				return nil, fmt.Errorf("queue %s block %d: %w", id, blk, err)
			}
			priority := q.Priority
			if l.priority > 0 {
				priority = l.priority
			}
			curve.Blocks[blk] = append(curve.Blocks[blk], models.BlockRequirement{
				QueueID:      id,
				AgentsNeeded: req.Required,
				Priority:     priority,
			})
		}
	}

	// Apply the headcount check only when a roster is supplied
	if roster != nil {
		for blk := range h.Blocks {
			blockStart := h.Start.Add(time.Duration(blk) * h.BlockDuration)
			capacity := Headcount(roster, blockStart, blockStart.Add(h.BlockDuration))
			if unmet := allocateWithConstraints(curve.Blocks[blk], capacity); unmet != nil {
				unmet.Block = blk
				curve.UnmetDemands = append(curve.UnmetDemands, *unmet)
			}
		}
	}
	return curve, nil
}

// Headcount counts roster members available for the whole of [start, end).
func Headcount(roster []models.EmployeeCandidate, start, end time.Time) int {
	n := 0
	for _, e := range roster {
		if e.Available(start, end) {
			n++
		}
	}
	return n
}

// allocateWithConstraints performs priority-based allocation of capacity and
// reports the shortfall. The input slice is left untouched.
// Time: O(n log n) for sort + O(n) for allocation = O(n log n)
func allocateWithConstraints(requests []models.BlockRequirement, capacity int) *models.UnmetDemand {
	if len(requests) == 0 {
		return nil
	}

	totalDemand := 0
	for _, req := range requests {
		totalDemand += req.AgentsNeeded
	}

	// Fast path: if capacity covers demand, no allocation logic needed
	if capacity >= totalDemand {
		return nil
	}

	// Sort by priority (1 = highest), queue ID breaks ties
	sorted := append([]models.BlockRequirement(nil), requests...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := rankPriority(sorted[i].Priority), rankPriority(sorted[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return sorted[i].QueueID < sorted[j].QueueID
	})

	impacted := make([]models.ImpactedQueue, 0)
	remaining := max(capacity, 0)

	for _, req := range sorted {
		if remaining >= req.AgentsNeeded {
			remaining -= req.AgentsNeeded
			continue
		}
		// partial or no allocation - give what's left
		impacted = append(impacted, models.ImpactedQueue{
			QueueID:         req.QueueID,
			RequestedAgents: req.AgentsNeeded,
			AllocatedAgents: remaining,
			UnmetAgents:     req.AgentsNeeded - remaining,
			Priority:        req.Priority,
		})
		remaining = 0
	}

	return &models.UnmetDemand{
		TotalDemand:     totalDemand,
		AllocatedAgents: max(capacity, 0),
		UnmetAgents:     totalDemand - max(capacity, 0),
		ImpactedQueues:  impacted,
	}
}

// rankPriority sorts unset priorities last.
func rankPriority(p int) int {
	if p <= 0 {
		return math.MaxInt
	}
	return p
}
