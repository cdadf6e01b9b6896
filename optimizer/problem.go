package optimizer

import (
	"fmt"
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/models"
)

// Horizon is the planning window divided into equal blocks.
type Horizon struct {
	Start         time.Time
	BlockDuration time.Duration
	Blocks        int
}

// BlockStart returns the start time of block b.
func (h Horizon) BlockStart(b int) time.Time {
	return h.Start.Add(time.Duration(b) * h.BlockDuration)
}

// BlockOf returns the block index that begins exactly at t.
func (h Horizon) BlockOf(t time.Time) (int, bool) {
	d := t.Sub(h.Start)
	if d < 0 || d%h.BlockDuration != 0 {
		return 0, false
	}
	b := int(d / h.BlockDuration)
	return b, b <= h.Blocks
}

// QueueDemand is the per-block requirement for one (queue, skill) option.
type QueueDemand struct {
	QueueID  string
	Skill    string
	Required []int
}

// Constraints are the hard labor rules every schedule must satisfy.
type Constraints struct {
	// MaxConsecutiveBlocks bounds an uninterrupted working stretch. Zero disables the rule.
	MaxConsecutiveBlocks int
	// MinRestBlocks is the least idle gap between two working stretches. Zero disables the rule.
	MinRestBlocks int
}

// Problem is the read-only input of one optimizer run.
type Problem struct {
	Horizon     Horizon
	Queues      []QueueDemand
	Employees   []models.EmployeeCandidate
	Constraints Constraints

	// derived
	eligible  [][]int
	available [][]bool
	empIndex  map[string]int
}

// Prepare validates the problem and computes eligibility tables.
// It must be called before the problem is used.
func (p *Problem) Prepare() error {
	h := p.Horizon
	if h.Blocks <= 0 {
		return &customerrors.ValidationError{Field: "horizon.blocks", Value: h.Blocks, Reason: "must be positive"}
	}
	if h.BlockDuration <= 0 {
		return &customerrors.ValidationError{Field: "horizon.block_duration", Value: h.BlockDuration, Reason: "must be positive"}
	}
	seen := make(map[string]bool, len(p.Queues))
	for _, q := range p.Queues {
		if len(q.Required) != h.Blocks {
			return &customerrors.ValidationError{Field: "queue.required", Value: q.QueueID, Reason: fmt.Sprintf("has %d blocks, horizon has %d", len(q.Required), h.Blocks)}
		}
		for _, r := range q.Required {
			if r < 0 {
				return &customerrors.ValidationError{Field: "queue.required", Value: q.QueueID, Reason: "negative requirement"}
			}
		}
		key := q.QueueID + "/" + q.Skill
		if seen[key] {
			return &customerrors.ValidationError{Field: "queue", Value: key, Reason: "duplicate queue and skill"}
		}
		seen[key] = true
	}

	p.empIndex = make(map[string]int, len(p.Employees))
	p.eligible = make([][]int, len(p.Employees))
	p.available = make([][]bool, len(p.Employees))
	for e, emp := range p.Employees {
		if _, dup := p.empIndex[emp.ID]; dup {
			return &customerrors.ValidationError{Field: "employee", Value: emp.ID, Reason: "duplicate employee"}
		}
		p.empIndex[emp.ID] = e
		for q, demand := range p.Queues {
			if emp.HasSkill(demand.Skill) {
				p.eligible[e] = append(p.eligible[e], q)
			}
		}
		p.available[e] = make([]bool, h.Blocks)
		for b := range h.Blocks {
			p.available[e][b] = emp.Available(h.BlockStart(b), h.BlockStart(b+1))
		}
	}
	return nil
}

func (p *Problem) blockHours() float64 {
	return p.Horizon.BlockDuration.Hours()
}

func (p *Problem) isEligible(e, q int) bool {
	for _, x := range p.eligible[e] {
		if x == q {
			return true
		}
	}
	return false
}

func (p *Problem) queueIndex(queueID, skill string) (int, bool) {
	for i, q := range p.Queues {
		if q.QueueID == queueID && q.Skill == skill {
			return i, true
		}
	}
	return 0, false
}
