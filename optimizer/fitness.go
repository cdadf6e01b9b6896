package optimizer

import (
	"fmt"
	"math"

	customerrors "staffing-engine/errors"
)

// Weights scale the fitness components.
type Weights struct {
	Coverage float64 `toml:"coverage"`
	Hard     float64 `toml:"hard"`
	Fairness float64 `toml:"fairness"`
	Overtime float64 `toml:"overtime"`
	// Idle penalizes agent-blocks assigned beyond a queue's requirement.
	Idle float64 `toml:"idle"`
}

// DefaultWeights makes one hard violation outweigh any coverage gain.
func DefaultWeights() Weights {
	return Weights{Coverage: 1, Hard: 100, Fairness: 0.1, Overtime: 0.05, Idle: 0.01}
}

// Score is the evaluated fitness of one chromosome.
type Score struct {
	Fitness       float64 `json:"fitness"`
	Coverage      float64 `json:"coverage"`
	CoverageRatio float64 `json:"coverage_ratio"`
	Violations    int     `json:"violations"`
	Fairness      float64 `json:"fairness"`
	Overtime      float64 `json:"overtime_hours"`
	Idle          int     `json:"idle_blocks"`
}

// Undesirable marks block hours that count toward the fairness penalty.
// A block is undesirable when its local start hour is before From or at/after To.
// From == To disables fairness tracking.
type Undesirable struct {
	From int `toml:"from_hour"`
	To   int `toml:"to_hour"`
}

type evaluator struct {
	p           *Problem
	w           Weights
	undesirable []bool
}

func newEvaluator(p *Problem, w Weights, u Undesirable) *evaluator {
	ev := &evaluator{p: p, w: w, undesirable: make([]bool, p.Horizon.Blocks)}
	if u.From != u.To {
		for b := range p.Horizon.Blocks {
			h := p.Horizon.BlockStart(b).Hour()
			ev.undesirable[b] = h < u.From || h >= u.To
		}
	}
	return ev
}

func (ev *evaluator) score(c *Chromosome) Score {
	p := ev.p
	var s Score

	assigned := make([][]int, len(p.Queues))
	for q := range assigned {
		assigned[q] = make([]int, p.Horizon.Blocks)
	}
	for e := range p.Employees {
		for b, q := range c.row(e) {
			if q != Unassigned {
				assigned[q][b]++
			}
		}
	}

	demanded := 0
	for q, demand := range p.Queues {
		for b, req := range demand.Required {
			got := assigned[q][b]
			if got > req {
				s.Idle += got - req
			}
			if req == 0 {
				continue
			}
			demanded++
			s.Coverage += math.Min(float64(got), float64(req)) / float64(req)
		}
	}
	if demanded > 0 {
		s.CoverageRatio = s.Coverage / float64(demanded)
	} else {
		s.CoverageRatio = 1
	}

	s.Violations = len(ev.violations(c, false))
	s.Overtime = ev.overtime(c)
	s.Fairness = ev.fairness(c)

	s.Fitness = ev.w.Coverage*s.Coverage -
		ev.w.Hard*float64(s.Violations) -
		ev.w.Fairness*s.Fairness -
		ev.w.Overtime*s.Overtime -
		ev.w.Idle*float64(s.Idle)
	return s
}

func (ev *evaluator) worked(c *Chromosome, e int) int {
	n := 0
	for _, q := range c.row(e) {
		if q != Unassigned {
			n++
		}
	}
	return n
}

func (ev *evaluator) overtime(c *Chromosome) float64 {
	total := 0.0
	for e, emp := range ev.p.Employees {
		if emp.ContractedHours <= 0 {
			continue
		}
		hours := emp.ScheduledHours + float64(ev.worked(c, e))*ev.p.blockHours()
		total += math.Max(0, hours-emp.ContractedHours)
	}
	return total
}

// fairness is the standard deviation of undesirable hours net of each
// employee's fairness credit.
func (ev *evaluator) fairness(c *Chromosome) float64 {
	n := len(ev.p.Employees)
	if n < 2 {
		return 0
	}
	load := make([]float64, n)
	mean := 0.0
	for e, emp := range ev.p.Employees {
		blocks := 0
		for b, q := range c.row(e) {
			if q != Unassigned && ev.undesirable[b] {
				blocks++
			}
		}
		load[e] = float64(blocks)*ev.p.blockHours() - emp.FairnessCredit
		mean += load[e]
	}
	mean /= float64(n)
	variance := 0.0
	for _, l := range load {
		variance += (l - mean) * (l - mean)
	}
	return math.Sqrt(variance / float64(n))
}

// violations lists broken hard constraints. With collect false only the
// count matters and details are left empty.
func (ev *evaluator) violations(c *Chromosome, collect bool) []customerrors.Violation {
	p := ev.p
	var out []customerrors.Violation
	add := func(e, b int, kind, detail string) {
		v := customerrors.Violation{Kind: kind, Block: b}
		if collect {
			v.EmployeeID = p.Employees[e].ID
			v.Detail = detail
		}
		out = append(out, v)
	}
	maxRun := p.Constraints.MaxConsecutiveBlocks
	minRest := p.Constraints.MinRestBlocks

	for e, emp := range p.Employees {
		row := c.row(e)
		run, gap, workedBefore := 0, 0, false
		for b, q := range row {
			if q == Unassigned {
				if run > 0 {
					gap = 0
				}
				run = 0
				gap++
				continue
			}
			if !p.isEligible(e, q) {
				add(e, b, customerrors.ViolationSkill, fmt.Sprintf("lacks skill %s for queue %s", p.Queues[q].Skill, p.Queues[q].QueueID))
			}
			if !p.available[e][b] {
				add(e, b, customerrors.ViolationAvailability, "outside availability window")
			}
			if run == 0 && workedBefore && minRest > 0 && gap < minRest {
				add(e, b, customerrors.ViolationRest, fmt.Sprintf("rest of %d blocks, need %d", gap, minRest))
			}
			run++
			workedBefore = true
			if maxRun > 0 && run > maxRun {
				add(e, b, customerrors.ViolationConsecutive, fmt.Sprintf("%d consecutive blocks, limit %d", run, maxRun))
			}
		}

		if emp.MaxWeeklyHours > 0 {
			hours := emp.ScheduledHours + float64(ev.worked(c, e))*p.blockHours()
			if excess := hours - emp.MaxWeeklyHours; excess > 1e-9 {
				blocks := int(math.Ceil(excess/p.blockHours() - 1e-9))
				for range blocks {
					add(e, -1, customerrors.ViolationWeeklyHours, fmt.Sprintf("%.2f hours, limit %.2f", hours, emp.MaxWeeklyHours))
				}
			}
		}
	}
	return out
}
