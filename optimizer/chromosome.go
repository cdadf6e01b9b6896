package optimizer

import (
	"fmt"

	customerrors "staffing-engine/errors"
	"staffing-engine/models"
)

// Unassigned marks a gene with no queue.
const Unassigned = -1

// Chromosome is one candidate schedule: a gene per (employee, block) holding
// a queue index into Problem.Queues or Unassigned. Because each employee has
// exactly one gene per block, overlapping assignments cannot be expressed.
type Chromosome struct {
	genes  []int
	blocks int
}

// NewChromosome returns an all-unassigned chromosome for p.
func NewChromosome(p *Problem) *Chromosome {
	c := &Chromosome{
		genes:  make([]int, len(p.Employees)*p.Horizon.Blocks),
		blocks: p.Horizon.Blocks,
	}
	for i := range c.genes {
		c.genes[i] = Unassigned
	}
	return c
}

// Gene returns the queue index for employee e in block b.
func (c *Chromosome) Gene(e, b int) int {
	return c.genes[e*c.blocks+b]
}

// Set assigns employee e in block b to queue index q.
func (c *Chromosome) Set(e, b, q int) {
	c.genes[e*c.blocks+b] = q
}

// Clone returns an independent copy.
func (c *Chromosome) Clone() *Chromosome {
	return &Chromosome{genes: append([]int(nil), c.genes...), blocks: c.blocks}
}

// Equal reports whether both chromosomes hold identical genes.
func (c *Chromosome) Equal(o *Chromosome) bool {
	if c.blocks != o.blocks || len(c.genes) != len(o.genes) {
		return false
	}
	for i := range c.genes {
		if c.genes[i] != o.genes[i] {
			return false
		}
	}
	return true
}

func (c *Chromosome) row(e int) []int {
	return c.genes[e*c.blocks : (e+1)*c.blocks]
}

// Encode builds a chromosome from block-aligned assignments.
func Encode(p *Problem, assignments []models.ScheduleAssignment) (*Chromosome, error) {
	if p.empIndex == nil {
		if err := p.Prepare(); err != nil {
			return nil, err
		}
	}
	c := NewChromosome(p)
	for _, a := range assignments {
		e, ok := p.empIndex[a.EmployeeID]
		if !ok {
			return nil, &customerrors.ValidationError{Field: "employee_id", Value: a.EmployeeID, Reason: "not in roster"}
		}
		q, ok := p.queueIndex(a.QueueID, a.Skill)
		if !ok {
			return nil, &customerrors.ValidationError{Field: "queue_id", Value: a.QueueID + "/" + a.Skill, Reason: "not in problem"}
		}
		from, okFrom := p.Horizon.BlockOf(a.Start)
		to, okTo := p.Horizon.BlockOf(a.End)
		if !okFrom || !okTo || to <= from {
			return nil, &customerrors.ValidationError{Field: "assignment", Value: a.EmployeeID, Reason: "not aligned to planning blocks"}
		}
		for b := from; b < to; b++ {
			if c.Gene(e, b) != Unassigned {
				return nil, &customerrors.ValidationError{Field: "assignment", Value: a.EmployeeID, Reason: fmt.Sprintf("overlaps block %d", b)}
			}
			c.Set(e, b, q)
		}
	}
	return c, nil
}

// Decode converts a chromosome into assignments, merging adjacent blocks on
// the same queue. Output is ordered by roster position then start time.
func Decode(p *Problem, c *Chromosome) []models.ScheduleAssignment {
	var out []models.ScheduleAssignment
	for e, emp := range p.Employees {
		row := c.row(e)
		for b := 0; b < len(row); {
			q := row[b]
			if q == Unassigned {
				b++
				continue
			}
			end := b + 1
			for end < len(row) && row[end] == q {
				end++
			}
			out = append(out, models.ScheduleAssignment{
				EmployeeID: emp.ID,
				QueueID:    p.Queues[q].QueueID,
				Skill:      p.Queues[q].Skill,
				Start:      p.Horizon.BlockStart(b),
				End:        p.Horizon.BlockStart(end),
			})
			b = end
		}
	}
	return out
}
