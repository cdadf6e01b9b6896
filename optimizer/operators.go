package optimizer

import (
	"math"
	"math/rand"
)

// randomChromosome seeds one employee shift at a time: each employee gets at
// most one contiguous stretch on one eligible queue inside availability.
func randomChromosome(p *Problem, rng *rand.Rand, maxRun int) *Chromosome {
	c := NewChromosome(p)
	blocks := p.Horizon.Blocks
	if maxRun <= 0 || maxRun > blocks {
		maxRun = blocks
	}
	for e := range p.Employees {
		options := p.eligible[e]
		if len(options) == 0 || rng.Float64() < 0.3 {
			continue
		}
		q := options[rng.Intn(len(options))]
		length := 1 + rng.Intn(maxRun)
		start := rng.Intn(blocks)
		for b := start; b < start+length && b < blocks; b++ {
			if p.available[e][b] {
				c.Set(e, b, q)
			}
		}
	}
	return c
}

// tournament returns the index of the fittest of k random entrants.
func tournament(rng *rand.Rand, scores []Score, k int) int {
	best := rng.Intn(len(scores))
	for i := 1; i < k; i++ {
		j := rng.Intn(len(scores))
		if scores[j].Fitness > scores[best].Fitness {
			best = j
		}
	}
	return best
}

// crossover swaps a contiguous block range between the parents for a random
// subset of employees.
func crossover(rng *rand.Rand, a, b *Chromosome, employees int) (*Chromosome, *Chromosome) {
	x, y := a.Clone(), b.Clone()
	lo := rng.Intn(a.blocks)
	hi := lo + 1 + rng.Intn(a.blocks-lo)
	for e := range employees {
		if rng.Intn(2) == 0 {
			continue
		}
		rx, ry := x.row(e), y.row(e)
		for blk := lo; blk < hi; blk++ {
			rx[blk], ry[blk] = ry[blk], rx[blk]
		}
	}
	return x, y
}

// mutate reassigns each gene with probability rate to another eligible queue
// or to Unassigned.
func mutate(rng *rand.Rand, p *Problem, c *Chromosome, rate float64) {
	for e := range p.Employees {
		options := p.eligible[e]
		row := c.row(e)
		for b := range row {
			if rng.Float64() >= rate {
				continue
			}
			// choices are options plus Unassigned, minus the current value
			choice := rng.Intn(len(options) + 1)
			next := Unassigned
			if choice < len(options) {
				next = options[choice]
			}
			if next == row[b] {
				if len(options) == 0 {
					continue
				}
				choice = (choice + 1) % (len(options) + 1)
				next = Unassigned
				if choice < len(options) {
					next = options[choice]
				}
			}
			row[b] = next
		}
	}
}

// annealedRate decays the mutation rate geometrically toward floor.
func annealedRate(initial, floor, decay float64, generation int) float64 {
	if decay <= 0 || decay >= 1 {
		return initial
	}
	return math.Max(floor, initial*math.Pow(decay, float64(generation)))
}
