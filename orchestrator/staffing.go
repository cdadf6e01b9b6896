package orchestrator

import (
	"math"
	"sync"
	"time"

	"staffing-engine/erlang"
	"staffing-engine/metrics"
	"staffing-engine/models"
)

type staffed struct {
	req models.StaffingRequirement
	err error
}

// staff evaluates every snapshot on a fixed pool of workers. Results keep
// snapshot order; one queue's failure does not affect the others.
func (e *Engine) staff(snaps []models.QueueSnapshot, queues map[string]models.QueueConfig) []staffed {
	out := make([]staffed, len(snaps))
	jobs := make(chan int)
	workers := min(e.cfg.Workers, len(snaps))

	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for i := range jobs {
				begin := time.Now()
				req, err := e.model.Required(staffingInput(snaps[i], queues[snaps[i].QueueID], e.cfg.BlockDuration))
				metrics.StaffingDurationSeconds.Observe(time.Since(begin).Seconds())
				out[i] = staffed{req: req, err: err}
			}
		})
	}
	for i := range snaps {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

// staffingInput sizes the current block. Calls already waiting are spread
// over the block on top of the arrival rate so the backlog drains by its end.
func staffingInput(s models.QueueSnapshot, q models.QueueConfig, block time.Duration) erlang.Input {
	aht := s.AHT
	if aht <= 0 {
		aht = q.DefaultAHT
	}
	rate := s.ArrivalRate
	if s.CallsWaiting > 0 && block > 0 {
		rate += float64(s.CallsWaiting) / block.Hours()
	}
	in := erlang.Input{
		QueueID:            s.QueueID,
		ArrivalRate:        rate,
		AHT:                aht,
		TargetServiceLevel: s.TargetServiceLevel,
		TargetAnswerTime:   s.TargetAnswerTime,
		Patience:           q.Patience,
		Confidence:         s.Confidence,
	}
	if q.Patience <= 0 {
		in.AbandonRate = s.AbandonRate
	}
	// a forecast snapshot without a handle time and no queue default has no load to size
	if aht <= 0 && rate == 0 {
		in.AHT = time.Second
	}
	// everyone hanging up says nothing about the load; size for full demand
	if math.IsNaN(in.AbandonRate) || in.AbandonRate >= 1 {
		in.AbandonRate = 0
	}
	return in
}
