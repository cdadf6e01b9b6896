package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/metrics"

	"github.com/rs/zerolog"
)

// DriverConfig sets cycle timing.
type DriverConfig struct {
	Cadence time.Duration
	// MinRetrigger is the least time between cycle starts for early triggers.
	MinRetrigger time.Duration
	// ProbeInterval is how often telemetry is probed for material change. Zero disables probing.
	ProbeInterval time.Duration
}

// Driver runs cycles on a fixed cadence and on early triggers. An early
// trigger cancels the cycle in flight, which then publishes nothing. A cadence
// tick that lands while a cycle is still running is skipped.
type Driver struct {
	engine  *Engine
	cfg     DriverConfig
	logger  zerolog.Logger
	trigger chan struct{}
	now     func() time.Time
}

// NewDriver creates a Driver for engine.
func NewDriver(engine *Engine, cfg DriverConfig, logger zerolog.Logger) *Driver {
	if cfg.Cadence <= 0 {
		cfg.Cadence = time.Minute
	}
	return &Driver{
		engine:  engine,
		cfg:     cfg,
		logger:  logger.With().Str("component", "driver").Logger(),
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Trigger requests an early cycle. It never blocks; triggers arriving
// within MinRetrigger of the last cycle start are dropped.
func (d *Driver) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Run starts a cycle immediately and then keeps cycling until ctx is done.
// It waits for the in-flight cycle to stop before returning.
func (d *Driver) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	cancel := context.CancelFunc(func() {})
	var lastStart time.Time
	var done chan struct{}

	inFlight := func() bool {
		if done == nil {
			return false
		}
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	start := func(reason string) {
		cancel()
		cctx, c := context.WithCancel(ctx)
		cancel = c
		lastStart = d.now()
		finished := make(chan struct{})
		done = finished
		d.logger.Debug().Str("reason", reason).Msg("starting cycle")
		wg.Go(func() {
			defer close(finished)
			if _, err := d.engine.RunCycle(cctx); err != nil && !errors.Is(err, customerrors.ErrCycleSuperseded) {
				d.logger.Error().Err(err).Str("reason", reason).Msg("cycle failed")
			}
		})
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	d.logger.Info().
		Dur("cadence", d.cfg.Cadence).
		Dur("min_retrigger", d.cfg.MinRetrigger).
		Dur("probe_interval", d.cfg.ProbeInterval).
		Msg("driver started")
	start("startup")

	cadence := time.NewTicker(d.cfg.Cadence)
	defer cadence.Stop()
	var probe <-chan time.Time
	if d.cfg.ProbeInterval > 0 {
		t := time.NewTicker(d.cfg.ProbeInterval)
		defer t.Stop()
		probe = t.C
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("driver stopped")
			return nil
		case <-cadence.C:
			if inFlight() {
				metrics.CyclesTotal.WithLabelValues("skipped").Inc()
				d.logger.Warn().Dur("cadence", d.cfg.Cadence).Msg("cycle still running, cadence tick skipped")
				continue
			}
			start("cadence")
		case <-d.trigger:
			if since := d.now().Sub(lastStart); since < d.cfg.MinRetrigger {
				d.logger.Debug().Dur("since_last", since).Msg("trigger dropped")
				continue
			}
			start("trigger")
		case <-probe:
			if d.now().Sub(lastStart) < d.cfg.MinRetrigger {
				continue
			}
			change := d.engine.monitor.Probe(ctx)
			if !change.Material {
				continue
			}
			d.logger.Info().
				Str("queue", change.QueueID).
				Int("calls_waiting_delta", change.CallsWaitingDelta).
				Float64("load_delta", change.LoadDelta).
				Msg("material change")
			start("material change")
		}
	}
}
