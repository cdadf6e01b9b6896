// Package monitor turns live queue telemetry into immutable QueueSnapshots,
// degrading to stale copies and then to forecast-derived snapshots when a
// feed stops answering.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/metrics"
	"staffing-engine/models"

	"github.com/rs/zerolog"
)

// TelemetryFeed returns the latest live record for a queue.
type TelemetryFeed interface {
	Fetch(ctx context.Context, queueID string) (models.Telemetry, error)
}

// ForecastSource returns forecast buckets overlapping [from, to).
type ForecastSource interface {
	Forecast(ctx context.Context, queueID string, from, to time.Time) ([]models.ForecastBucket, error)
}

// Config controls polling timeouts and staleness handling.
type Config struct {
	FeedTimeout     time.Duration
	StaleAfterPolls int
	// MaxAge is the telemetry age beyond which forecast data is used instead.
	MaxAge time.Duration
	// CallsWaitingDelta and LoadDelta define a material change for Probe.
	CallsWaitingDelta int
	LoadDelta         float64
}

// DefaultConfig returns the polling defaults.
func DefaultConfig() Config {
	return Config{
		FeedTimeout:       750 * time.Millisecond,
		StaleAfterPolls:   3,
		MaxAge:            90 * time.Second,
		CallsWaitingDelta: 5,
		LoadDelta:         0.25,
	}
}

// Result is the outcome of one poll across all tracked queues.
type Result struct {
	At        time.Time
	Snapshots []models.QueueSnapshot
	Warnings  []customerrors.StaleDataWarning
	// Failures holds queues for which no snapshot could be produced.
	Failures map[string]error
}

// Change describes the largest telemetry movement seen by Probe.
type Change struct {
	QueueID           string
	CallsWaitingDelta int
	LoadDelta         float64
	Material          bool
}

// Monitor tracks the last published snapshot per queue.
type Monitor struct {
	cfg      Config
	queues   []models.QueueConfig
	feed     TelemetryFeed
	forecast ForecastSource
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.Mutex
	last   map[string]models.QueueSnapshot
	missed map[string]int
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor for queues. forecast may be nil.
func New(cfg Config, queues []models.QueueConfig, feed TelemetryFeed, forecast ForecastSource, logger zerolog.Logger, opts ...Option) *Monitor {
	if cfg.StaleAfterPolls <= 0 {
		cfg.StaleAfterPolls = DefaultConfig().StaleAfterPolls
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = DefaultConfig().FeedTimeout
	}
	m := &Monitor{
		cfg:      cfg,
		queues:   append([]models.QueueConfig(nil), queues...),
		feed:     feed,
		forecast: forecast,
		logger:   logger.With().Str("component", "monitor").Logger(),
		now:      time.Now,
		last:     make(map[string]models.QueueSnapshot),
		missed:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Queues returns the tracked queue definitions.
func (m *Monitor) Queues() []models.QueueConfig {
	return append([]models.QueueConfig(nil), m.queues...)
}

// FeedTimeout returns the bound applied to each feed call.
func (m *Monitor) FeedTimeout() time.Duration {
	return m.cfg.FeedTimeout
}

// Last returns the most recently published snapshot for queueID.
func (m *Monitor) Last(queueID string) (models.QueueSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.last[queueID]
	return s, ok
}

type fetched struct {
	tel models.Telemetry
	err error
}

func (m *Monitor) fetchAll(ctx context.Context) []fetched {
	out := make([]fetched, len(m.queues))
	var wg sync.WaitGroup
	for i, q := range m.queues {
		wg.Go(func() {
			fctx, cancel := context.WithTimeout(ctx, m.cfg.FeedTimeout)
			defer cancel()
			tel, err := m.feed.Fetch(fctx, q.ID)
			if err == nil {
				err = validateTelemetry(tel)
			}
			out[i] = fetched{tel: tel, err: err}
		})
	}
	wg.Wait()
	return out
}

// Poll produces one snapshot per tracked queue.
func (m *Monitor) Poll(ctx context.Context) Result {
	now := m.now()
	res := Result{At: now, Failures: make(map[string]error)}
	results := m.fetchAll(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, q := range m.queues {
		f := results[i]
		prior, hasPrior := m.last[q.ID]

		if f.err == nil {
			age := now.Sub(f.tel.Timestamp)
			if m.cfg.MaxAge <= 0 || age <= m.cfg.MaxAge {
				snap := normalize(q, f.tel)
				m.last[q.ID] = snap
				m.missed[q.ID] = 0
				res.Snapshots = append(res.Snapshots, snap)
				continue
			}
			// too old to trust: go straight to forecast
			m.missed[q.ID] = max(m.missed[q.ID]+1, m.cfg.StaleAfterPolls)
			m.logger.Warn().Str("queue", q.ID).Dur("age", age).Msg("telemetry older than max age")
		} else {
			m.missed[q.ID]++
			metrics.FeedErrorsTotal.WithLabelValues("telemetry").Inc()
			m.logger.Warn().Err(f.err).Str("queue", q.ID).Int("missed", m.missed[q.ID]).Msg("telemetry poll failed")
		}

		missed := m.missed[q.ID]
		age := time.Duration(0)
		if hasPrior {
			age = now.Sub(prior.Timestamp)
		}

		if hasPrior && missed < m.cfg.StaleAfterPolls {
			snap := prior
			snap.Stale = true
			snap.MissedPolls = missed
			snap.Confidence = models.ConfidenceMedium
			m.last[q.ID] = snap
			res.Snapshots = append(res.Snapshots, snap)
			res.Warnings = append(res.Warnings, customerrors.StaleDataWarning{QueueID: q.ID, Age: age, MissedPolls: missed})
			metrics.StaleSnapshotsTotal.WithLabelValues("stale").Inc()
			continue
		}

		snap, err := m.synthesize(ctx, q, now, prior, hasPrior)
		if err == nil {
			snap.MissedPolls = missed
			m.last[q.ID] = snap
			res.Snapshots = append(res.Snapshots, snap)
			res.Warnings = append(res.Warnings, customerrors.StaleDataWarning{QueueID: q.ID, Age: age, MissedPolls: missed, Fallback: true})
			metrics.StaleSnapshotsTotal.WithLabelValues("forecast").Inc()
			continue
		}

		metrics.FeedErrorsTotal.WithLabelValues("forecast").Inc()
		if hasPrior {
			snap := prior
			snap.Stale = true
			snap.MissedPolls = missed
			snap.Confidence = models.ConfidenceLow
			m.last[q.ID] = snap
			res.Snapshots = append(res.Snapshots, snap)
			res.Warnings = append(res.Warnings, customerrors.StaleDataWarning{QueueID: q.ID, Age: age, MissedPolls: missed})
			continue
		}

		cause := f.err
		if cause == nil {
			cause = err
		}
		res.Failures[q.ID] = &customerrors.FeedUnavailable{Feed: "telemetry", QueueID: q.ID, Err: cause}
		m.logger.Error().Err(cause).Str("queue", q.ID).Msg("no snapshot available")
	}
	return res
}

// Probe fetches telemetry without publishing it and reports the largest
// movement relative to the last published snapshots.
func (m *Monitor) Probe(ctx context.Context) Change {
	results := m.fetchAll(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	var best Change
	for i, q := range m.queues {
		f := results[i]
		prior, ok := m.last[q.ID]
		if f.err != nil || !ok {
			continue
		}
		snap := normalize(q, f.tel)
		c := Change{
			QueueID:           q.ID,
			CallsWaitingDelta: absInt(snap.CallsWaiting - prior.CallsWaiting),
			LoadDelta:         math.Abs(snap.ArrivalRate-prior.ArrivalRate) / math.Max(prior.ArrivalRate, 1),
		}
		c.Material = (m.cfg.CallsWaitingDelta > 0 && c.CallsWaitingDelta >= m.cfg.CallsWaitingDelta) ||
			(m.cfg.LoadDelta > 0 && c.LoadDelta >= m.cfg.LoadDelta)

		if c.Material && !best.Material ||
			c.Material == best.Material && (c.CallsWaitingDelta > best.CallsWaitingDelta || c.LoadDelta > best.LoadDelta) {
			best = c
		}
	}
	return best
}

func (m *Monitor) synthesize(ctx context.Context, q models.QueueConfig, now time.Time, prior models.QueueSnapshot, hasPrior bool) (models.QueueSnapshot, error) {
	if m.forecast == nil {
		return models.QueueSnapshot{}, fmt.Errorf("no forecast source")
	}
	fctx, cancel := context.WithTimeout(ctx, m.cfg.FeedTimeout)
	defer cancel()

	buckets, err := m.forecast.Forecast(fctx, q.ID, now, now.Add(time.Minute))
	if err != nil {
		return models.QueueSnapshot{}, err
	}
	bucket, ok := covering(buckets, now)
	if !ok {
		return models.QueueSnapshot{}, fmt.Errorf("no forecast bucket covers %s", now.Format(time.RFC3339))
	}

	snap := models.QueueSnapshot{
		QueueID:            q.ID,
		Timestamp:          now,
		AHT:                bucket.AHT,
		ArrivalRate:        bucket.Rate(),
		TargetServiceLevel: q.TargetServiceLevel,
		TargetAnswerTime:   q.TargetAnswerTime,
		Stale:              true,
		Confidence:         models.ConfidenceForecast,
	}
	if hasPrior {
		snap.AgentsAvailable = prior.AgentsAvailable
		snap.AgentsBusy = prior.AgentsBusy
		snap.AgentsNotReady = prior.AgentsNotReady
		snap.AbandonRate = prior.AbandonRate
		snap.ServiceLevel = prior.ServiceLevel
	}
	return snap, nil
}

func covering(buckets []models.ForecastBucket, at time.Time) (models.ForecastBucket, bool) {
	for _, b := range buckets {
		if b.Covers(at) {
			return b, true
		}
	}
	return models.ForecastBucket{}, false
}

func normalize(q models.QueueConfig, tel models.Telemetry) models.QueueSnapshot {
	snap := models.QueueSnapshot{
		QueueID:            q.ID,
		Timestamp:          tel.Timestamp,
		CallsWaiting:       tel.CallsWaiting,
		AgentsAvailable:    tel.AgentsAvailable,
		AgentsBusy:         tel.AgentsBusy,
		AgentsNotReady:     tel.AgentsNotReady,
		AHT:                tel.AHT,
		AvgWait:            tel.AvgWait,
		ServiceLevel:       1,
		TargetServiceLevel: q.TargetServiceLevel,
		TargetAnswerTime:   q.TargetAnswerTime,
		Confidence:         models.ConfidenceHigh,
	}
	if tel.Interval > 0 {
		snap.ArrivalRate = float64(tel.CallsOffered) / tel.Interval.Hours()
	}
	if tel.CallsOffered > 0 {
		snap.AbandonRate = float64(tel.CallsAbandoned) / float64(tel.CallsOffered)
		snap.ServiceLevel = float64(tel.AnsweredInSL) / float64(tel.CallsOffered)
	}
	return snap
}

func validateTelemetry(tel models.Telemetry) error {
	checks := []struct {
		field string
		value int
	}{
		{"calls_waiting", tel.CallsWaiting},
		{"agents_available", tel.AgentsAvailable},
		{"agents_busy", tel.AgentsBusy},
		{"agents_not_ready", tel.AgentsNotReady},
		{"calls_offered", tel.CallsOffered},
		{"calls_abandoned", tel.CallsAbandoned},
		{"answered_in_sl", tel.AnsweredInSL},
	}
	for _, c := range checks {
		if c.value < 0 {
			return &customerrors.ValidationError{Field: c.field, Value: c.value, Reason: "must not be negative"}
		}
	}
	if tel.AHT < 0 || tel.Interval < 0 {
		return &customerrors.ValidationError{Field: "aht", Value: tel.AHT, Reason: "durations must not be negative"}
	}
	if tel.CallsAbandoned > tel.CallsOffered || tel.AnsweredInSL > tel.CallsOffered {
		return &customerrors.ValidationError{Field: "calls_offered", Value: tel.CallsOffered, Reason: "smaller than abandoned or answered counts"}
	}
	return nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
