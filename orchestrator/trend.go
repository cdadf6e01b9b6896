package orchestrator

import (
	"context"
	"time"

	"staffing-engine/metrics"
	"staffing-engine/models"
)

// trend compares forecast volume in the bucket covering now with the bucket
// covering one block ahead. Missing forecast data reads as steady.
func (e *Engine) trend(ctx context.Context, queueID string, now time.Time) models.Trend {
	if e.forecast == nil {
		return models.TrendSteady
	}
	ahead := now.Add(e.cfg.BlockDuration)
	buckets, err := e.forecast.Forecast(ctx, queueID, now, ahead.Add(time.Nanosecond))
	if err != nil {
		metrics.FeedErrorsTotal.WithLabelValues("forecast").Inc()
		e.logger.Debug().Err(err).Str("queue", queueID).Msg("no forecast for trend")
		return models.TrendSteady
	}
	cur, ok := rateAt(buckets, now)
	if !ok {
		return models.TrendSteady
	}
	next, ok := rateAt(buckets, ahead)
	if !ok {
		return models.TrendSteady
	}
	return classifyTrend(cur, next, e.cfg.TrendThreshold)
}

func classifyTrend(cur, next, threshold float64) models.Trend {
	switch {
	case cur <= 0 && next > 0:
		return models.TrendRising
	case next > cur*(1+threshold):
		return models.TrendRising
	case next < cur*(1-threshold):
		return models.TrendFalling
	default:
		return models.TrendSteady
	}
}

// rateAt returns calls per hour of the bucket covering t.
func rateAt(buckets []models.ForecastBucket, t time.Time) (float64, bool) {
	for _, b := range buckets {
		if b.Covers(t) {
			return b.Rate(), true
		}
	}
	return 0, false
}
