package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/repo-crawler/pkg/clock"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_rate_limit_remaining",
		Help: "Points remaining in the current GitHub GraphQL rate limit window",
	})

	proactiveThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_proactive_throttles_total",
		Help: "Total number of proactive pauses taken because remaining quota was low",
	})
)

// Throttle is the proactive slowdown hook applied after every successful
// probe and every collected page.
type Throttle struct {
	clock    clock.Clock
	logger   zerolog.Logger
	lowWater int
	pause    time.Duration
}

// NewThrottle creates a throttle using LowWaterMark and ProactivePause.
func NewThrottle(c clock.Clock, logger zerolog.Logger) *Throttle {
	return &Throttle{
		clock:    c,
		logger:   logger,
		lowWater: LowWaterMark,
		pause:    ProactivePause,
	}
}

// Apply pauses when the snapshot reports remaining quota below the low-water
// mark. A nil snapshot is a no-op.
func (t *Throttle) Apply(ctx context.Context, s *Snapshot) error {
	if s == nil {
		return nil
	}

	rateLimitRemaining.Set(float64(s.Remaining))

	if s.Remaining >= t.lowWater {
		return nil
	}

	t.logger.Info().
		Int("remaining", s.Remaining).
		Time("reset_at", s.ResetAt).
		Dur("pause", t.pause).
		Msg("Proactive throttle")

	proactiveThrottlesTotal.Inc()
	return t.clock.Sleep(ctx, t.pause)
}
