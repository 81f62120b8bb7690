// Package crawler implements the exploration scheduler: a FIFO queue of date
// ranges that are probed, bisected while over the search ceiling, and
// collected once they fit.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/repo-crawler/pkg/client"
	"github.com/Sternrassler/repo-crawler/pkg/daterange"
	"github.com/Sternrassler/repo-crawler/pkg/pagination"
	"github.com/Sternrassler/repo-crawler/pkg/ratelimit"
)

// DefaultCeiling is the number of results one search query can enumerate.
const DefaultCeiling = 1000

// ErrQueueEmpty is returned by Step when no range is left.
var ErrQueueEmpty = errors.New("exploration queue is empty")

// Estimator probes the cardinality of a query. Implemented by *client.Client.
type Estimator interface {
	Estimate(ctx context.Context, query string) (client.Estimate, error)
}

// Collector paginates one query. Implemented by *pagination.Collector.
type Collector interface {
	Collect(ctx context.Context, query string) (pagination.Result, error)
}

// Committer promotes staged records. Implemented by *store.Store.
type Committer interface {
	Commit(ctx context.Context) (int64, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Target stops the run once this many records were collected. Zero or
	// negative means no target.
	Target int
	// Ceiling is the largest estimate collected without splitting.
	Ceiling int
	// Qualifier prefixes every range query.
	Qualifier string
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Target:    0,
		Ceiling:   DefaultCeiling,
		Qualifier: daterange.DefaultQualifier,
	}
}

// Scheduler explores ranges one at a time.
type Scheduler struct {
	estimator Estimator
	collector Collector
	committer Committer
	throttler pagination.Throttler
	config    Config
	queue     *Queue
	recorder  *StateRecorder
	logger    zerolog.Logger
}

// NewScheduler creates a scheduler whose queue holds seed. A nil throttler
// disables the proactive slowdown after probes.
func NewScheduler(seed daterange.Range, estimator Estimator, collector Collector, committer Committer, throttler pagination.Throttler, config Config) *Scheduler {
	if config.Ceiling <= 0 {
		config.Ceiling = DefaultCeiling
	}

	return &Scheduler{
		estimator: estimator,
		collector: collector,
		committer: committer,
		throttler: throttler,
		config:    config,
		queue:     NewQueue(seed),
		logger:    log.With().Str("component", "scheduler").Logger(),
	}
}

// SetRecorder records every state entered from now on.
func (s *Scheduler) SetRecorder(r *StateRecorder) {
	s.recorder = r
}

// Pending returns the number of queued ranges.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Done reports whether the run is over: the queue is empty or the target
// has been reached.
func (s *Scheduler) Done(m RunMetrics) bool {
	if s.queue.Len() == 0 {
		return true
	}
	return s.config.Target > 0 && m.Collected >= s.config.Target
}

func (s *Scheduler) enter(state State, r daterange.Range) {
	if s.recorder != nil {
		s.recorder.Record(state)
	}
	s.logger.Debug().
		Str("state", state.String()).
		Str("range", r.String()).
		Msg("State transition")
}

// Step pops one range and drives it to a terminal decision: split, collect
// or skip. It returns the updated metrics.
func (s *Scheduler) Step(ctx context.Context, m RunMetrics) (RunMetrics, error) {
	r, ok := s.queue.Pop()
	if !ok {
		return m, ErrQueueEmpty
	}
	defer func() { queueDepth.Set(float64(s.queue.Len())) }()

	query := r.Query(s.config.Qualifier)

	s.enter(StateProbing, r)
	est, err := s.estimator.Estimate(ctx, query)
	if err != nil {
		return m, fmt.Errorf("probe %s: %w", r, err)
	}
	m.Probes++
	m.TotalCalls++
	m = observeRateLimit(m, est.RateLimit)
	if err := s.throttle(ctx, est.RateLimit); err != nil {
		return m, err
	}

	s.enter(StateDeciding, r)
	s.logger.Info().
		Str("range", r.String()).
		Int("estimate", est.Count).
		Int("queued", s.queue.Len()).
		Msg("Range probed")

	forced := false
	switch {
	case est.Count == 0:
		s.enter(StateSkipping, r)
		m.Skips++
		rangesTotal.WithLabelValues("skipped").Inc()
		return m, nil

	case est.Count > s.config.Ceiling:
		s.enter(StateSplitting, r)
		left, right, ok := r.Split()
		if ok {
			s.queue.PushFront(left, right)
			m.Splits++
			rangesTotal.WithLabelValues("split").Inc()
			s.logger.Info().
				Str("range", r.String()).
				Str("left", left.String()).
				Str("right", right.String()).
				Int("estimate", est.Count).
				Msg("Range split")
			return m, nil
		}

		forced = true
		m.Forced++
		s.logger.Warn().
			Str("range", r.String()).
			Int("estimate", est.Count).
			Int("ceiling", s.config.Ceiling).
			Msg("Range cannot be split further, collecting best effort")
	}

	s.enter(StateCollecting, r)
	return s.collect(ctx, m, r, query, forced)
}

func (s *Scheduler) collect(ctx context.Context, m RunMetrics, r daterange.Range, query string, forced bool) (RunMetrics, error) {
	res, err := s.collector.Collect(ctx, query)
	m.TotalCalls += res.Pages
	m = observeRateLimit(m, res.LastRateLimit)
	if err != nil {
		return m, fmt.Errorf("collect %s: %w", r, err)
	}

	promoted, err := s.committer.Commit(ctx)
	if err != nil {
		return m, fmt.Errorf("commit %s: %w", r, err)
	}
	m.Commits++

	units := costUnits(res.Records, forced)
	m.Collected += res.Records
	m.TotalCostUnits += units

	collectedTotal.Add(float64(res.Records))
	costUnitsTotal.Add(float64(units))
	if forced {
		rangesTotal.WithLabelValues("forced").Inc()
	} else {
		rangesTotal.WithLabelValues("collected").Inc()
	}

	s.logger.Info().
		Str("range", r.String()).
		Int("records", res.Records).
		Int64("promoted", promoted).
		Int("pages", res.Pages).
		Bool("aborted", res.Aborted).
		Int("collected", m.Collected).
		Msg("Range committed")

	return m, nil
}

func (s *Scheduler) throttle(ctx context.Context, snap *ratelimit.Snapshot) error {
	if s.throttler == nil {
		return nil
	}
	return s.throttler.Apply(ctx, snap)
}

func observeRateLimit(m RunMetrics, snap *ratelimit.Snapshot) RunMetrics {
	if snap != nil {
		m.LastKnownRemaining = snap.Remaining
	}
	return m
}

// Run steps until Done and logs a summary. On error the metrics gathered so
// far are returned with it.
func (s *Scheduler) Run(ctx context.Context) (RunMetrics, error) {
	start := time.Now()
	m := NewRunMetrics()

	s.logger.Info().
		Int("target", s.config.Target).
		Int("ceiling", s.config.Ceiling).
		Int("queued", s.queue.Len()).
		Msg("Exploration started")

	var err error
	for !s.Done(m) {
		m, err = s.Step(ctx, m)
		if err != nil {
			break
		}
	}

	s.summarize(m, time.Since(start), err)
	return m, err
}

func (s *Scheduler) summarize(m RunMetrics, elapsed time.Duration, err error) {
	event := s.logger.Info()
	msg := "Exploration finished"
	switch {
	case err != nil:
		event = s.logger.Error().Err(err)
		msg = "Exploration failed"
	case s.config.Target > 0 && m.Collected >= s.config.Target:
		msg = "Exploration reached target"
	}

	event.
		Int("collected", m.Collected).
		Int("total_calls", m.TotalCalls).
		Int("cost_units", m.TotalCostUnits).
		Float64("efficiency", m.Efficiency()).
		Int("last_remaining", m.LastKnownRemaining).
		Int("probes", m.Probes).
		Int("splits", m.Splits).
		Int("skips", m.Skips).
		Int("forced", m.Forced).
		Int("commits", m.Commits).
		Int("pending", s.queue.Len()).
		Dur("duration", elapsed).
		Msg(msg)
}
