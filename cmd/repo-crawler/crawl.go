package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/repo-crawler/internal/config"
	"github.com/Sternrassler/repo-crawler/pkg/client"
	"github.com/Sternrassler/repo-crawler/pkg/clock"
	"github.com/Sternrassler/repo-crawler/pkg/crawler"
	"github.com/Sternrassler/repo-crawler/pkg/daterange"
	"github.com/Sternrassler/repo-crawler/pkg/logging"
	"github.com/Sternrassler/repo-crawler/pkg/metrics"
	"github.com/Sternrassler/repo-crawler/pkg/pagination"
	"github.com/Sternrassler/repo-crawler/pkg/ratelimit"
	"github.com/Sternrassler/repo-crawler/pkg/store"
)

// crawlFlags override the loaded configuration when set.
type crawlFlags struct {
	mode        string
	target      int
	batchSize   int
	startDate   string
	metricsAddr string
}

func (f crawlFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Run.Mode = config.Mode(f.mode)
	}
	if flags.Changed("target") {
		cfg.Run.Target = f.target
	}
	if flags.Changed("batch-size") {
		cfg.Run.BatchSize = f.batchSize
	}
	if flags.Changed("start-date") {
		cfg.Run.StartDate = f.startDate
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
}

// Explore the seed range and commit every collected repository.
func crawlCmd(a *app) *cobra.Command {
	var f crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Explore creation-date ranges and store the repositories found.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, a.cfg)
			return a.crawl(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&f.mode, "mode", "", "run mode: preview or full")
	cmd.Flags().IntVar(&f.target, "target", 0, "stop after this many records (0 = no target in full mode)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "records per staged batch")
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "first creation day to explore (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")

	return cmd
}

func (a *app) crawl(ctx context.Context, out io.Writer) error {
	cfg := a.cfg
	if err := cfg.Validate(config.Requirements{Token: true, Database: true}); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seed, err := daterange.Seed(cfg.StartTime(), time.Now())
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.Database.URL, store.Options{RunID: a.runID, MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	gql, err := a.newClient()
	if err != nil {
		return err
	}

	stopMetrics := a.serveMetrics(ctx)
	defer stopMetrics()

	throttle := ratelimit.NewThrottle(clock.New(), logging.NewLogger("throttle"))
	collector := pagination.NewCollector(gql, st, throttle, pagination.Config{
		BatchSize: cfg.Run.BatchSize,
		PageSize:  client.PageSize,
	})
	scheduler := crawler.NewScheduler(seed, gql, collector, st, throttle, crawler.Config{
		Target:    cfg.EffectiveTarget(),
		Ceiling:   cfg.Run.Ceiling,
		Qualifier: cfg.Run.Qualifier,
	})

	log.Info().
		Str("mode", string(cfg.Run.Mode)).
		Str("seed", seed.String()).
		Int("target", cfg.EffectiveTarget()).
		Msg("Starting crawl")

	m, err := scheduler.Run(ctx)
	printSummary(out, m)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "repositories stored: %d, history rows: %d\n", stats.Repositories, stats.History)
	return nil
}

// serveMetrics starts the metrics server when an address is configured and
// returns a function that stops it and waits for shutdown.
func (a *app) serveMetrics(ctx context.Context) func() {
	if a.cfg.Metrics.Addr == "" {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr); err != nil {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func printSummary(out io.Writer, m crawler.RunMetrics) {
	fmt.Fprintf(out, "collected: %d\n", m.Collected)
	fmt.Fprintf(out, "calls: %d (probes %d)\n", m.TotalCalls, m.Probes)
	fmt.Fprintf(out, "cost units: %d\n", m.TotalCostUnits)
	fmt.Fprintf(out, "efficiency: %.2f records/unit\n", m.Efficiency())
	fmt.Fprintf(out, "ranges: %d split, %d skipped, %d forced, %d committed\n", m.Splits, m.Skips, m.Forced, m.Commits)
	if m.LastKnownRemaining >= 0 {
		fmt.Fprintf(out, "rate limit remaining: %d\n", m.LastKnownRemaining)
	}
}
