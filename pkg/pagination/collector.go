package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/repo-crawler/pkg/client"
	"github.com/Sternrassler/repo-crawler/pkg/ratelimit"
	"github.com/Sternrassler/repo-crawler/pkg/repo"
)

var (
	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_total",
		Help: "Total search pages fetched by the collector",
	})

	recordsStagedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_records_staged_total",
		Help: "Total records handed to the staging sink",
	})

	abortedQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_aborted_queries_total",
		Help: "Total queries whose collection stopped on a GraphQL error list",
	})
)

// Config holds collector configuration.
type Config struct {
	// BatchSize is the flush threshold for staged records.
	BatchSize int
	// PageSize is the number of nodes requested per page (max 100).
	PageSize int
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize: 100,
		PageSize:  client.PageSize,
	}
}

// Searcher fetches one page of a search. Implemented by *client.Client.
type Searcher interface {
	Search(ctx context.Context, query, cursor string, first int) (*client.SearchPage, error)
}

// Stager accepts a batch of records. Implemented by *store.Store.
type Stager interface {
	StageBatch(ctx context.Context, records []repo.Record) error
}

// Throttler applies the proactive slowdown for a rate-limit snapshot.
// Implemented by *ratelimit.Throttle.
type Throttler interface {
	Apply(ctx context.Context, snap *ratelimit.Snapshot) error
}

// Result summarizes the collection of one query.
type Result struct {
	// Records is the number of records staged.
	Records int
	// Pages is the number of search calls made.
	Pages int
	// Aborted is set when a page reported GraphQL errors.
	Aborted bool
	// LastRateLimit is the snapshot of the most recent page, if any.
	LastRateLimit *ratelimit.Snapshot
}

// Collector drives cursor pagination for one query at a time.
type Collector struct {
	searcher  Searcher
	stager    Stager
	throttler Throttler
	config    Config
	logger    zerolog.Logger
}

// NewCollector creates a new collector. A nil throttler disables the
// proactive slowdown.
func NewCollector(searcher Searcher, stager Stager, throttler Throttler, config Config) *Collector {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PageSize <= 0 || config.PageSize > client.PageSize {
		config.PageSize = client.PageSize
	}

	return &Collector{
		searcher:  searcher,
		stager:    stager,
		throttler: throttler,
		config:    config,
		logger:    log.With().Str("component", "collector").Logger(),
	}
}

// Collect pages through query and stages every record. It returns the
// number of records staged, including those staged before an abort.
func (c *Collector) Collect(ctx context.Context, query string) (Result, error) {
	start := time.Now()
	batch := make([]repo.Record, 0, c.config.BatchSize)
	var res Result

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.stager.StageBatch(ctx, batch); err != nil {
			return fmt.Errorf("stage batch of %d: %w", len(batch), err)
		}
		res.Records += len(batch)
		recordsStagedTotal.Add(float64(len(batch)))
		c.logger.Debug().
			Str("query", query).
			Int("batch", len(batch)).
			Int("staged", res.Records).
			Msg("Batch staged")
		batch = make([]repo.Record, 0, c.config.BatchSize)
		return nil
	}

	cursor := ""
	for {
		page, err := c.searcher.Search(ctx, query, cursor, c.config.PageSize)
		if err != nil {
			return res, fmt.Errorf("search page %d: %w", res.Pages+1, err)
		}
		res.Pages++
		pagesTotal.Inc()
		if page.RateLimit != nil {
			res.LastRateLimit = page.RateLimit
		}

		if c.throttler != nil {
			if err := c.throttler.Apply(ctx, page.RateLimit); err != nil {
				return res, err
			}
		}

		if len(page.Errors) > 0 {
			res.Aborted = true
			abortedQueriesTotal.Inc()
			c.logger.Warn().
				Str("query", query).
				Int("page", res.Pages).
				Err(&client.RemoteError{Errors: page.Errors}).
				Msg("GraphQL errors reported, stopping collection for query")
			break
		}

		if len(page.Nodes) == 0 {
			break
		}

		for _, rec := range repo.FromNodes(page.Nodes, query) {
			batch = append(batch, rec)
			if len(batch) >= c.config.BatchSize {
				if err := flush(); err != nil {
					return res, err
				}
			}
		}

		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			break
		}
		cursor = page.PageInfo.EndCursor
	}

	if err := flush(); err != nil {
		return res, err
	}

	c.logger.Info().
		Str("query", query).
		Int("records", res.Records).
		Int("pages", res.Pages).
		Bool("aborted", res.Aborted).
		Dur("duration", time.Since(start)).
		Msg("Collection complete")

	return res, nil
}
