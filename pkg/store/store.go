// Package store is the PostgreSQL sink: records are staged in batches and
// promoted into the repositories, repo_stars and repo_star_history tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/repo-crawler/pkg/repo"
)

// ErrNotFound is returned when a repository is not stored.
var ErrNotFound = errors.New("repository not stored")

var (
	stagedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_store_staged_rows_total",
		Help: "Total rows copied into repo_staging",
	})

	promotedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_store_promoted_rows_total",
		Help: "Total staged rows promoted by commits",
	})

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_store_commit_duration_seconds",
		Help:    "Duration of staging promotion transactions",
		Buckets: prometheus.DefBuckets,
	})
)

var stagingColumns = []string{"repo_id", "full_name", "url", "created_at", "stars", "source_query"}

const (
	// Staged duplicates (the shared midpoint day of split ranges) resolve to
	// the most recently staged row.
	latestStaged = `
WITH latest AS (
    SELECT DISTINCT ON (repo_id) repo_id, full_name, url, created_at, stars
    FROM repo_staging
    ORDER BY repo_id, id DESC
)`

	promoteRepositories = latestStaged + `
INSERT INTO repositories (id, full_name, url, created_at, updated_at)
SELECT repo_id, full_name, url, created_at, now()
FROM latest
ON CONFLICT (id) DO UPDATE
SET full_name = EXCLUDED.full_name,
    url = EXCLUDED.url,
    updated_at = now()`

	promoteStars = latestStaged + `
INSERT INTO repo_stars (repo_id, stars, updated_at)
SELECT repo_id, stars, now()
FROM latest
ON CONFLICT (repo_id) DO UPDATE
SET stars = EXCLUDED.stars,
    updated_at = now()`

	appendHistory = latestStaged + `
INSERT INTO repo_star_history (repo_id, stars, recorded_at, run_id)
SELECT repo_id, stars, now(), $1::uuid
FROM latest`

	clearStaging = `TRUNCATE repo_staging`
)

// Options configures a Store.
type Options struct {
	// RunID stamps history rows written by this process.
	RunID uuid.UUID
	// MaxConns bounds the connection pool. Zero keeps the pgxpool default.
	MaxConns int32
}

// Repository is a promoted repository with its current star count.
type Repository struct {
	ID        int64
	FullName  string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
	Stars     int
}

// Stats holds table row counts.
type Stats struct {
	Repositories int64
	History      int64
	Staged       int64
}

// Store writes records to PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	runID  uuid.UUID
	logger zerolog.Logger
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(pool, opts), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts Options) *Store {
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}

	return &Store{
		pool:   pool,
		runID:  runID,
		logger: log.With().Str("component", "store").Str("run_id", runID.String()).Logger(),
	}
}

// RunID returns the id stamped on history rows.
func (s *Store) RunID() uuid.UUID {
	return s.runID
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// StageBatch appends records to the staging table.
func (s *Store) StageBatch(ctx context.Context, records []repo.Record) error {
	if len(records) == 0 {
		return nil
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"repo_staging"},
		stagingColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{r.ExternalID, r.Name, r.URL, r.CreatedAt, r.Stars, r.Query}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy into repo_staging: %w", err)
	}

	stagedRowsTotal.Add(float64(n))
	return nil
}

// Commit promotes every staged row in one transaction: repositories and
// stars are upserted by repository id, one history row is appended per
// promoted repository, and staging is cleared. It returns the number of
// repositories promoted.
func (s *Store) Commit(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() {
		commitDuration.Observe(time.Since(start).Seconds())
	}()

	var promoted int64
	err := s.transaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, promoteRepositories)
		if err != nil {
			return fmt.Errorf("upsert repositories: %w", err)
		}
		promoted = tag.RowsAffected()

		if _, err := tx.Exec(ctx, promoteStars); err != nil {
			return fmt.Errorf("upsert repo_stars: %w", err)
		}
		if _, err := tx.Exec(ctx, appendHistory, s.runID.String()); err != nil {
			return fmt.Errorf("append repo_star_history: %w", err)
		}
		if _, err := tx.Exec(ctx, clearStaging); err != nil {
			return fmt.Errorf("clear repo_staging: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	promotedRowsTotal.Add(float64(promoted))
	s.logger.Debug().
		Int64("promoted", promoted).
		Dur("duration", time.Since(start)).
		Msg("Staging committed")

	return promoted, nil
}

// Save stages records and commits them immediately.
func (s *Store) Save(ctx context.Context, records ...repo.Record) (int64, error) {
	if err := s.StageBatch(ctx, records); err != nil {
		return 0, err
	}
	return s.Commit(ctx)
}

// Repository returns a promoted repository by id.
func (s *Store) Repository(ctx context.Context, id int64) (*Repository, error) {
	var r Repository
	err := s.pool.QueryRow(ctx, `
SELECT r.id, r.full_name, r.url, r.created_at, r.updated_at, COALESCE(s.stars, 0)
FROM repositories r
LEFT JOIN repo_stars s ON s.repo_id = r.id
WHERE r.id = $1`, id).Scan(&r.ID, &r.FullName, &r.URL, &r.CreatedAt, &r.UpdatedAt, &r.Stars)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query repository %d: %w", id, err)
	}
	return &r, nil
}

// StarHistory returns the recorded star counts of a repository, oldest first.
func (s *Store) StarHistory(ctx context.Context, id int64) ([]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stars FROM repo_star_history WHERE repo_id = $1 ORDER BY recorded_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("query star history %d: %w", id, err)
	}
	stars, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("scan star history %d: %w", id, err)
	}
	return stars, nil
}

// Stats returns table row counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
SELECT
    (SELECT count(*) FROM repositories),
    (SELECT count(*) FROM repo_star_history),
    (SELECT count(*) FROM repo_staging)`).Scan(&st.Repositories, &st.History, &st.Staged)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// transaction runs fn in a transaction, rolling back on error.
func (s *Store) transaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
