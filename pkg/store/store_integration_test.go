//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/repo-crawler/pkg/repo"
)

// setupPostgres starts a PostgreSQL container and returns a migrated store.
func setupPostgres(t *testing.T) (*Store, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "crawler",
			"POSTGRES_PASSWORD": "crawler",
			"POSTGRES_DB":       "crawler",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://crawler:crawler@%s:%s/crawler?sslmode=disable", host, port.Port())
	s, err := Open(ctx, dsn, Options{RunID: uuid.New()})
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		s.Close()
		container.Terminate(ctx)
	}

	return s, cleanup
}

func records(firstID int64, n, stars int, query string) []repo.Record {
	out := make([]repo.Record, n)
	for i := range out {
		id := firstID + int64(i)
		out[i] = repo.Record{
			ExternalID: id,
			Name:       fmt.Sprintf("owner%d/repo%d", id, id),
			URL:        fmt.Sprintf("https://github.com/owner%d/repo%d", id, id),
			CreatedAt:  time.Date(2016, 1, 1, 12, 0, 0, 0, time.UTC),
			Stars:      stars,
			Query:      query,
		}
	}
	return out
}

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("migrate is idempotent", func(t *testing.T) {
		require.NoError(t, s.Migrate(ctx))
	})

	t.Run("stage and commit", func(t *testing.T) {
		require.NoError(t, s.StageBatch(ctx, records(1, 100, 10, "is:public created:2008-01-01..2016-01-01")))
		require.NoError(t, s.StageBatch(ctx, records(101, 50, 10, "is:public created:2008-01-01..2016-01-01")))

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(150), st.Staged)
		assert.Zero(t, st.Repositories)

		promoted, err := s.Commit(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(150), promoted)

		st, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Repositories: 150, History: 150, Staged: 0}, st)
	})

	t.Run("commit twice with identical content", func(t *testing.T) {
		batch := records(1000, 20, 7, "q")

		require.NoError(t, s.StageBatch(ctx, batch))
		_, err := s.Commit(ctx)
		require.NoError(t, err)

		before, err := s.Stats(ctx)
		require.NoError(t, err)
		first, err := s.Repository(ctx, 1000)
		require.NoError(t, err)

		require.NoError(t, s.StageBatch(ctx, batch))
		_, err = s.Commit(ctx)
		require.NoError(t, err)

		after, err := s.Stats(ctx)
		require.NoError(t, err)
		second, err := s.Repository(ctx, 1000)
		require.NoError(t, err)

		assert.Equal(t, before.Repositories, after.Repositories, "current state must not duplicate")
		assert.Equal(t, before.History+20, after.History, "history grows on every promotion")
		assert.Equal(t, first.FullName, second.FullName)
		assert.Equal(t, first.Stars, second.Stars)
	})

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, s.StageBatch(ctx, records(5000, 1, 3, "q")))
		_, err := s.Commit(ctx)
		require.NoError(t, err)

		renamed := records(5000, 1, 42, "q")
		renamed[0].Name = "new-owner/renamed"
		promoted, err := s.Save(ctx, renamed...)
		require.NoError(t, err)
		assert.Equal(t, int64(1), promoted)

		r, err := s.Repository(ctx, 5000)
		require.NoError(t, err)
		assert.Equal(t, "new-owner/renamed", r.FullName)
		assert.Equal(t, 42, r.Stars)

		history, err := s.StarHistory(ctx, 5000)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 42}, history)
	})

	t.Run("duplicates within staging", func(t *testing.T) {
		// The shared midpoint day of split ranges can stage a repository twice.
		dup := append(records(7000, 2, 1, "left"), records(7000, 1, 2, "right")...)
		promoted, err := s.Save(ctx, dup...)
		require.NoError(t, err)
		assert.Equal(t, int64(2), promoted)

		r, err := s.Repository(ctx, 7000)
		require.NoError(t, err)
		assert.Equal(t, 2, r.Stars, "the most recently staged row wins")

		history, err := s.StarHistory(ctx, 7000)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("commit with empty staging", func(t *testing.T) {
		promoted, err := s.Commit(ctx)
		require.NoError(t, err)
		assert.Zero(t, promoted)
	})

	t.Run("repository not found", func(t *testing.T) {
		_, err := s.Repository(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
