package store

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RunID(t *testing.T) {
	s := New(nil, Options{})
	assert.NotEqual(t, uuid.Nil, s.RunID())

	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	s = New(nil, Options{RunID: id})
	assert.Equal(t, id, s.RunID())
}

func TestOpen_RequiresURL(t *testing.T) {
	_, err := Open(context.Background(), "", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestMigrations_Paired(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		base := strings.TrimPrefix(n, "migrations/")
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			ups[strings.TrimSuffix(base, ".up.sql")] = true
		case strings.HasSuffix(base, ".down.sql"):
			downs[strings.TrimSuffix(base, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", n)
		}
	}
	assert.Equal(t, ups, downs)

	up, err := migrationsFS.ReadFile("migrations/000001_init.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"repositories", "repo_stars", "repo_star_history", "repo_staging"} {
		assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestPromotionStatementsDeduplicate(t *testing.T) {
	for _, stmt := range []string{promoteRepositories, promoteStars, appendHistory} {
		assert.Contains(t, stmt, "DISTINCT ON (repo_id)")
		assert.Contains(t, stmt, "FROM latest")
	}
}
