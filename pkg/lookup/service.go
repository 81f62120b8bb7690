// Package lookup resolves single repositories by owner/name through the
// GraphQL lookup query, with an optional Redis cache in front.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/repo-crawler/pkg/cache"
	"github.com/Sternrassler/repo-crawler/pkg/client"
	"github.com/Sternrassler/repo-crawler/pkg/ratelimit"
)

// Fetcher looks up one repository. Implemented by *client.Client.
type Fetcher interface {
	Repository(ctx context.Context, owner, name string) (*client.RepositoryNode, *ratelimit.Snapshot, error)
}

// Cache stores lookup results. Implemented by *cache.Manager.
type Cache interface {
	Get(ctx context.Context, key cache.Key) (*cache.Entry, error)
	Set(ctx context.Context, key cache.Key, entry *cache.Entry) error
	TTL() time.Duration
}

// Result is a resolved repository.
type Result struct {
	Repository client.RepositoryNode
	// Cached is set when the result came from the cache.
	Cached bool
	// RateLimit is the snapshot of the remote call, nil when cached.
	RateLimit *ratelimit.Snapshot
}

// Service resolves repositories.
type Service struct {
	fetcher Fetcher
	cache   Cache
	logger  zerolog.Logger
}

// New creates a lookup service. A nil cache disables caching.
func New(fetcher Fetcher, c Cache) *Service {
	return &Service{
		fetcher: fetcher,
		cache:   c,
		logger:  log.With().Str("component", "lookup").Logger(),
	}
}

// ParseFullName splits "owner/name".
func ParseFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q: want OWNER/NAME", fullName)
	}
	return owner, name, nil
}

// Get returns the repository owner/name. Cache failures are logged and the
// lookup falls back to the remote call.
func (s *Service) Get(ctx context.Context, owner, name string) (*Result, error) {
	key := cache.NewKey(owner, name)

	if s.cache != nil {
		entry, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			s.logger.Debug().Str("key", key.String()).Msg("Cache hit")
			return &Result{Repository: entry.Repository, Cached: true}, nil
		case errors.Is(err, cache.ErrCacheMiss):
			s.logger.Debug().Str("key", key.String()).Msg("Cache miss")
		default:
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache read failed, fetching directly")
		}
	}

	node, snap, err := s.fetcher.Repository(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("lookup %s/%s: %w", owner, name, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cache.NewEntry(*node, s.cache.TTL())); err != nil {
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache write failed")
		}
	}

	return &Result{Repository: *node, RateLimit: snap}, nil
}
