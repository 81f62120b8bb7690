package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when the manager is created with a non-positive TTL.
const DefaultTTL = 10 * time.Minute

var (
	// ErrCacheMiss is returned by Get when nothing usable is cached.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned by Get for payloads that do not decode to a repository.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores repository lookups in Redis. Entries expire through Redis
// key expiry.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager returns a manager writing entries with the given TTL
// (DefaultTTL when ttl is not positive).
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// TTL returns the lifetime given to new entries.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Ping checks the Redis connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}

// Get returns the entry stored under key. A missing, expired or stale entry
// is reported as ErrCacheMiss; an undecodable one as ErrInvalidEntry.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		lookupsTotal.WithLabelValues(resultMiss).Inc()
		return nil, ErrCacheMiss
	case err != nil:
		errorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Repository.DatabaseID == 0 {
		lookupsTotal.WithLabelValues(resultInvalid).Inc()
		if err == nil {
			err = errors.New("entry has no repository")
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry normally removes the key first; this covers clock skew
	// between writer and reader.
	if entry.IsExpired() {
		lookupsTotal.WithLabelValues(resultExpired).Inc()
		_ = m.Delete(ctx, key)
		return nil, ErrCacheMiss
	}

	lookupsTotal.WithLabelValues(resultHit).Inc()
	return &entry, nil
}

// Set stores entry under key until the entry expires. Entries that already
// expired are dropped silently.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		errorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	entryBytes.Observe(float64(len(data)))

	return nil
}

// Delete removes the entry stored under key.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		errorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
