package cache

import (
	"time"

	"github.com/Sternrassler/repo-crawler/pkg/client"
)

// Entry is a cached repository lookup.
type Entry struct {
	// Repository is the node returned by the lookup query
	Repository client.RepositoryNode `json:"repository"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this lookup
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry returns an entry for node that expires after ttl.
func NewEntry(node client.RepositoryNode, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Repository: node,
		Expires:    now.Add(ttl),
		CachedAt:   now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
