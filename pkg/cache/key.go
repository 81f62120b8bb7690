package cache

import (
	"strings"
)

// keyPrefix namespaces lookup entries in a shared Redis.
const keyPrefix = "repo-crawler:repo"

// Key identifies a cached repository lookup.
type Key struct {
	Owner string
	Name  string
}

// NewKey returns the key for owner/name.
func NewKey(owner, name string) Key {
	return Key{Owner: owner, Name: name}
}

// String generates the Redis key. GitHub owner and repository names are
// case-insensitive, so the key is lowercased.
//
// Example:
//
//	repo-crawler:repo:octocat/hello-world
func (k Key) String() string {
	return keyPrefix + ":" + strings.ToLower(strings.TrimSpace(k.Owner)) + "/" + strings.ToLower(strings.TrimSpace(k.Name))
}
