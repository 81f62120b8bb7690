// Package cache provides a Redis cache for single-repository lookups.
//
// Lookups by owner/name cost one GraphQL request each. The cache keeps the
// decoded repository node for a fixed TTL so repeated lookups of the same
// repository do not spend rate-limit points:
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 10*time.Minute)
//
//	key := cache.NewKey("octocat", "Hello-World")
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from GitHub, then manager.Set(ctx, key, cache.NewEntry(node, manager.TTL()))
//	}
//
// # Metrics
//
//   - crawler_cache_lookups_total{result} - Reads by hit, miss, expired, invalid
//   - crawler_cache_errors_total{operation} - Redis errors
//   - crawler_cache_entry_bytes - Encoded entry sizes
package cache
