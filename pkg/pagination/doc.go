// Package pagination walks the cursor pagination of one bounded search query.
//
// GitHub search returns at most 100 nodes per page and never more than 1000
// nodes per query. The collector requests pages sequentially, transforms the
// nodes into records, and stages them in fixed-size batches:
//
//	collector := pagination.NewCollector(ghClient, store, throttle, pagination.DefaultConfig())
//	result, err := collector.Collect(ctx, "is:public created:2020-01-01..2020-01-31")
//
// The collector:
//   - Requests the first page with an empty cursor, then follows endCursor
//   - Applies the proactive throttle after every page
//   - Flushes a batch whenever it reaches BatchSize, and the remainder at the end
//   - Stops collecting a query whose page reports a GraphQL error list and keeps
//     what was already staged
//   - Returns executor failures (unauthorized, protocol, retries exhausted) unchanged
package pagination
