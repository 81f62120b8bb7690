// Package metrics exposes the crawler's Prometheus metrics over HTTP.
// Collectors are defined in their respective packages (client, ratelimit,
// pagination, crawler, store, cache) and registered via promauto.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the registerer all crawler metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served on /metrics.
var Gatherer = prometheus.DefaultGatherer

const shutdownTimeout = 5 * time.Second

// NewMux returns a handler serving /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting metrics server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	log.Info().Msg("Metrics server stopped")
	return nil
}

// Metrics Documentation
//
// GraphQL client (pkg/client):
//   - crawler_graphql_requests_total{status} (Counter): attempts by HTTP status
//   - crawler_graphql_request_duration_seconds (Histogram): attempt duration
//   - crawler_graphql_errors_total{class} (Counter): failed attempts by class
//   - crawler_graphql_retries_total{error_class} (Counter): retries
//   - crawler_graphql_retry_backoff_seconds{error_class} (Histogram): backoff waits
//   - crawler_graphql_retry_exhausted_total{error_class} (Counter): exhausted calls
//
// Rate limit (pkg/ratelimit):
//   - crawler_rate_limit_remaining (Gauge): points left in the window
//   - crawler_proactive_throttles_total (Counter): proactive pauses
//
// Collection (pkg/pagination, pkg/crawler):
//   - crawler_pages_total, crawler_records_staged_total, crawler_aborted_queries_total
//   - crawler_ranges_total{outcome}, crawler_queue_depth
//   - crawler_records_collected_total, crawler_cost_units_total
//
// Store (pkg/store):
//   - crawler_store_staged_rows_total, crawler_store_promoted_rows_total
//   - crawler_store_commit_duration_seconds
//
// Cache (pkg/cache):
//   - crawler_cache_lookups_total{result}, crawler_cache_errors_total{operation}
//   - crawler_cache_entry_bytes
//
// Example Prometheus Queries:
//
//   # Collection efficiency
//   rate(crawler_records_collected_total[15m]) / rate(crawler_cost_units_total[15m])
//
//   # Retry pressure by class
//   sum by (error_class) (rate(crawler_graphql_retries_total[5m]))
//
//   # Quota close to exhaustion
//   crawler_rate_limit_remaining < 50
