// Package client provides the GitHub GraphQL client with retry, backoff and
// rate-limit-aware waiting.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/repo-crawler/pkg/clock"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_graphql_requests_total",
		Help: "Total GraphQL attempts by HTTP status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_graphql_request_duration_seconds",
		Help:    "GraphQL attempt duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_graphql_errors_total",
		Help: "Total failed GraphQL attempts by error class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_graphql_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_graphql_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 300, 900},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_graphql_retry_exhausted_total",
		Help: "Total number of calls that exhausted their retry budget by last error class",
	}, []string{"error_class"})
)

// DefaultEndpoint is the public GitHub GraphQL endpoint.
const DefaultEndpoint = "https://api.github.com/graphql"

// Client executes GraphQL requests against a single endpoint.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	clock      clock.Clock
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the GraphQL URL.
	Endpoint string

	// Token is sent as a bearer token. Empty disables authentication.
	Token string

	// UserAgent header (GitHub rejects requests without one).
	UserAgent string

	// MaxAttempts bounds the attempts of one logical call.
	MaxAttempts int

	// RequestsPerSecond paces attempts. Zero disables pacing.
	RequestsPerSecond float64

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// Clock is used for every wait. Defaults to the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(token string) Config {
	return Config{
		Endpoint:    DefaultEndpoint,
		Token:       token,
		UserAgent:   "repo-crawler/0.1.0",
		MaxAttempts: DefaultMaxAttempts,
		Timeout:     60 * time.Second,
	}
}

// New creates a new GraphQL client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.MaxAttempts)
	}

	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: newHTTPClient(cfg),
		limiter:    limiter,
		clock:      cfg.Clock,
		config:     cfg,
		logger:     log.With().Str("component", "graphql-client").Logger(),
	}, nil
}

func newHTTPClient(cfg Config) *http.Client {
	if cfg.Token == "" {
		return &http.Client{Timeout: cfg.Timeout}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Token},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = cfg.Timeout
	return tc
}

// Request is a GraphQL request body.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Response is a decoded GraphQL response that passed classification. Errors
// may still be non-empty when the server reported non-rate-limit errors.
type Response struct {
	StatusCode int             `json:"-"`
	Header     http.Header     `json:"-"`
	Data       json.RawMessage `json:"data"`
	Errors     []GraphQLError  `json:"errors"`
}

// Execute performs a GraphQL request, retrying network, rate-limit and
// transient server failures. It returns *APIError for fatal classes and
// *RetryExhaustedError when the attempt budget runs out.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	var lastClass ErrorClass

	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if err := c.pace(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		resp, err := c.do(ctx, body)
		if err == nil {
			if attempt > 0 {
				c.logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}

		errorsTotal.WithLabelValues(string(apiErr.Class)).Inc()
		lastErr = err
		lastClass = apiErr.Class

		if !shouldRetry(apiErr.Class) {
			c.logger.Error().
				Err(err).
				Str("error_class", string(apiErr.Class)).
				Int("status", apiErr.StatusCode).
				Msg("Non-retryable GraphQL error")
			return nil, err
		}

		// No wait after the final attempt
		if attempt >= c.config.MaxAttempts-1 {
			break
		}

		wait := retryDelay(apiErr, attempt, c.clock.Now())
		retriesTotal.WithLabelValues(string(apiErr.Class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(apiErr.Class)).Observe(wait.Seconds())

		c.logger.Warn().
			Str("error_class", string(apiErr.Class)).
			Int("status", apiErr.StatusCode).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		if err := c.clock.Sleep(ctx, wait); err != nil {
			c.logger.Warn().
				Str("error_class", string(apiErr.Class)).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	c.logger.Error().
		Str("error_class", string(lastClass)).
		Int("max_attempts", c.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, &RetryExhaustedError{Attempts: c.config.MaxAttempts, Last: lastErr}
}

// pace waits for the request limiter, if configured.
func (c *Client) pace(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	now := c.clock.Now()
	r := c.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("rate limiter cannot grant a request")
	}
	return c.clock.Sleep(ctx, r.DelayFrom(now))
}

// do performs one attempt and classifies its outcome.
func (c *Client) do(ctx context.Context, body []byte) (*Response, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug().
		Str("endpoint", c.config.Endpoint).
		Msg("Executing GraphQL request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Msg("HTTP request failed")
		return nil, &APIError{Class: ErrorClassNetwork, Message: "transport failure", Err: err}
	}
	defer httpResp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(httpResp.StatusCode)).Inc()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read response body",
			Header:     httpResp.Header,
			Err:        err,
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: httpResp.StatusCode,
			Class:      classifyStatus(httpResp.StatusCode),
			Message:    httpResp.Status,
			Header:     httpResp.Header,
		}
		if apiErr.Class == ErrorClassUnauthorized {
			apiErr.Message = "unauthorized: check GITHUB_TOKEN"
		}
		return nil, apiErr
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header}
	if err := json.Unmarshal(payload, resp); err != nil {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Class:      ErrorClassProtocol,
			Message:    "decode response body",
			Header:     httpResp.Header,
			Err:        err,
		}
	}

	if len(resp.Errors) > 0 && resp.Errors[0].Type == "RATE_LIMITED" {
		c.logger.Warn().Msg("GraphQL 200 OK but body reports RATE_LIMITED")
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Class:      ErrorClassRateLimit,
			Message:    resp.Errors[0].Message,
			Header:     httpResp.Header,
		}
	}

	return resp, nil
}
