package client

import (
	"net/http"
	"time"

	"github.com/Sternrassler/repo-crawler/pkg/ratelimit"
)

const (
	// DefaultMaxAttempts is the attempt budget of one logical call.
	DefaultMaxAttempts = 10

	// GraphQLRateLimitCooldown is the wait after a 200 response whose error
	// list reports RATE_LIMITED.
	GraphQLRateLimitCooldown = 60 * time.Second

	// rateLimitBackoffExtra is added to exponential backoff on 403/429
	// responses without usable rate-limit headers.
	rateLimitBackoffExtra = 5 * time.Second

	// serverBackoffExtra is added to exponential backoff on 502/503/504.
	serverBackoffExtra = 1 * time.Second
)

// exponential returns 2^attempt seconds.
func exponential(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// retryDelay returns how long to wait before the next attempt after a
// retryable failure on the given zero-based attempt.
func retryDelay(apiErr *APIError, attempt int, now time.Time) time.Duration {
	switch apiErr.Class {
	case ErrorClassRateLimit:
		if apiErr.StatusCode == http.StatusOK {
			return GraphQLRateLimitCooldown
		}
		if wait, ok := ratelimit.ParseHeaders(apiErr.Header, now).Wait(now); ok {
			return wait
		}
		return exponential(attempt) + rateLimitBackoffExtra
	case ErrorClassServer:
		return exponential(attempt) + serverBackoffExtra
	default:
		return exponential(attempt)
	}
}

// classifyStatus maps a non-2xx status code to its error class.
func classifyStatus(status int) ErrorClass {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrorClassServer
	case http.StatusUnauthorized:
		return ErrorClassUnauthorized
	default:
		return ErrorClassProtocol
	}
}
