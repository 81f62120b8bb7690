package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is matched by RetryExhaustedError via errors.Is.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a wait.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNotFound is returned by Repository when the lookup resolves to nothing.
	ErrNotFound = errors.New("repository not found")
)

// ErrorClass classifies a failed attempt.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport failures (connection refused, timeouts, DNS).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassRateLimit represents 403/429 responses and 200 responses whose
	// GraphQL error list reports RATE_LIMITED.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 502/503/504 responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassUnauthorized represents 401 responses.
	ErrorClassUnauthorized ErrorClass = "unauthorized"

	// ErrorClassProtocol represents any other non-2xx status or an undecodable body.
	ErrorClassProtocol ErrorClass = "protocol"
)

// APIError is a classified failure of a single attempt.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	// Header holds the response headers, nil for transport failures.
	Header http.Header
	Err    error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graphql %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("graphql %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned when every attempt of a call failed with a
// retryable class.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetryExhausted, e.Attempts, e.Last)
}

// Is makes errors.Is(err, ErrRetryExhausted) hold.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// Unwrap returns the last attempt's error.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// GraphQLError is one entry of a GraphQL "errors" list.
type GraphQLError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// RemoteError wraps a GraphQL error list returned with a successful transport.
type RemoteError struct {
	Errors []GraphQLError
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		if ge.Type != "" {
			msgs = append(msgs, ge.Type+": "+ge.Message)
			continue
		}
		msgs = append(msgs, ge.Message)
	}
	return fmt.Sprintf("graphql: %d error(s): %s", len(e.Errors), strings.Join(msgs, "; "))
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassNetwork, ErrorClassRateLimit, ErrorClassServer:
		return true
	default:
		// 401, other 4xx/5xx and malformed payloads are fatal
		return false
	}
}

func hasClass(err error, class ErrorClass) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class == class
	}
	return false
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	return hasClass(err, ErrorClassUnauthorized)
}

// IsProtocol reports whether err is a non-retryable protocol failure.
func IsProtocol(err error) bool {
	return hasClass(err, ErrorClassProtocol)
}

// IsRetryExhausted reports whether err is the result of retry exhaustion.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}

// IsRemote reports whether err carries a GraphQL error list.
func IsRemote(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}
