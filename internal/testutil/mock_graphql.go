// Package testutil provides testing utilities for the repository crawler.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock GraphQL response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// GraphQLRequest is a decoded request received by the mock server.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// StringVar returns a string variable, or "" when absent or null.
func (r GraphQLRequest) StringVar(name string) string {
	v, _ := r.Variables[name].(string)
	return v
}

// MockGraphQL is a configurable mock GraphQL server. Scripted responses are
// served first, in order; afterwards the handler (if any) answers.
type MockGraphQL struct {
	server  *httptest.Server
	mu      sync.Mutex
	script  []MockResponse
	handler func(req GraphQLRequest) MockResponse

	requests          []GraphQLRequest
	lastRequestHeader http.Header
}

// NewMockGraphQL creates a new mock GraphQL server.
func NewMockGraphQL() *MockGraphQL {
	mock := &MockGraphQL{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GraphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		mock.mu.Lock()
		mock.requests = append(mock.requests, req)
		mock.lastRequestHeader = r.Header.Clone()

		var resp MockResponse
		switch {
		case len(mock.script) > 0:
			resp = mock.script[0]
			mock.script = mock.script[1:]
		case mock.handler != nil:
			handler := mock.handler
			mock.mu.Unlock()
			resp = handler(req)
			mock.mu.Lock()
		default:
			resp = MockResponse{StatusCode: http.StatusInternalServerError, Body: `{"message":"no scripted response"}`}
		}
		mock.mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGraphQL) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGraphQL) Close() {
	m.server.Close()
}

// Enqueue appends scripted responses.
func (m *MockGraphQL) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resps...)
}

// SetHandler answers requests once the script is exhausted.
func (m *MockGraphQL) SetHandler(handler func(req GraphQLRequest) MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGraphQL) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// GetRequests returns a copy of every request received.
func (m *MockGraphQL) GetRequests() []GraphQLRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GraphQLRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockGraphQL) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

// RepoFixture describes a repository node returned by mock searches.
type RepoFixture struct {
	DatabaseID int64
	Name       string
	Stars      int
	CreatedAt  time.Time
}

// Fixtures builds n repositories with ids starting at firstID.
func Fixtures(firstID int64, n int, createdAt time.Time) []RepoFixture {
	out := make([]RepoFixture, n)
	for i := range out {
		id := firstID + int64(i)
		out[i] = RepoFixture{
			DatabaseID: id,
			Name:       fmt.Sprintf("owner%d/repo%d", id, id),
			Stars:      int(id % 1000),
			CreatedAt:  createdAt,
		}
	}
	return out
}

func (f RepoFixture) node() map[string]any {
	return map[string]any{
		"id":             "R_" + strconv.FormatInt(f.DatabaseID, 10),
		"databaseId":     f.DatabaseID,
		"nameWithOwner":  f.Name,
		"url":            "https://github.com/" + f.Name,
		"stargazerCount": f.Stars,
		"createdAt":      f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func rateLimitObject(remaining int) map[string]any {
	return map[string]any{
		"limit":     5000,
		"cost":      1,
		"remaining": remaining,
		"resetAt":   "2030-01-01T00:00:00Z",
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// NewSearchResponse creates a 200 search response.
func NewSearchResponse(total int, nodes []RepoFixture, hasNext bool, endCursor string, remaining int) MockResponse {
	ns := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		ns[i] = n.node()
	}

	return MockResponse{
		StatusCode: http.StatusOK,
		Body: mustJSON(map[string]any{
			"data": map[string]any{
				"rateLimit": rateLimitObject(remaining),
				"search": map[string]any{
					"repositoryCount": total,
					"pageInfo":        map[string]any{"endCursor": endCursor, "hasNextPage": hasNext},
					"nodes":           ns,
				},
			},
		}),
	}
}

// NewRepositoryResponse creates a 200 single-repository response.
func NewRepositoryResponse(repo RepoFixture, remaining int) MockResponse {
	node := repo.node()
	node["updatedAt"] = repo.CreatedAt.UTC().Format(time.RFC3339)

	return MockResponse{
		StatusCode: http.StatusOK,
		Body: mustJSON(map[string]any{
			"data": map[string]any{
				"rateLimit":  rateLimitObject(remaining),
				"repository": node,
			},
		}),
	}
}

// NewGraphQLErrorResponse creates a 200 response whose body carries an error list.
func NewGraphQLErrorResponse(errType, message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: mustJSON(map[string]any{
			"data":   nil,
			"errors": []map[string]any{{"type": errType, "message": message}},
		}),
	}
}

// NewRateLimitedResponse creates a 200 response reporting RATE_LIMITED.
func NewRateLimitedResponse() MockResponse {
	return NewGraphQLErrorResponse("RATE_LIMITED", "API rate limit exceeded")
}

// NewStatusResponse creates a bare response with the given status and headers.
func NewStatusResponse(status int, headers map[string]string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       mustJSON(map[string]any{"message": http.StatusText(status)}),
		Headers:    headers,
	}
}
