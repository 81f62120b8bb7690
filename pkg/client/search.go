package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/repo-crawler/pkg/ratelimit"
)

const (
	// PageSize is the number of nodes requested per search page.
	PageSize = 100

	// estimatePageSize keeps cardinality probes small; only repositoryCount is used.
	estimatePageSize = 1
)

// RepositoryNode is a repository as returned by the GraphQL API.
type RepositoryNode struct {
	ID             string    `json:"id"`
	DatabaseID     int64     `json:"databaseId"`
	NameWithOwner  string    `json:"nameWithOwner"`
	URL            string    `json:"url"`
	StargazerCount int       `json:"stargazerCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PageInfo is the cursor state of a search connection.
type PageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
}

// SearchPage is one page of a repository search.
type SearchPage struct {
	RateLimit       *ratelimit.Snapshot
	RepositoryCount int
	PageInfo        PageInfo
	Nodes           []RepositoryNode
	// Errors holds the GraphQL error list reported with the page, if any.
	Errors []GraphQLError
}

// Estimate is the result of a cardinality probe.
type Estimate struct {
	Count     int
	RateLimit *ratelimit.Snapshot
}

type searchData struct {
	RateLimit *ratelimit.Snapshot `json:"rateLimit"`
	Search    *struct {
		RepositoryCount int              `json:"repositoryCount"`
		PageInfo        PageInfo         `json:"pageInfo"`
		Nodes           []RepositoryNode `json:"nodes"`
	} `json:"search"`
}

type repositoryData struct {
	RateLimit  *ratelimit.Snapshot `json:"rateLimit"`
	Repository *RepositoryNode     `json:"repository"`
}

// decodeData unmarshals a response's data field. A missing or null data
// field leaves v untouched.
func decodeData(resp *Response, v any) error {
	if len(resp.Data) == 0 || bytes.Equal(resp.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassProtocol,
			Message:    "decode data",
			Header:     resp.Header,
			Err:        err,
		}
	}
	return nil
}

// Search fetches one page of repositories matching query. An empty cursor
// requests the first page. GraphQL errors are returned on the page, not as
// an error, so callers can still use the rate-limit snapshot.
func (c *Client) Search(ctx context.Context, query, cursor string, first int) (*SearchPage, error) {
	vars := map[string]any{
		"queryString": query,
		"first":       first,
		"cursor":      nil,
	}
	if cursor != "" {
		vars["cursor"] = cursor
	}

	resp, err := c.Execute(ctx, Request{Query: SearchQuery, Variables: vars})
	if err != nil {
		return nil, err
	}

	var data searchData
	if err := decodeData(resp, &data); err != nil {
		return nil, err
	}

	page := &SearchPage{
		RateLimit: data.RateLimit,
		Errors:    resp.Errors,
	}
	if data.Search != nil {
		page.RepositoryCount = data.Search.RepositoryCount
		page.PageInfo = data.Search.PageInfo
		page.Nodes = data.Search.Nodes
	}

	return page, nil
}

// Estimate returns the total match count for query without paginating.
// A response without search data counts as zero.
func (c *Client) Estimate(ctx context.Context, query string) (Estimate, error) {
	page, err := c.Search(ctx, query, "", estimatePageSize)
	if err != nil {
		return Estimate{}, fmt.Errorf("estimate %q: %w", query, err)
	}

	if len(page.Errors) > 0 {
		c.logger.Warn().
			Str("query", query).
			Err(&RemoteError{Errors: page.Errors}).
			Msg("Estimate returned GraphQL errors")
	}

	return Estimate{Count: page.RepositoryCount, RateLimit: page.RateLimit}, nil
}

// Repository looks up a single repository by owner and name.
func (c *Client) Repository(ctx context.Context, owner, name string) (*RepositoryNode, *ratelimit.Snapshot, error) {
	resp, err := c.Execute(ctx, Request{
		Query:     RepositoryQuery,
		Variables: map[string]any{"owner": owner, "name": name},
	})
	if err != nil {
		return nil, nil, err
	}

	var data repositoryData
	if err := decodeData(resp, &data); err != nil {
		return nil, nil, err
	}

	if data.Repository == nil {
		if len(resp.Errors) > 0 {
			return nil, data.RateLimit, &RemoteError{Errors: resp.Errors}
		}
		return nil, data.RateLimit, ErrNotFound
	}

	return data.Repository, data.RateLimit, nil
}
