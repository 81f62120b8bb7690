package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/repo-crawler/internal/testutil"
)

func TestSearch_DecodesPage(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()

	created := time.Date(2015, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.Enqueue(testutil.NewSearchResponse(250, testutil.Fixtures(10, 3, created), true, "Y3Vyc29y", 4321))

	c, _ := newTestClient(t, mock.URL(), 3)

	page, err := c.Search(context.Background(), "is:public created:2015-01-01..2015-06-01", "", PageSize)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if page.RepositoryCount != 250 {
		t.Errorf("RepositoryCount = %d, want 250", page.RepositoryCount)
	}
	if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor != "Y3Vyc29y" {
		t.Errorf("PageInfo = %+v", page.PageInfo)
	}
	if len(page.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(page.Nodes))
	}

	first := page.Nodes[0]
	if first.DatabaseID != 10 || first.NameWithOwner != "owner10/repo10" {
		t.Errorf("first node = %+v", first)
	}
	if first.URL != "https://github.com/owner10/repo10" {
		t.Errorf("URL = %q", first.URL)
	}
	if !first.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", first.CreatedAt, created)
	}
	if page.RateLimit == nil || page.RateLimit.Remaining != 4321 {
		t.Errorf("RateLimit = %+v, want remaining 4321", page.RateLimit)
	}
}

func TestSearch_SendsVariables(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()
	mock.Enqueue(searchOK(), searchOK())

	c, _ := newTestClient(t, mock.URL(), 3)
	ctx := context.Background()

	if _, err := c.Search(ctx, "is:public", "", PageSize); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, err := c.Search(ctx, "is:public", "abc", PageSize); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	reqs := mock.GetRequests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}

	if got := reqs[0].StringVar("queryString"); got != "is:public" {
		t.Errorf("queryString = %q", got)
	}
	if v, ok := reqs[0].Variables["cursor"]; !ok || v != nil {
		t.Errorf("first page cursor = %v (present %v), want explicit null", v, ok)
	}
	if got := reqs[1].StringVar("cursor"); got != "abc" {
		t.Errorf("cursor = %q, want abc", got)
	}
	// JSON numbers decode as float64
	if got, _ := reqs[1].Variables["first"].(float64); got != PageSize {
		t.Errorf("first = %v, want %d", got, PageSize)
	}
}

func TestSearch_ReturnsGraphQLErrorsOnPage(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()
	mock.Enqueue(testutil.NewGraphQLErrorResponse("SERVICE_UNAVAILABLE", "search timed out"))

	c, _ := newTestClient(t, mock.URL(), 3)

	page, err := c.Search(context.Background(), "is:public", "", PageSize)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(page.Errors) != 1 || page.Errors[0].Type != "SERVICE_UNAVAILABLE" {
		t.Errorf("Errors = %+v", page.Errors)
	}
	if len(page.Nodes) != 0 || page.RepositoryCount != 0 {
		t.Errorf("page = %+v, want empty", page)
	}
}

func TestEstimate(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()
	mock.Enqueue(testutil.NewSearchResponse(4200, testutil.Fixtures(1, 1, testNow), true, "c", 4000))

	c, _ := newTestClient(t, mock.URL(), 3)

	est, err := c.Estimate(context.Background(), "is:public created:2020-01-01..2020-02-01")
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if est.Count != 4200 {
		t.Errorf("Count = %d, want 4200", est.Count)
	}
	if est.RateLimit == nil || est.RateLimit.Remaining != 4000 {
		t.Errorf("RateLimit = %+v", est.RateLimit)
	}

	reqs := mock.GetRequests()
	if got, _ := reqs[0].Variables["first"].(float64); got != estimatePageSize {
		t.Errorf("first = %v, want %d", got, estimatePageSize)
	}
}

func TestEstimate_PropagatesFatalError(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()
	mock.Enqueue(testutil.NewStatusResponse(401, nil))

	c, _ := newTestClient(t, mock.URL(), 3)

	_, err := c.Estimate(context.Background(), "is:public")
	if !IsUnauthorized(err) {
		t.Errorf("error = %v, want unauthorized", err)
	}
}

func TestRepository(t *testing.T) {
	created := time.Date(2019, 7, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		response   testutil.MockResponse
		wantID     int64
		wantErr    error
		wantRemote bool
	}{
		{
			name:     "found",
			response: testutil.NewRepositoryResponse(testutil.RepoFixture{DatabaseID: 42, Name: "acme/widget", Stars: 7, CreatedAt: created}, 4990),
			wantID:   42,
		},
		{
			name:     "null without errors",
			response: testutil.MockResponse{StatusCode: 200, Body: `{"data":{"repository":null}}`},
			wantErr:  ErrNotFound,
		},
		{
			name:       "null with errors",
			response:   testutil.NewGraphQLErrorResponse("NOT_FOUND", "Could not resolve to a Repository"),
			wantRemote: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockGraphQL()
			defer mock.Close()
			mock.Enqueue(tt.response)

			c, _ := newTestClient(t, mock.URL(), 3)

			node, _, err := c.Repository(context.Background(), "acme", "widget")
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.wantRemote:
				if !IsRemote(err) {
					t.Errorf("error = %v, want remote error", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Repository() error = %v", err)
			}
			if node.DatabaseID != tt.wantID {
				t.Errorf("DatabaseID = %d, want %d", node.DatabaseID, tt.wantID)
			}
			if node.StargazerCount != 7 || !node.UpdatedAt.Equal(created) {
				t.Errorf("node = %+v", node)
			}

			reqs := mock.GetRequests()
			if reqs[0].StringVar("owner") != "acme" || reqs[0].StringVar("name") != "widget" {
				t.Errorf("variables = %v", reqs[0].Variables)
			}
		})
	}
}
