// Package repo defines the repository record persisted by the crawler.
package repo

import (
	"time"

	"github.com/Sternrassler/repo-crawler/pkg/client"
)

// Record is a transformed search node. Query is the exact search string that
// produced the record.
type Record struct {
	ExternalID int64     `json:"externalId"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
	Stars      int       `json:"stars"`
	Query      string    `json:"query"`
}

// FromNode builds a Record from a GraphQL repository node.
func FromNode(node client.RepositoryNode, query string) Record {
	return Record{
		ExternalID: node.DatabaseID,
		Name:       node.NameWithOwner,
		URL:        node.URL,
		CreatedAt:  node.CreatedAt.UTC(),
		Stars:      node.StargazerCount,
		Query:      query,
	}
}

// FromNodes transforms a page of nodes. Nodes without a database id (non
// repository search hits) are skipped.
func FromNodes(nodes []client.RepositoryNode, query string) []Record {
	out := make([]Record, 0, len(nodes))
	for _, n := range nodes {
		if n.DatabaseID == 0 {
			continue
		}
		out = append(out, FromNode(n, query))
	}
	return out
}
