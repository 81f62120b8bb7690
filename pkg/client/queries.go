package client

// SearchQuery is the bounded repository search. Variables: queryString,
// first, cursor (null for the first page).
const SearchQuery = `
query ($queryString: String!, $first: Int!, $cursor: String) {
  rateLimit {
    limit
    cost
    remaining
    resetAt
  }
  search(query: $queryString, type: REPOSITORY, first: $first, after: $cursor) {
    repositoryCount
    pageInfo { endCursor hasNextPage }
    nodes {
      ... on Repository {
        id
        databaseId
        nameWithOwner
        url
        stargazerCount
        createdAt
      }
    }
  }
}
`

// RepositoryQuery looks up a single repository. Variables: owner, name.
const RepositoryQuery = `
query ($owner: String!, $name: String!) {
  rateLimit { limit cost remaining resetAt }
  repository(owner: $owner, name: $name) {
    id
    databaseId
    nameWithOwner
    url
    stargazerCount
    createdAt
    updatedAt
  }
}
`
