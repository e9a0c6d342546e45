// Package retrieval defines the Searcher interface over the knowledge-base
// document store that backs the search_knowledge tool.
//
// The store holds pre-chunked business documents with embedding vectors; a
// search embeds the caller's question and ranks chunks by cosine similarity.
// Ingestion pipelines live outside the gateway; this package only reads,
// plus a single upsert used by operational backfill tooling.
package retrieval

import "context"

// Chunk is one stored knowledge-base fragment.
type Chunk struct {
	ID         string
	BusinessID string

	// Category groups chunks by topic ("services", "pricing", "hours").
	Category string

	// Source names the originating document for attribution.
	Source string

	Content   string
	Embedding []float32
}

// Result is one search hit.
type Result struct {
	Chunk

	// Similarity is the cosine similarity to the query in [0,1], higher is
	// closer.
	Similarity float64
}

// Filter restricts a search.
type Filter struct {
	// BusinessID scopes results to one tenant. Required.
	BusinessID string

	// Category, when non-empty, restricts results to one topic group.
	Category string
}

// Searcher is the abstraction over the knowledge-base store.
//
// Implementations must be safe for concurrent use.
type Searcher interface {
	// SearchSimilarContent returns up to topK chunks most similar to the
	// query text, most similar first. An empty result is not an error.
	SearchSimilarContent(ctx context.Context, query string, topK int, filter Filter) ([]Result, error)
}
