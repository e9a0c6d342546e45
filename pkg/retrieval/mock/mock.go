// Package mock provides a test double for the retrieval.Searcher interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate-io/voxgate/pkg/retrieval"
)

// Compile-time interface assertion.
var _ retrieval.Searcher = (*Searcher)(nil)

// SearchCall records one SearchSimilarContent invocation.
type SearchCall struct {
	Query  string
	TopK   int
	Filter retrieval.Filter
}

// Searcher is a mock implementation of retrieval.Searcher.
type Searcher struct {
	mu sync.Mutex

	// SearchResults is returned by SearchSimilarContent.
	SearchResults []retrieval.Result

	// SearchErr, if non-nil, is returned as the error.
	SearchErr error

	// SearchCalls records every invocation in order.
	SearchCalls []SearchCall
}

// SearchSimilarContent records the call and returns SearchResults, SearchErr.
func (s *Searcher) SearchSimilarContent(_ context.Context, query string, topK int, filter retrieval.Filter) ([]retrieval.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchCalls = append(s.SearchCalls, SearchCall{Query: query, TopK: topK, Filter: filter})
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	return s.SearchResults, nil
}

// Calls returns a copy of the recorded invocations.
func (s *Searcher) Calls() []SearchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SearchCall, len(s.SearchCalls))
	copy(out, s.SearchCalls)
	return out
}
