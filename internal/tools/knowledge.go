package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/voxgate-io/voxgate/pkg/retrieval"
)

// defaultTopK is the number of chunks fetched per knowledge search.
const defaultTopK = 5

// maxContextChars bounds the formatted context handed to the model. Realtime
// turns are short; a wall of text only slows the reply down.
const maxContextChars = 1600

// emptyKnowledgeMessage is spoken when the search finds nothing useful.
const emptyKnowledgeMessage = "I don't have specific information on that, but I'd be happy to set up a time with someone from the team who can walk you through it. Would you like that?"

type searchArgs struct {
	Query string `json:"query"`
}

func (h *Handler) searchKnowledge(ctx context.Context, arguments string) (string, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return result{Message: "Could you rephrase the question?"}.encode()
	}

	query := extractKeywords(args.Query)
	if query == "" {
		return result{Message: "Could you rephrase the question?"}.encode()
	}

	hits, err := h.searcher.SearchSimilarContent(ctx, query, defaultTopK, retrieval.Filter{
		BusinessID: h.biz.ID,
	})
	if err != nil {
		return "", fmt.Errorf("tools: knowledge search: %w", err)
	}
	if len(hits) == 0 {
		return result{Success: true, Message: emptyKnowledgeMessage}.encode()
	}

	context, sources := formatHits(hits)
	h.logger.Debug("knowledge search", "query", query, "hits", len(hits))

	return result{
		Success: true,
		Context: context,
		Sources: sources,
		Message: "Answer from the context below in one or two spoken sentences.",
	}.encode()
}

// stopwords are dropped from queries before embedding; filler words dominate
// phone transcripts and drag the vector toward smalltalk.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "can": true, "could": true,
	"do": true, "does": true, "for": true, "have": true, "how": true, "i": true,
	"is": true, "it": true, "me": true, "my": true, "of": true, "or": true,
	"please": true, "tell": true, "that": true, "the": true, "to": true,
	"um": true, "uh": true, "was": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "with": true,
	"would": true, "you": true, "your": true,
}

// extractKeywords strips filler from a spoken question, keeping domain words.
// A query that is all filler falls back to the trimmed original.
func extractKeywords(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	kept := make([]string, 0, len(fields))
	for _, w := range fields {
		w = strings.Trim(w, ".,!?'\"")
		if len(w) < 2 || stopwords[w] {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return strings.TrimSpace(query)
	}
	return strings.Join(kept, " ")
}

// formatHits renders retrieved chunks grouped by category, capped in total
// length, plus the deduplicated source list for attribution.
func formatHits(hits []retrieval.Result) (string, []string) {
	byCategory := make(map[string][]retrieval.Result)
	var categories []string
	for _, hit := range hits {
		cat := hit.Category
		if cat == "" {
			cat = "general"
		}
		if _, ok := byCategory[cat]; !ok {
			categories = append(categories, cat)
		}
		byCategory[cat] = append(byCategory[cat], hit)
	}
	sort.Strings(categories)

	var b strings.Builder
	seen := make(map[string]bool)
	var sources []string

	for _, cat := range categories {
		if b.Len() >= maxContextChars {
			break
		}
		b.WriteString("[" + cat + "]\n")
		for _, hit := range byCategory[cat] {
			content := strings.TrimSpace(hit.Content)
			if remaining := maxContextChars - b.Len(); len(content) > remaining {
				if remaining <= 0 {
					break
				}
				content = content[:remaining]
			}
			b.WriteString("- " + content + "\n")

			if hit.Source != "" && !seen[hit.Source] {
				seen[hit.Source] = true
				sources = append(sources, hit.Source)
			}
		}
	}

	return strings.TrimSpace(b.String()), sources
}
