// Package postgres implements retrieval.Searcher on a PostgreSQL
// content_chunks table with a pgvector HNSW index for approximate
// nearest-neighbour search.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/voxgate-io/voxgate/pkg/provider/embeddings"
	"github.com/voxgate-io/voxgate/pkg/retrieval"
)

// Compile-time assertion that Store satisfies retrieval.Searcher.
var _ retrieval.Searcher = (*Store)(nil)

// Store is the pgvector-backed knowledge store. All methods are safe for
// concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// New creates a Store over an existing connection pool. The pool is owned by
// the caller.
func New(pool *pgxpool.Pool, embedder embeddings.Provider) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("retrieval postgres: pool must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("retrieval postgres: embedder must not be nil")
	}
	return &Store{pool: pool, embedder: embedder}, nil
}

// SearchSimilarContent implements retrieval.Searcher. The query is embedded
// once, then ranked by cosine distance in a single indexed query.
func (s *Store) SearchSimilarContent(ctx context.Context, query string, topK int, filter retrieval.Filter) ([]retrieval.Result, error) {
	if filter.BusinessID == "" {
		return nil, fmt.Errorf("retrieval postgres: filter.BusinessID is required")
	}
	if topK <= 0 {
		topK = 5
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval postgres: embed query: %w", err)
	}

	args := []any{pgvector.NewVector(vec), filter.BusinessID}
	conditions := []string{"business_id = $2"}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}

	args = append(args, topK)
	q := fmt.Sprintf(`
		SELECT id, business_id, category, source, content,
		       embedding <=> $1 AS distance
		FROM   content_chunks
		WHERE  %s
		ORDER  BY distance
		LIMIT  $%d`, strings.Join(conditions, "\n  AND "), len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("retrieval postgres: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (retrieval.Result, error) {
		var (
			r        retrieval.Result
			distance float64
		)
		if err := row.Scan(
			&r.ID,
			&r.BusinessID,
			&r.Category,
			&r.Source,
			&r.Content,
			&distance,
		); err != nil {
			return retrieval.Result{}, err
		}
		r.Similarity = 1 - distance
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval postgres: scan rows: %w", err)
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	return results, nil
}

// UpsertChunk embeds and stores one chunk, replacing any existing chunk with
// the same ID. Used by backfill tooling, not the call path.
func (s *Store) UpsertChunk(ctx context.Context, chunk retrieval.Chunk) error {
	if chunk.ID == "" || chunk.BusinessID == "" {
		return fmt.Errorf("retrieval postgres: chunk ID and BusinessID are required")
	}

	emb := chunk.Embedding
	if emb == nil {
		var err error
		emb, err = s.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("retrieval postgres: embed chunk: %w", err)
		}
	}

	const q = `
		INSERT INTO content_chunks
		    (id, business_id, category, source, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    business_id = EXCLUDED.business_id,
		    category    = EXCLUDED.category,
		    source      = EXCLUDED.source,
		    content     = EXCLUDED.content,
		    embedding   = EXCLUDED.embedding`

	_, err := s.pool.Exec(ctx, q,
		chunk.ID,
		chunk.BusinessID,
		chunk.Category,
		chunk.Source,
		chunk.Content,
		pgvector.NewVector(emb),
	)
	if err != nil {
		return fmt.Errorf("retrieval postgres: upsert chunk: %w", err)
	}
	return nil
}
