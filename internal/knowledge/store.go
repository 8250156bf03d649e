package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/caspar0/caspar/internal/log"
)

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 15 * time.Second

// Store is a Retriever backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   log.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add upserts a passage with its embedding.
func (s *Store) Add(ctx context.Context, id, text string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("passage id is required")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("passage text is required")
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, text)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO passages (id, content, embedding)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET content = $2, embedding = $3, updated_at = now()`,
		id, text, vec); err != nil {
		return fmt.Errorf("upserting passage: %w", err)
	}
	return nil
}

// Seed adds passages that are not yet in the store. Existing passages keep
// their content, so edits made through Add survive restarts.
func (s *Store) Seed(ctx context.Context, passages []Passage) error {
	for _, p := range passages {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM passages WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking passage %s: %w", p.ID, err)
		}
		if exists {
			continue
		}
		if err := s.Add(ctx, p.ID, p.Text); err != nil {
			return err
		}
	}
	return nil
}

// Retrieve returns the k passages nearest to the query by cosine similarity.
func (s *Store) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		return nil, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, query)
	if err != nil {
		return nil, err
	}

	// Cosine similarity: pgvector's <=> is cosine distance.
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, 1 - (embedding <=> $1) AS score
		 FROM passages
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, k)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	var passages []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.ID, &p.Text, &p.Score); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}

	s.logger.Debug("passages retrieved", "query_len", len(query), "k", k, "hits", len(passages))
	return passages, nil
}
