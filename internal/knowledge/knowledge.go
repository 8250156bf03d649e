// Package knowledge provides passage retrieval for answer composition.
//
// The agent consumes the Retriever interface; two implementations exist:
// Store (PostgreSQL + pgvector semantic search) and Static (in-memory keyword
// overlap, for tests and dev mode).
package knowledge

import "context"

// VectorDimension is the embedding dimension used by the passages schema.
// gemini-embedding-001 truncates to 768 via OutputDimensionality.
const VectorDimension int32 = 768

// Passage is a unit of knowledge-base content.
type Passage struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Retriever finds the k passages most relevant to a query, best first.
// Implementations return fewer than k passages when the corpus is small and
// an empty slice (not an error) when nothing matches.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}
