// Package vectorstore implements the VectorIndex external interface:
// chunk ingestion and similarity search over Evidence, backed by an
// embedding Provider. The in-memory implementation here is also the test
// double every engine test builds against; internal/vectorstore/pgvector
// supplies the production pgx-backed implementation.
package vectorstore

import "context"

// EmbeddingProvider generates vector embeddings for text, narrowed to what
// ingest and query-time search both need.
type EmbeddingProvider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension this provider produces.
	// A VectorIndex fixes its dimension at construction from
	// this value.
	Dimension() int
}
