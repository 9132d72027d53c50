// Package pgvector implements vectorstore.VectorIndex on PostgreSQL with
// the pgvector extension, using pgx instead of database/sql
// + lib/pq pairing — the rest of this module's Postgres-facing code goes
// through pgx, and a single index should not carry two driver stacks.
package pgvector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentic-orchestration/runtime/internal/vectorstore"
	"github.com/agentic-orchestration/runtime/pkg/models"
)

// schemaSQL creates the chunk table and its vector index on first use.
// Embedded as a literal rather than a migrations directory: this store
// owns exactly one table, not an evolving schema.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS retrieval_chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	title TEXT,
	source_uri TEXT,
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS retrieval_chunks_embedding_idx
	ON retrieval_chunks USING ivfflat (embedding vector_cosine_ops);
`

// Store is a pgvector-backed vectorstore.VectorIndex.
type Store struct {
	pool      *pgxpool.Pool
	provider  vectorstore.EmbeddingProvider
	dimension int
	channel   string
}

// Config configures a pgvector Store.
type Config struct {
	DSN           string
	Pool          *pgxpool.Pool // reuse an existing pool instead of DSN
	Provider      vectorstore.EmbeddingProvider
	Channel       string
	RunMigrations bool
}

// New opens (or reuses) a pgx pool and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("pgvector: embedding provider is required")
	}

	pool := cfg.Pool
	if pool == nil {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("pgvector: either DSN or Pool must be provided")
		}
		p, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open pgvector pool: %w", err)
		}
		pool = p
	}

	s := &Store{
		pool:      pool,
		provider:  cfg.Provider,
		dimension: cfg.Provider.Dimension(),
		channel:   cfg.Channel,
	}
	if s.channel == "" {
		s.channel = "vector"
	}

	if cfg.RunMigrations {
		if _, err := pool.Exec(ctx, fmt.Sprintf(schemaSQL, s.dimension)); err != nil {
			return nil, fmt.Errorf("apply pgvector schema: %w", err)
		}
	}

	return s, nil
}

// Add embeds (when needed) and upserts chunks, enforcing the index's fixed
// embedding dimension.
func (s *Store) Add(ctx context.Context, chunks []*models.DocumentChunk) error {
	var toEmbed []string
	var toEmbedIdx []int
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			toEmbed = append(toEmbed, c.Content)
			toEmbedIdx = append(toEmbedIdx, i)
		} else if len(c.Embedding) != s.dimension {
			return &vectorstore.ErrDimensionMismatch{Expected: s.dimension, Actual: len(c.Embedding)}
		}
	}

	if len(toEmbed) > 0 {
		embeddings, err := s.provider.EmbedBatch(ctx, toEmbed)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		for i, emb := range embeddings {
			chunks[toEmbedIdx[i]].Embedding = emb
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO retrieval_chunks (id, document_id, channel, title, source_uri, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				title = EXCLUDED.title,
				source_uri = EXCLUDED.source_uri
		`, c.ID, c.DocumentID, s.channel, c.Metadata.DocumentName, c.Metadata.DocumentSource,
			c.Content, encodeVector(c.Embedding), timeOrNow(c.CreatedAt))
	}

	results := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// Search embeds query and returns the k nearest chunks by cosine distance.
func (s *Store) Search(ctx context.Context, query string, k int) ([]models.Evidence, error) {
	if k <= 0 {
		k = 1
	}

	embedding, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embedding) != s.dimension {
		return nil, &vectorstore.ErrDimensionMismatch{Expected: s.dimension, Actual: len(embedding)}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, source_uri, content, 1 - (embedding <=> $1::vector) AS similarity
		FROM retrieval_chunks
		ORDER BY embedding <=> $1::vector ASC
		LIMIT $2
	`, encodeVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var evidence []models.Evidence
	for rows.Next() {
		var e models.Evidence
		var title, sourceURI *string
		var score float32
		if err := rows.Scan(&e.ID, &title, &sourceURI, &e.Content, &score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if title != nil {
			e.Title = *title
		}
		if sourceURI != nil {
			e.SourceURI = *sourceURI
		}
		e.Channel = s.channel
		e.Score = score
		e.RetrievedAt = now
		evidence = append(evidence, e)
	}
	return evidence, rows.Err()
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func encodeVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
