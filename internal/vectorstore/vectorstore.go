package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// VectorIndex is the external storage interface: add chunks, search by
// query text, get back ranked Evidence. Embedding dimension is fixed at
// construction — every implementation must reject chunks whose embedding
// dimension doesn't match.
type VectorIndex interface {
	Add(ctx context.Context, chunks []*models.DocumentChunk) error
	Search(ctx context.Context, query string, k int) ([]models.Evidence, error)
}

// ErrDimensionMismatch is returned when a chunk's embedding dimension
// doesn't match the index's fixed dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index expects %d, got %d", e.Expected, e.Actual)
}

// MemoryIndex is an in-process VectorIndex backed by brute-force cosine
// similarity, adapted from a DocumentStore.Search narrowed to
// a simple add/search pair. Good for tests and small corpora; the
// pgvector package supersedes it for production scale.
type MemoryIndex struct {
	mu        sync.RWMutex
	provider  EmbeddingProvider
	dimension int
	chunks    []*models.DocumentChunk
	channel   string
}

// NewMemoryIndex constructs a MemoryIndex whose embeddings come from
// provider. channel labels every Evidence this index produces (e.g.
// "vector", to distinguish it from web-search evidence in the retrieval
// orchestrator's channel mix).
func NewMemoryIndex(provider EmbeddingProvider, channel string) *MemoryIndex {
	return &MemoryIndex{provider: provider, dimension: provider.Dimension(), channel: channel}
}

// Add embeds (if needed) and stores chunks, rejecting any whose
// pre-computed embedding doesn't match the index's fixed dimension.
func (idx *MemoryIndex) Add(ctx context.Context, chunks []*models.DocumentChunk) error {
	var toEmbed []string
	var toEmbedIdx []int

	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			toEmbed = append(toEmbed, c.Content)
			toEmbedIdx = append(toEmbedIdx, i)
			continue
		}
		if len(c.Embedding) != idx.dimension {
			return &ErrDimensionMismatch{Expected: idx.dimension, Actual: len(c.Embedding)}
		}
	}

	if len(toEmbed) > 0 {
		embeddings, err := idx.provider.EmbedBatch(ctx, toEmbed)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		for i, emb := range embeddings {
			if len(emb) != idx.dimension {
				return &ErrDimensionMismatch{Expected: idx.dimension, Actual: len(emb)}
			}
			chunks[toEmbedIdx[i]].Embedding = emb
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.chunks = append(idx.chunks, chunks...)
	return nil
}

// scored pairs a chunk with its similarity to the current query.
type scored struct {
	chunk *models.DocumentChunk
	score float32
}

// Search embeds query, ranks stored chunks by cosine similarity, and
// returns the top k as Evidence.
func (idx *MemoryIndex) Search(ctx context.Context, query string, k int) ([]models.Evidence, error) {
	if k <= 0 {
		k = 1
	}

	queryEmbedding, err := idx.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	idx.mu.RLock()
	candidates := make([]scored, 0, len(idx.chunks))
	for _, c := range idx.chunks {
		candidates = append(candidates, scored{chunk: c, score: cosineSimilarity(queryEmbedding, c.Embedding)})
	}
	idx.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if k > len(candidates) {
		k = len(candidates)
	}

	now := time.Now()
	evidence := make([]models.Evidence, 0, k)
	for _, c := range candidates[:k] {
		evidence = append(evidence, models.Evidence{
			ID:          c.chunk.ID,
			Channel:     idx.channel,
			SourceURI:   c.chunk.Metadata.DocumentSource,
			Title:       c.chunk.Metadata.DocumentName,
			Content:     c.chunk.Content,
			Score:       c.score,
			RetrievedAt: now,
		})
	}
	return evidence, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
